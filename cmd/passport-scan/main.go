package main

import (
	"os"

	"battery-passport/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
