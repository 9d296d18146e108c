package main

import (
	"github.com/rs/zerolog/log"

	"battery-passport/internal/bootstrap"
)

func main() {
	app, err := bootstrap.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed starting battery passport desk")
	}

	if err := app.Run(); err != nil {
		log.Fatal().Err(err).Msg("Desktop shell exited with an error")
	}
}
