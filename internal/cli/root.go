package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"battery-passport/internal/config"
	"battery-passport/internal/domain"
	"battery-passport/internal/logging"
	"battery-passport/internal/passport"
)

// rootOptions holds persistent flags and the state they resolve to.
type rootOptions struct {
	APIBaseURL   string
	LogLevel     string
	JSON         bool
	SettingsPath string

	settings domain.Settings
	logger   zerolog.Logger
}

// NewRootCmd builds the passport-scan command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "passport-scan",
		Short:         "Scan battery passport QR codes and query the passport API",
		Long:          "passport-scan reads battery passport QR codes from a camera or image files and looks the battery up in the passport backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.APIBaseURL, "api", "", "Passport API base URL (overrides settings and "+config.EnvAPIBaseURL+")")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().StringVar(&opts.SettingsPath, "config", "", "Settings file (default ~/.battery-passport/settings.json)")

	rootCmd.AddCommand(newScanCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newDetailsCmd(opts))
	rootCmd.AddCommand(newEvaluateCmd(opts))
	rootCmd.AddCommand(newDiagnosticsCmd(opts))

	return rootCmd
}

// Execute runs the root command and reports failures on stderr.
func Execute() int {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// load resolves settings from file, environment and flags, in that order.
func (o *rootOptions) load(cmd *cobra.Command) error {
	path := strings.TrimSpace(o.SettingsPath)
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolve user home: %w", err)
		}
		path = defaultPath
	}

	settings, err := config.NewJSONStore(path).Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings, os.Getenv)
	if strings.TrimSpace(o.APIBaseURL) != "" {
		settings.APIBaseURL = passport.NormalizeBaseURL(o.APIBaseURL)
	}
	if strings.TrimSpace(o.LogLevel) != "" {
		settings.LogLevel = o.LogLevel
	}

	o.settings = settings
	o.logger = logging.New(logging.Options{
		Out:     cmd.ErrOrStderr(),
		JSON:    o.JSON,
		NoColor: !isTerminal(cmd.ErrOrStderr()),
		Level:   settings.LogLevel,
	})
	return nil
}

// client opens an API client for the resolved settings.
func (o *rootOptions) client() *passport.Client {
	return passport.NewClient(o.settings.APIBaseURL, o.logger)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
