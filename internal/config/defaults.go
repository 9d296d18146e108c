package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"battery-passport/internal/capture"
	"battery-passport/internal/domain"
	"battery-passport/internal/passport"
	"battery-passport/internal/qr"
)

// EnvAPIBaseURL overrides the configured backend address when set.
const EnvAPIBaseURL = "PASSPORT_API_BASE_URL"

// DefaultMarketID is the market context used for recycler evaluations.
const DefaultMarketID = "MKT_STD_2024"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		APIBaseURL:   passport.DefaultBaseURL,
		CameraDevice: capture.DefaultDevice(runtime.GOOS),
		FrameRate:    30,
		Formats:      []string{qr.FormatQRCode},
		MarketID:     DefaultMarketID,
		DataDir:      filepath.Join(homeDir, ".battery-passport"),
		LogLevel:     "info",
	}
}

// Normalize fills blank fields from defaults and tidies user input.
func Normalize(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	cfg.APIBaseURL = passport.NormalizeBaseURL(cfg.APIBaseURL)
	cfg.CameraDevice = strings.TrimSpace(cfg.CameraDevice)
	if cfg.CameraDevice == "" {
		cfg.CameraDevice = defaults.CameraDevice
	}
	cfg.CameraFormat = strings.TrimSpace(cfg.CameraFormat)
	if cfg.FrameRate < 0 {
		cfg.FrameRate = 0
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = defaults.Formats
	}
	cfg.MarketID = strings.TrimSpace(cfg.MarketID)
	if cfg.MarketID == "" {
		cfg.MarketID = defaults.MarketID
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaults.DataDir
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	return cfg
}

// ApplyEnv applies environment overrides on top of stored settings.
func ApplyEnv(cfg domain.Settings, getenv func(string) string) domain.Settings {
	if base := strings.TrimSpace(getenv(EnvAPIBaseURL)); base != "" {
		cfg.APIBaseURL = passport.NormalizeBaseURL(base)
	}
	return cfg
}
