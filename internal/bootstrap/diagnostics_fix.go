package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	"battery-passport/internal/config"
	"battery-passport/internal/domain"
	"battery-passport/internal/qr"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// installFFmpeg is swapped in tests to avoid touching the host.
var installFFmpeg = installFFmpegForCurrentOS

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case "tool_ffmpeg":
		fixErr = installFFmpeg()
	case "camera_device":
		fixErr = fmt.Errorf("camera %q is not reachable: connect a camera, grant camera permission or pick another device in settings", settings.CameraDevice)
	case "barcode_formats":
		settings, settingsChanged = fixFormats(settings)
	case "api_base_url":
		settings, settingsChanged = fixAPIBaseURL(settings)
	case "data_dir":
		settings, settingsChanged, fixErr = installOrFixDataDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
		a.applySettings(settings)
		return a.GetDiagnostics(), fixErr
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	settings = a.withEnv(settings)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

func fixFormats(settings domain.Settings) (domain.Settings, bool) {
	if qr.CheckFormats(settings.Formats) == nil {
		return settings, false
	}
	settings.Formats = []string{qr.FormatQRCode}
	return settings, true
}

func fixAPIBaseURL(settings domain.Settings) (domain.Settings, bool) {
	defaults := config.DefaultSettings()
	if settings.APIBaseURL == defaults.APIBaseURL {
		return settings, false
	}
	settings.APIBaseURL = defaults.APIBaseURL
	return settings, true
}

func installOrFixDataDir(settings domain.Settings) (domain.Settings, bool, error) {
	dataDir := strings.TrimSpace(settings.DataDir)
	changed := false
	if dataDir == "" {
		dataDir = config.DefaultSettings().DataDir
		settings.DataDir = dataDir
		changed = true
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	return settings, changed, nil
}

func ffmpegInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

func installFFmpegForCurrentOS() error {
	if err := runFirstSuccessfulInstall(ffmpegInstallOptions(goruntime.GOOS)); err != nil {
		return fmt.Errorf("install ffmpeg: %w", err)
	}
	if err := requireToolsOnPath("ffmpeg"); err != nil {
		return fmt.Errorf("verify ffmpeg on PATH: %w", err)
	}
	return nil
}

func runFirstSuccessfulInstall(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		err := runInstallCommands(option.commands)
		if err == nil {
			return nil
		}
		errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func runInstallCommands(commands [][]string) error {
	for _, command := range commands {
		if err := runCommandWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

func runCommandWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if goruntime.GOOS == "linux" && requiresElevation(command[0]) {
		if commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := runCommand(candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func requireToolsOnPath(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
