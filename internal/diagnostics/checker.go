package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"battery-passport/internal/domain"
	"battery-passport/internal/qr"
)

// fixableItems lists checks with an automated remediation.
var fixableItems = map[string]bool{
	"tool_ffmpeg":     true,
	"barcode_formats": true,
	"api_base_url":    true,
	"data_dir":        true,
}

// Checker validates external tools, the camera and required paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	goos       string
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		goos:       runtime.GOOS,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg"),
		c.checkCamera(settings.CameraDevice),
		c.checkFormats(settings.Formats),
		c.checkAPIBaseURL(settings.APIBaseURL),
		c.checkDataDir(settings.DataDir),
	}

	for i := range items {
		items[i].Fixable = items[i].Status == domain.DiagnosticStatusFail && fixableItems[items[i].ID]
	}

	report := domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		Items:       items,
	}
	report.HasFailures = len(report.Failures()) > 0
	return report
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install it and ensure the binary is available on PATH before scanning a battery QR code.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkCamera verifies the capture device node exists where the platform exposes one.
func (c *Checker) checkCamera(device string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "camera_device",
		Name: "Camera",
	}

	device = strings.TrimSpace(device)
	if device == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Camera device is empty."
		item.Hint = "Set the camera device in settings, for example /dev/video0."
		return item
	}

	if c.goos != "linux" || !strings.HasPrefix(device, "/") {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Camera %q is resolved by ffmpeg when a scan starts.", device)
		return item
	}

	if _, err := c.stat(device); err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, fs.ErrNotExist) {
			item.Message = fmt.Sprintf("Camera device does not exist: %s", device)
		} else {
			item.Message = fmt.Sprintf("Cannot access camera device: %s", device)
		}
		item.Hint = "Connect a camera or grant access to the video group."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Camera device found: %s", device)
	return item
}

// checkFormats validates the barcode formats requested from the detector.
func (c *Checker) checkFormats(formats []string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "barcode_formats",
		Name: "QR detection",
	}

	if err := qr.CheckFormats(formats); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = err.Error()
		item.Hint = fmt.Sprintf("Only %s is supported.", qr.FormatQRCode)
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Detecting: %s", strings.Join(formats, ", "))
	return item
}

// checkAPIBaseURL validates the backend address is an absolute http(s) URL.
func (c *Checker) checkAPIBaseURL(raw string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "api_base_url",
		Name: "Passport API",
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Invalid API base URL: %q", raw)
		item.Hint = "Use an absolute URL such as http://localhost:5001."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Using %s", u.String())
	return item
}

// checkDataDir validates data directory existence and write access.
func (c *Checker) checkDataDir(dataDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "data_dir",
		Name: "Data directory",
	}

	if strings.TrimSpace(dataDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Data directory is empty."
		item.Hint = "Set a directory where the dashboard can keep its local database."
		return item
	}

	if err := c.mkdirAll(dataDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create data directory: %s", dataDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dataDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Data directory is not writable: %s", dataDir)
		item.Hint = "Choose a writable directory for the local database."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dataDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	goos string,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		goos:       goos,
	}
}
