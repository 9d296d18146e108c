package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"battery-passport/internal/domain"
)

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	device := filepath.Join(root, "video0")
	if err := os.WriteFile(device, nil, 0o644); err != nil {
		t.Fatalf("write device: %v", err)
	}

	checker := NewCheckerForTests(
		"linux",
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		APIBaseURL:   "http://localhost:5001",
		CameraDevice: device,
		Formats:      []string{"qr_code"},
		DataDir:      filepath.Join(root, "data"),
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		"linux",
		func(string) (string, error) { return "", errors.New("not found") },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		APIBaseURL:   "localhost:5001",
		CameraDevice: "/dev/does-not-exist-video9",
		Formats:      []string{"ean_13"},
		DataDir:      "",
	})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "camera_device", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "barcode_formats", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "api_base_url", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "data_dir", domain.DiagnosticStatusFail)

	for _, item := range report.Items {
		wantFixable := item.ID != "camera_device"
		if item.Fixable != wantFixable {
			t.Fatalf("%s Fixable = %v, want %v", item.ID, item.Fixable, wantFixable)
		}
	}
	if got := len(report.Failures()); got != 5 {
		t.Fatalf("Failures() = %d, want 5", got)
	}
}

// TestCheckerCameraOnNonLinuxIsDeferred validates cameras without device nodes pass.
func TestCheckerCameraOnNonLinuxIsDeferred(t *testing.T) {
	checker := NewCheckerForTests(
		"darwin",
		func(name string) (string, error) { return "/opt/homebrew/bin/" + name, nil },
		func(string) (os.FileInfo, error) { return nil, os.ErrNotExist },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{CameraDevice: "0"})
	assertStatusByID(t, report, "camera_device", domain.DiagnosticStatusPass)
}

// TestCheckerDataDirNotWritable validates write-probe failures.
func TestCheckerDataDirNotWritable(t *testing.T) {
	checker := NewCheckerForTests(
		"linux",
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.Stat,
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, os.ErrPermission },
		os.Remove,
	)

	report := checker.Run(domain.Settings{DataDir: "/read-only"})
	assertStatusByID(t, report, "data_dir", domain.DiagnosticStatusFail)
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s (%s)", id, item.Status, want, item.Message)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
