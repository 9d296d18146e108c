package domain

import "time"

// DiagnosticStatus is the outcome of one environment check.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one check of the scanning environment. Fixable items can
// be repaired through InstallOrFixDiagnostic.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
	Fixable bool             `json:"fixable,omitempty"`
}

// DiagnosticReport collects the checks run against one set of settings.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Items       []DiagnosticItem `json:"items"`
}

// Failures returns the failed items in report order.
func (r DiagnosticReport) Failures() []DiagnosticItem {
	var failed []DiagnosticItem
	for _, item := range r.Items {
		if item.Status == DiagnosticStatusFail {
			failed = append(failed, item)
		}
	}
	return failed
}
