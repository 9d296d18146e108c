package scan

import (
	"testing"

	"battery-passport/internal/domain"
)

// TestIsValidTransition checks the scan session state machine edges.
func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to domain.ScanState
		want     bool
	}{
		{domain.ScanStateIdle, domain.ScanStateAcquiring, true},
		{domain.ScanStateIdle, domain.ScanStatePolling, false},
		{domain.ScanStateAcquiring, domain.ScanStatePolling, true},
		{domain.ScanStateAcquiring, domain.ScanStateEnded, true},
		{domain.ScanStatePolling, domain.ScanStateEnded, true},
		{domain.ScanStatePolling, domain.ScanStateAcquiring, false},
		{domain.ScanStateEnded, domain.ScanStateAcquiring, true},
		{domain.ScanStateEnded, domain.ScanStatePolling, false},
		{domain.ScanStateEnded, domain.ScanStateIdle, false},
	}

	for _, tt := range tests {
		if got := isValidTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("isValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

// TestUserMessage verifies each sentinel has a distinct user-facing message.
func TestUserMessage(t *testing.T) {
	if UserMessage(nil) != "" {
		t.Fatal("nil error should have empty message")
	}
	seen := map[string]bool{}
	for _, err := range []error{ErrUnsupported, ErrCameraUnavailable, ErrUnreadable} {
		msg := UserMessage(err)
		if msg == "" || seen[msg] {
			t.Fatalf("message for %v = %q, want distinct non-empty", err, msg)
		}
		seen[msg] = true
	}
}
