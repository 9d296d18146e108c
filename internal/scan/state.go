package scan

import "battery-passport/internal/domain"

// isActive reports whether a state holds a live session.
func isActive(state domain.ScanState) bool {
	return state == domain.ScanStateAcquiring || state == domain.ScanStatePolling
}

// isValidTransition enforces the allowed scan session state machine edges.
func isValidTransition(from, to domain.ScanState) bool {
	switch from {
	case domain.ScanStateIdle, domain.ScanStateEnded:
		return to == domain.ScanStateAcquiring
	case domain.ScanStateAcquiring:
		return to == domain.ScanStatePolling || to == domain.ScanStateEnded
	case domain.ScanStatePolling:
		return to == domain.ScanStateEnded
	default:
		return false
	}
}
