package domain

// ScanState tracks the lifecycle of a single QR scan session.
type ScanState string

const (
	ScanStateIdle      ScanState = "idle"
	ScanStateAcquiring ScanState = "acquiring"
	ScanStatePolling   ScanState = "polling"
	ScanStateEnded     ScanState = "ended"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	APIBaseURL   string   `json:"apiBaseUrl"`
	CameraDevice string   `json:"cameraDevice"`
	CameraFormat string   `json:"cameraFormat,omitempty"`
	FrameRate    int      `json:"frameRate"`
	Formats      []string `json:"formats"`
	MarketID     string   `json:"marketId"`
	DataDir      string   `json:"dataDir"`
	LogLevel     string   `json:"logLevel"`
}

// Role identifies which part of the dashboard a user may reach.
type Role string

const (
	RoleGarage   Role = "garage"
	RoleRecycler Role = "recycler"
)

// Valid reports whether the role is one the dashboard knows.
func (r Role) Valid() bool {
	return r == RoleGarage || r == RoleRecycler
}

// User is the signed-in identity persisted between launches.
type User struct {
	Role Role `json:"role"`
}
