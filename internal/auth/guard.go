package auth

import "battery-passport/internal/domain"

const (
	PathLogin           = "/login"
	PathHome            = "/"
	PathBatteryInfo     = "/battery-info"
	PathRecommendations = "/battery-recommendations"
	PathBatteryStatus   = "/battery-status"
)

// Decision is the outcome of a route check.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// routeRoles lists the roles allowed on protected routes. An empty list
// admits any signed-in user.
var routeRoles = map[string][]domain.Role{
	PathBatteryInfo:     {domain.RoleGarage},
	PathRecommendations: {domain.RoleRecycler},
	PathBatteryStatus:   nil,
}

// Authorize decides whether user may see a page restricted to allowed.
func Authorize(user *domain.User, allowed []domain.Role) Decision {
	if user == nil {
		return Decision{RedirectTo: PathLogin}
	}
	if len(allowed) == 0 {
		return Decision{Allowed: true}
	}
	for _, role := range allowed {
		if user.Role == role {
			return Decision{Allowed: true}
		}
	}
	return Decision{RedirectTo: PathHome}
}

// AuthorizePath applies the route table. Paths outside it are public.
func AuthorizePath(user *domain.User, path string) Decision {
	allowed, protected := routeRoles[path]
	if !protected {
		return Decision{Allowed: true}
	}
	return Authorize(user, allowed)
}

// HomePath returns the landing page for a role.
func HomePath(role domain.Role) string {
	switch role {
	case domain.RoleGarage:
		return PathBatteryInfo
	case domain.RoleRecycler:
		return PathRecommendations
	default:
		return PathHome
	}
}
