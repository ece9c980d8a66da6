package app

import "cropadviser/pkg/domain"

// Home routes served by the web client. The server reports the path on login
// so every client resolves roles the same way.
const (
	HomeAdmin      = "/admin"
	HomeAgent      = "/agent-dashboard"
	HomeResearcher = "/research-dashboard"
	HomeFarmer     = "/dashboard"
)

// HomePath maps a user level to its landing route. Unknown levels land on the
// farmer dashboard.
func HomePath(level domain.UserLevel) string {
	switch level {
	case domain.LevelAdmin:
		return HomeAdmin
	case domain.LevelAgent:
		return HomeAgent
	case domain.LevelResearcher:
		return HomeResearcher
	default:
		return HomeFarmer
	}
}
