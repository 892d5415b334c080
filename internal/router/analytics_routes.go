package router

// Analytics routes are kept apart from the other owner routes because they
// are the only ones served through the response cache.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitcode-qr/internal/handler"
)

// RegisterAnalytics registers the owner analytics reads.  The cache runs
// after authentication so entries are keyed by owner.
func RegisterAnalytics(api *echo.Group, g Guards, a *handler.AnalyticsHandler) {
	stats := api.Group("/analytics", g.Owner, g.RateLimit, g.Cache)
	stats.GET("/overview", a.Overview)
	stats.GET("/machine-usage", a.MachineUsage)
	stats.GET("/daily-scans", a.DailyScans)
	stats.GET("/popular-machines", a.PopularMachines)
}
