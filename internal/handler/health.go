package handler // HTTP handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health returns a health-check endpoint used by load balancers and
// monitoring.  It answers 200 while the database responds and 503
// otherwise.  db may be nil to report process liveness only.
func Health(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unhealthy", "message": "Database unreachable"})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "healthy", "message": "FitCode API is running"})
	}
}
