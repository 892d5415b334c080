package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitcode-qr/internal/handler"
	"github.com/iliyamo/fitcode-qr/internal/model"
)

// Guards are the middleware chains applied per audience.  Owner, Client
// and Either authenticate; RateLimit runs after authentication so buckets
// are keyed by principal; Cache fronts the analytics reads and Invalidate
// retires them after an owner changes the gym or its machines.
type Guards struct {
	Owner      echo.MiddlewareFunc
	Client     echo.MiddlewareFunc
	Either     echo.MiddlewareFunc
	RateLimit  echo.MiddlewareFunc
	Cache      echo.MiddlewareFunc
	Invalidate echo.MiddlewareFunc
}

// Handlers bundles every handler the API exposes.
type Handlers struct {
	Auth      *handler.AuthHandler
	Owner     *handler.OwnerHandler
	QR        *handler.QRHandler
	Client    *handler.ClientHandler
	Analytics *handler.AnalyticsHandler
	Health    echo.HandlerFunc
}

// RegisterRoutes mounts the whole API under /api.
func RegisterRoutes(e *echo.Echo, g Guards, h Handlers) {
	api := e.Group("/api")
	RegisterPublic(api, g, h)
	RegisterAuth(api, g, h.Auth)
	RegisterOwner(api, g, h.Owner, h.QR)
	RegisterAnalytics(api, g, h.Analytics)
	RegisterClient(api, g, h.QR, h.Client)
}

// RegisterPublic registers routes that need no token.
func RegisterPublic(api *echo.Group, g Guards, h Handlers) {
	api.GET("/health", h.Health)
	api.GET("/qr/validate/:token", h.QR.Validate, g.RateLimit)
}

// RegisterAuth registers registration, login and token verification.
// Register and login are rate limited by IP since no principal exists yet.
func RegisterAuth(api *echo.Group, g Guards, a *handler.AuthHandler) {
	auth := api.Group("/auth")
	auth.POST("/register/owner", a.Register(model.RoleOwner), g.RateLimit)
	auth.POST("/register/client", a.Register(model.RoleClient), g.RateLimit)
	auth.POST("/login/owner", a.Login(model.RoleOwner), g.RateLimit)
	auth.POST("/login/client", a.Login(model.RoleClient), g.RateLimit)
	auth.POST("/verify-token", a.VerifyToken, g.Either, g.RateLimit)
}
