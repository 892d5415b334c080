package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitcode-qr/internal/handler"
)

// RegisterOwner registers the owner's gym, machine and QR endpoints.  All
// require an owner token.
func RegisterOwner(api *echo.Group, g Guards, o *handler.OwnerHandler, q *handler.QRHandler) {
	owner := []echo.MiddlewareFunc{g.Owner, g.RateLimit}

	// ---- Gym ----
	gym := api.Group("/gym", g.Owner, g.RateLimit, g.Invalidate)
	gym.POST("", o.CreateGym)
	gym.GET("", o.GetGym)
	gym.PUT("", o.UpdateGym)
	gym.DELETE("", o.DeleteGym)

	// ---- Machines ----
	gym.POST("/machines", o.CreateMachine)
	gym.GET("/machines", o.ListMachines)
	gym.PUT("/machines/:id", o.UpdateMachine)
	gym.DELETE("/machines/:id", o.DeleteMachine)

	// ---- QR codes ----
	api.POST("/qr/generate/:machine_id", q.Generate, owner...)
	api.GET("/qr/image/:machine_id", q.Image, owner...)
}
