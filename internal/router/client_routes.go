package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitcode-qr/internal/handler"
)

// RegisterClient registers client-scoped endpoints.  All routes require a
// client token.  Clients scan codes, bookmark machines and read their own
// scan history.
func RegisterClient(api *echo.Group, g Guards, q *handler.QRHandler, h *handler.ClientHandler) {
	client := []echo.MiddlewareFunc{g.Client, g.RateLimit}

	api.POST("/qr/scan", q.Scan, client...)

	cg := api.Group("/client", client...)
	cg.POST("/bookmarks", h.AddBookmark)
	cg.GET("/bookmarks", h.ListBookmarks)
	cg.DELETE("/bookmarks/:machine_id", h.RemoveBookmark)
	cg.GET("/scan-history", h.ScanHistory)
	cg.GET("/machine/:id", h.MachineDetails)
}
