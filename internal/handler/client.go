package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/repository"
)

// BookmarkStore is the bookmark repository as seen by clients.
type BookmarkStore interface {
	Create(ctx context.Context, clientID, machineID uint64) (*model.BookmarkEvent, error)
	Exists(ctx context.Context, clientID, machineID uint64) (bool, error)
	Delete(ctx context.Context, clientID, machineID uint64) error
	ListByClient(ctx context.Context, clientID uint64) ([]repository.BookmarkEntry, error)
}

// ScanHistory pages through a client's scans.
type ScanHistory interface {
	ListByClient(ctx context.Context, clientID uint64, limit, offset int) ([]repository.ScanEntry, int, error)
}

// GymReader loads a gym by id.
type GymReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Gym, error)
}

// ClientHandler serves bookmarks, scan history and machine details.
type ClientHandler struct {
	Bookmarks BookmarkStore
	Scans     ScanHistory
	Machines  MachineStore
	Gyms      GymReader
	Log       *zap.Logger
}

func NewClientHandler(bookmarks BookmarkStore, scans ScanHistory, machines MachineStore, gyms GymReader, log *zap.Logger) *ClientHandler {
	return &ClientHandler{Bookmarks: bookmarks, Scans: scans, Machines: machines, Gyms: gyms, Log: log.Named("client")}
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
	// maxPage keeps (page-1)*per_page well inside a MySQL OFFSET.
	maxPage = 1_000_000
)

type bookmarkView struct {
	ID                uint64        `json:"id"`
	BookmarkTimestamp time.Time     `json:"bookmark_timestamp"`
	Machine           model.Machine `json:"machine"`
	Gym               model.Gym     `json:"gym"`
}

type scanView struct {
	ID            uint64        `json:"id"`
	ScanTimestamp time.Time     `json:"scan_timestamp"`
	Machine       model.Machine `json:"machine"`
	Gym           model.Gym     `json:"gym"`
}

type pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

type bookmarkReq struct {
	MachineID uint64 `json:"machine_id"`
}

// AddBookmark handles POST /api/client/bookmarks.
func (h *ClientHandler) AddBookmark(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var body bookmarkReq
	if err := c.Bind(&body); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	if body.MachineID == 0 {
		return message(c, http.StatusBadRequest, "machine_id is required")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Machines.GetByID(ctx, body.MachineID); err != nil {
		return respondError(c, h.Log, err)
	}
	ev, err := h.Bookmarks.Create(ctx, p.ID, body.MachineID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "Machine bookmarked successfully", "bookmark": ev})
}

// ListBookmarks handles GET /api/client/bookmarks, newest first.
func (h *ClientHandler) ListBookmarks(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	entries, err := h.Bookmarks.ListByClient(ctx, p.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	views := lo.Map(entries, func(e repository.BookmarkEntry, _ int) bookmarkView {
		return bookmarkView{ID: e.Event.ID, BookmarkTimestamp: e.Event.BookmarkedAt, Machine: e.Machine, Gym: e.Gym}
	})
	return c.JSON(http.StatusOK, echo.Map{"bookmarks": views})
}

// RemoveBookmark handles DELETE /api/client/bookmarks/:machine_id.
func (h *ClientHandler) RemoveBookmark(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	machineID, ok := pathID(c, "machine_id")
	if !ok {
		return message(c, http.StatusBadRequest, "Invalid machine id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Bookmarks.Delete(ctx, p.ID, machineID); err != nil {
		return respondError(c, h.Log, err)
	}
	return message(c, http.StatusOK, "Bookmark removed successfully")
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(c echo.Context, name string, def int) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// ScanHistory handles GET /api/client/scan-history?page=&per_page=.
func (h *ClientHandler) ScanHistory(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	page := min(queryInt(c, "page", 1), maxPage)
	perPage := min(queryInt(c, "per_page", defaultPerPage), maxPerPage)

	ctx, cancel := reqCtx(c)
	defer cancel()
	entries, total, err := h.Scans.ListByClient(ctx, p.ID, perPage, (page-1)*perPage)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	pages := (total + perPage - 1) / perPage
	views := lo.Map(entries, func(e repository.ScanEntry, _ int) scanView {
		return scanView{ID: e.Event.ID, ScanTimestamp: e.Event.ScannedAt, Machine: e.Machine, Gym: e.Gym}
	})
	return c.JSON(http.StatusOK, echo.Map{
		"scan_history": views,
		"pagination": pagination{
			Page: page, PerPage: perPage, Total: total, Pages: pages,
			HasNext: page < pages, HasPrev: page > 1,
		},
	})
}

// MachineDetails handles GET /api/client/machine/:id.
func (h *ClientHandler) MachineDetails(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return message(c, http.StatusBadRequest, "Invalid machine id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Machines.GetByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	g, err := h.Gyms.GetByID(ctx, m.GymID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	content, err := h.Machines.ListContent(ctx, m.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	marked, err := h.Bookmarks.Exists(ctx, p.ID, m.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"machine":       newMachineView(m, content),
		"gym":           g,
		"is_bookmarked": marked,
	})
}
