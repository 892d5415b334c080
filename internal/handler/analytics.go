package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/service"
)

// StatsReader is the analytics service.
type StatsReader interface {
	Overview(ctx context.Context, ownerID uint64, days int) (*model.Overview, error)
	MachineUsage(ctx context.Context, ownerID uint64, days int) ([]model.MachineScanCount, error)
	DailyScans(ctx context.Context, ownerID uint64, days int) ([]model.DailyScanCount, error)
	PopularMachines(ctx context.Context, ownerID uint64, days, limit int) ([]model.MachineScanCount, error)
}

// AnalyticsHandler serves the owner analytics endpoints.
type AnalyticsHandler struct {
	Stats StatsReader
	Log   *zap.Logger
}

func NewAnalyticsHandler(stats StatsReader, log *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{Stats: stats, Log: log.Named("analytics")}
}

// nonNegative parses an optional non-negative integer query parameter.
func nonNegative(c echo.Context, name string, def int) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// window reads ?days=, defaulting to 30.
func window(c echo.Context) (int, bool) {
	return nonNegative(c, "days", service.DefaultWindowDays)
}

// Overview handles GET /api/analytics/overview.
func (h *AnalyticsHandler) Overview(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	days, ok := window(c)
	if !ok {
		return message(c, http.StatusBadRequest, "days must be a non-negative integer")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	o, err := h.Stats.Overview(ctx, p.ID, days)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, o)
}

// MachineUsage handles GET /api/analytics/machine-usage.
func (h *AnalyticsHandler) MachineUsage(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	days, ok := window(c)
	if !ok {
		return message(c, http.StatusBadRequest, "days must be a non-negative integer")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	usage, err := h.Stats.MachineUsage(ctx, p.ID, days)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"machine_usage": usage, "date_range_days": days})
}

// DailyScans handles GET /api/analytics/daily-scans.
func (h *AnalyticsHandler) DailyScans(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	days, ok := window(c)
	if !ok {
		return message(c, http.StatusBadRequest, "days must be a non-negative integer")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	daily, err := h.Stats.DailyScans(ctx, p.ID, days)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"daily_scans": daily, "date_range_days": days})
}

// PopularMachines handles GET /api/analytics/popular-machines.
func (h *AnalyticsHandler) PopularMachines(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	days, ok := window(c)
	if !ok {
		return message(c, http.StatusBadRequest, "days must be a non-negative integer")
	}
	limit, ok := nonNegative(c, "limit", service.DefaultPopularLimit)
	if !ok {
		return message(c, http.StatusBadRequest, "limit must be a non-negative integer")
	}
	limit = min(limit, service.MaxPopularLimit)

	ctx, cancel := reqCtx(c)
	defer cancel()
	popular, err := h.Stats.PopularMachines(ctx, p.ID, days, limit)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"popular_machines": popular, "date_range_days": days, "limit": limit})
}
