package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

// GymStore is the gym repository as seen by the owner endpoints.
type GymStore interface {
	Create(ctx context.Context, g *model.Gym) error
	GetByOwner(ctx context.Context, ownerID uint64) (*model.Gym, error)
	Update(ctx context.Context, g *model.Gym) error
	DeleteByOwner(ctx context.Context, ownerID uint64) error
}

// MachineStore is the machine repository as seen by the handlers.
type MachineStore interface {
	CreateWithContent(ctx context.Context, m *model.Machine, content []model.LocalizedContent) error
	GetByID(ctx context.Context, id uint64) (*model.Machine, error)
	GetByIDAndGym(ctx context.Context, id, gymID uint64) (*model.Machine, error)
	ListByGym(ctx context.Context, gymID uint64) ([]*model.Machine, error)
	ListContent(ctx context.Context, machineID uint64) ([]model.LocalizedContent, error)
	ContentByGym(ctx context.Context, gymID uint64) (map[uint64][]model.LocalizedContent, error)
	UpdateWithContent(ctx context.Context, m *model.Machine, content []model.LocalizedContent) error
	DeleteByIDAndGym(ctx context.Context, id, gymID uint64) error
}

// OwnerHandler serves the owner's gym and machine management.
type OwnerHandler struct {
	Gyms     GymStore
	Machines MachineStore
	Log      *zap.Logger
}

func NewOwnerHandler(gyms GymStore, machines MachineStore, log *zap.Logger) *OwnerHandler {
	if gyms == nil || machines == nil {
		panic("nil repository passed to NewOwnerHandler")
	}
	return &OwnerHandler{Gyms: gyms, Machines: machines, Log: log.Named("owner")}
}

type gymReq struct {
	Name        *string `json:"name"`
	LogoURL     *string `json:"logo_url"`
	ContactInfo *string `json:"contact_info"`
}

// trimmed returns nil for absent or blank optional strings.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// CreateGym handles POST /api/gym.  An owner may hold one gym.
func (h *OwnerHandler) CreateGym(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var body gymReq
	if err := c.Bind(&body); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	name := trimmed(body.Name)
	if name == nil {
		return message(c, http.StatusBadRequest, "Gym name is required")
	}
	g := &model.Gym{OwnerID: p.ID, Name: *name, LogoURL: trimmed(body.LogoURL), ContactInfo: trimmed(body.ContactInfo)}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Gyms.Create(ctx, g); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "Gym created successfully", "gym": g})
}

// GetGym handles GET /api/gym.
func (h *OwnerHandler) GetGym(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	g, err := h.Gyms.GetByOwner(ctx, p.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"gym": g})
}

// UpdateGym handles PUT /api/gym.  Only supplied fields change; an empty
// logo_url or contact_info clears the value.
func (h *OwnerHandler) UpdateGym(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var body gymReq
	if err := c.Bind(&body); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	g, err := h.Gyms.GetByOwner(ctx, p.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if body.Name != nil {
		name := trimmed(body.Name)
		if name == nil {
			return message(c, http.StatusBadRequest, "Gym name cannot be empty")
		}
		g.Name = *name
	}
	if body.LogoURL != nil {
		g.LogoURL = trimmed(body.LogoURL)
	}
	if body.ContactInfo != nil {
		g.ContactInfo = trimmed(body.ContactInfo)
	}
	if err := h.Gyms.Update(ctx, g); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Gym updated successfully", "gym": g})
}

// DeleteGym handles DELETE /api/gym and removes everything the gym owns.
func (h *OwnerHandler) DeleteGym(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Gyms.DeleteByOwner(ctx, p.ID); err != nil {
		return respondError(c, h.Log, err)
	}
	h.Log.Info("gym deleted", zap.Uint64("owner_id", p.ID))
	return message(c, http.StatusOK, "Gym deleted successfully")
}
