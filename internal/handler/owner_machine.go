package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

// machineView is a machine with its localized content inlined.
type machineView struct {
	*model.Machine
	LocalizedContent []model.LocalizedContent `json:"localized_content"`
}

func newMachineView(m *model.Machine, content []model.LocalizedContent) machineView {
	if content == nil {
		content = []model.LocalizedContent{}
	}
	return machineView{Machine: m, LocalizedContent: content}
}

type contentReq struct {
	LanguageCode    string  `json:"language_code"`
	InstructionText *string `json:"instruction_text"`
	SafetyText      *string `json:"safety_text"`
}

type machineReq struct {
	Name             *string      `json:"name"`
	HowToUseVideoURL *string      `json:"how_to_use_video_url"`
	LocalVideoPath   *string      `json:"local_video_path"`
	SafetyTips       *string      `json:"safety_tips"`
	UsageGuide       *string      `json:"usage_guide"`
	LocalizedContent []contentReq `json:"localized_content"`
}

// content converts the request rows.  nil means "not supplied".
func (r machineReq) content() ([]model.LocalizedContent, bool) {
	if r.LocalizedContent == nil {
		return nil, true
	}
	ok := true
	out := lo.Map(r.LocalizedContent, func(c contentReq, _ int) model.LocalizedContent {
		code := strings.ToLower(strings.TrimSpace(c.LanguageCode))
		if code == "" {
			ok = false
		}
		return model.LocalizedContent{LanguageCode: code, InstructionText: c.InstructionText, SafetyText: c.SafetyText}
	})
	return out, ok
}

// CreateMachine handles POST /api/gym/machines.
func (h *OwnerHandler) CreateMachine(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var body machineReq
	if err := c.Bind(&body); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	name := trimmed(body.Name)
	if name == nil {
		return message(c, http.StatusBadRequest, "Machine name is required")
	}
	content, ok := body.content()
	if !ok {
		return message(c, http.StatusBadRequest, "language_code is required for localized content")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	g, err := h.Gyms.GetByOwner(ctx, p.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	m := &model.Machine{
		GymID:            g.ID,
		Name:             *name,
		HowToUseVideoURL: trimmed(body.HowToUseVideoURL),
		LocalVideoPath:   trimmed(body.LocalVideoPath),
		SafetyTips:       trimmed(body.SafetyTips),
		UsageGuide:       trimmed(body.UsageGuide),
	}
	if err := h.Machines.CreateWithContent(ctx, m, content); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Machine created successfully",
		"machine": newMachineView(m, content),
	})
}

// ListMachines handles GET /api/gym/machines.
func (h *OwnerHandler) ListMachines(c echo.Context) error {
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
	machines, err := h.Machines.ListByGym(ctx, g.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	content, err := h.Machines.ContentByGym(ctx, g.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	views := lo.Map(machines, func(m *model.Machine, _ int) machineView {
		return newMachineView(m, content[m.ID])
	})
	return c.JSON(http.StatusOK, echo.Map{"machines": views})
}

// UpdateMachine handles PUT /api/gym/machines/:id.  Supplied fields
// overwrite; a supplied localized_content list replaces all existing rows.
func (h *OwnerHandler) UpdateMachine(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := pathID(c, "id")
	if !ok {
		return message(c, http.StatusBadRequest, "Invalid machine id")
	}
	var body machineReq
	if err := c.Bind(&body); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	content, ok := body.content()
	if !ok {
		return message(c, http.StatusBadRequest, "language_code is required for localized content")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	g, err := h.Gyms.GetByOwner(ctx, p.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	m, err := h.Machines.GetByIDAndGym(ctx, id, g.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if body.Name != nil {
		name := trimmed(body.Name)
		if name == nil {
			return message(c, http.StatusBadRequest, "Machine name cannot be empty")
		}
		m.Name = *name
	}
	for dst, src := range map[**string]*string{
		&m.HowToUseVideoURL: body.HowToUseVideoURL,
		&m.LocalVideoPath:   body.LocalVideoPath,
		&m.SafetyTips:       body.SafetyTips,
		&m.UsageGuide:       body.UsageGuide,
	} {
		if src != nil {
			*dst = trimmed(src)
		}
	}
	if err := h.Machines.UpdateWithContent(ctx, m, content); err != nil {
		return respondError(c, h.Log, err)
	}
	if content == nil {
		if content, err = h.Machines.ListContent(ctx, m.ID); err != nil {
			return respondError(c, h.Log, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Machine updated successfully",
		"machine": newMachineView(m, content),
	})
}

// DeleteMachine handles DELETE /api/gym/machines/:id.
func (h *OwnerHandler) DeleteMachine(c echo.Context) error {
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
	g, err := h.Gyms.GetByOwner(ctx, p.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if err := h.Machines.DeleteByIDAndGym(ctx, id, g.ID); err != nil {
		return respondError(c, h.Log, err)
	}
	h.Log.Info("machine deleted", zap.Uint64("machine_id", id), zap.Uint64("gym_id", g.ID))
	return message(c, http.StatusOK, "Machine deleted successfully")
}
