package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/service"
)

// QRIssuer creates and renders machine QR codes.
type QRIssuer interface {
	Generate(ctx context.Context, ownerID, machineID uint64) (*model.QRToken, bool, error)
	RenderImage(ctx context.Context, ownerID, machineID uint64) ([]byte, error)
}

// TokenResolver checks and records scans.
type TokenResolver interface {
	Resolve(ctx context.Context, clientID uint64, token string) (*service.ScanBundle, error)
	Validate(ctx context.Context, token string) (*service.Resolution, error)
}

// QRHandler serves QR issuance, scanning and validation.
type QRHandler struct {
	Registry QRIssuer
	Resolver TokenResolver
	Log      *zap.Logger
}

func NewQRHandler(registry QRIssuer, resolver TokenResolver, log *zap.Logger) *QRHandler {
	return &QRHandler{Registry: registry, Resolver: resolver, Log: log.Named("qr")}
}

// Generate handles POST /api/qr/generate/:machine_id.  It answers 201 when
// the code is new and 200 with the same record on every later call.
func (h *QRHandler) Generate(c echo.Context) error {
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
	rec, created, err := h.Registry.Generate(ctx, p.ID, machineID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if created {
		return c.JSON(http.StatusCreated, echo.Map{"message": "QR code generated successfully", "qr_code": rec})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "QR code already exists", "qr_code": rec})
}

// Image handles GET /api/qr/image/:machine_id and streams a PNG.
func (h *QRHandler) Image(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	machineID, ok := pathID(c, "machine_id")
	if !ok {
		return message(c, http.StatusBadRequest, "Invalid machine id")
	}
	// rendering may include a logo download, so allow more than the
	// storage timeout
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()
	img, err := h.Registry.RenderImage(ctx, p.ID, machineID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.Blob(http.StatusOK, "image/png", img)
}

type scanReq struct {
	Token string `json:"token"`
}

type scanResp struct {
	Message          string                   `json:"message"`
	ScanID           uint64                   `json:"scan_id"`
	ScanTimestamp    time.Time                `json:"scan_timestamp"`
	Machine          *model.Machine           `json:"machine"`
	Gym              *model.Gym               `json:"gym"`
	LocalizedContent []model.LocalizedContent `json:"localized_content"`
}

// Scan handles POST /api/qr/scan for clients.
func (h *QRHandler) Scan(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var body scanReq
	if err := c.Bind(&body); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Resolver.Resolve(ctx, p.ID, body.Token)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	content := b.Content
	if content == nil {
		content = []model.LocalizedContent{}
	}
	return c.JSON(http.StatusOK, scanResp{
		Message:          "Scan successful",
		ScanID:           b.Scan.ID,
		ScanTimestamp:    b.Scan.ScannedAt,
		Machine:          b.Machine,
		Gym:              b.Gym,
		LocalizedContent: content,
	})
}

// Validate handles GET /api/qr/validate/:token.  It is public and records
// nothing; a rejected token is answered with valid=false and a message.
func (h *QRHandler) Validate(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Resolver.Validate(ctx, c.Param("token"))
	if err != nil {
		status, msg, ok := knownError(err)
		if !ok {
			return respondError(c, h.Log, err)
		}
		return c.JSON(status, echo.Map{"valid": false, "message": msg})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"valid":        true,
		"platform":     model.PlatformMarker,
		"machine_id":   res.Machine.ID,
		"machine_name": res.Machine.Name,
		"gym_id":       res.Gym.ID,
		"gym_name":     res.Gym.Name,
	})
}
