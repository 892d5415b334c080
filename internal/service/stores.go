package service

import (
	"context"
	"time"

	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/render"
)

// GymStore is the subset of the gym repository used here.
type GymStore interface {
	GetByOwner(ctx context.Context, ownerID uint64) (*model.Gym, error)
	GetByID(ctx context.Context, id uint64) (*model.Gym, error)
}

// MachineStore is the subset of the machine repository used here.
type MachineStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Machine, error)
	GetByIDAndGym(ctx context.Context, id, gymID uint64) (*model.Machine, error)
	ListByGym(ctx context.Context, gymID uint64) ([]*model.Machine, error)
}

// QRStore persists QR records.
type QRStore interface {
	GetByMachine(ctx context.Context, machineID uint64) (*model.QRToken, error)
	GetByToken(ctx context.Context, token string) (*model.QRToken, error)
	Create(ctx context.Context, t *model.QRToken) error
}

// ScanStore appends scan events.  RecordScan must write the event and
// read the content atomically.
type ScanStore interface {
	RecordScan(ctx context.Context, clientID, machineID uint64, at time.Time) (*model.ScanEvent, []model.LocalizedContent, error)
}

// StatsStore runs the analytics aggregates.
type StatsStore interface {
	CountMachines(ctx context.Context, gymID uint64) (int, error)
	CountScans(ctx context.Context, gymID uint64) (int, error)
	CountScansSince(ctx context.Context, gymID uint64, since time.Time) (int, error)
	CountUniqueClientsSince(ctx context.Context, gymID uint64, since time.Time) (int, error)
	ScanCountsByMachineSince(ctx context.Context, gymID uint64, since time.Time) ([]model.MachineScanCount, error)
	DailyScansSince(ctx context.Context, gymID uint64, since time.Time) ([]model.DailyScanCount, error)
}

// PayloadSealer encrypts and decrypts QR payloads.
type PayloadSealer interface {
	EncryptQRPayload(p model.QRPayload) (string, error)
	DecryptQRPayload(ciphertext string) (model.QRPayload, error)
}

// ImageRenderer turns a string into image bytes.
type ImageRenderer interface {
	Render(ctx context.Context, content string, b render.Branding) ([]byte, error)
}

// StatsInvalidator retires cached analytics of a gym owner.
type StatsInvalidator interface {
	InvalidateOwner(ctx context.Context, ownerID uint64) error
}
