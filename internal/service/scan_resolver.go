package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/queue"
	"github.com/iliyamo/fitcode-qr/internal/repository"
)

// maxTokenLen matches the width of qr_codes.token.  Longer input cannot
// name a record and is rejected without touching storage.
const maxTokenLen = 255

// ScanBundle is what a client receives for a successful scan.
type ScanBundle struct {
	Machine *model.Machine
	Gym     *model.Gym
	Content []model.LocalizedContent
	Scan    *model.ScanEvent
}

// Resolution is the read-only outcome of checking a token.
type Resolution struct {
	Record  *model.QRToken
	Payload model.QRPayload
	Machine *model.Machine
	Gym     *model.Gym
}

// ScanResolver maps scanned bare tokens to machine content.
type ScanResolver struct {
	codes     QRStore
	sealer    PayloadSealer
	machines  MachineStore
	gyms      GymStore
	scans     ScanStore
	publisher EventPublisher
	log       *zap.Logger

	// Now is the clock used for scan timestamps.
	Now func() time.Time
	// Invalidator, when set, is told about every committed scan so the
	// owner's analytics reflect it.
	Invalidator StatsInvalidator
}

func NewScanResolver(codes QRStore, sealer PayloadSealer, machines MachineStore, gyms GymStore, scans ScanStore, publisher EventPublisher, log *zap.Logger) *ScanResolver {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &ScanResolver{
		codes:     codes,
		sealer:    sealer,
		machines:  machines,
		gyms:      gyms,
		scans:     scans,
		publisher: publisher,
		log:       log.Named("scan"),
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Validate checks a token without recording anything: lookup, decrypt,
// platform check, machine and gym resolution.  Surrounding whitespace is
// ignored on every path.
func (s *ScanResolver) Validate(ctx context.Context, token string) (*Resolution, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenRequired
	}
	if len(token) > maxTokenLen || !isASCII(token) {
		return nil, ErrInvalidQRCode
	}

	rec, err := s.codes.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrQRTokenNotFound) {
			return nil, ErrInvalidQRCode
		}
		return nil, err
	}
	// the column collation may fold case; only the exact token names a record
	if rec.Token != token {
		return nil, ErrInvalidQRCode
	}

	payload, err := s.sealer.DecryptQRPayload(rec.EncryptedPayload)
	if err != nil {
		s.log.Warn("qr payload rejected", zap.Uint64("qr_id", rec.ID), zap.Error(err))
		return nil, ErrInvalidQRCodeData
	}
	if payload.Token != rec.Token {
		s.log.Warn("qr payload bound to another token", zap.Uint64("qr_id", rec.ID))
		return nil, ErrInvalidQRCodeData
	}
	if payload.Platform != model.PlatformMarker {
		s.log.Warn("qr platform mismatch", zap.Uint64("qr_id", rec.ID), zap.String("platform", payload.Platform))
		return nil, ErrPlatformMismatch
	}

	m, err := s.machines.GetByID(ctx, payload.MachineID)
	if err != nil {
		return nil, err
	}
	gym, err := s.gyms.GetByID(ctx, m.GymID)
	if err != nil {
		return nil, err
	}
	return &Resolution{Record: rec, Payload: payload, Machine: m, Gym: gym}, nil
}

// Resolve validates token, appends one scan event for clientID and returns
// the machine bundle.  Nothing is recorded for a rejected token, and no
// content is returned unless the event committed.
func (s *ScanResolver) Resolve(ctx context.Context, clientID uint64, token string) (*ScanBundle, error) {
	res, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	ev, content, err := s.scans.RecordScan(ctx, clientID, res.Machine.ID, s.Now())
	if err != nil {
		return nil, fmt.Errorf("record scan: %w", err)
	}

	if s.Invalidator != nil {
		if err := s.Invalidator.InvalidateOwner(context.WithoutCancel(ctx), res.Gym.OwnerID); err != nil {
			s.log.Warn("analytics cache not invalidated", zap.Uint64("owner_id", res.Gym.OwnerID), zap.Error(err))
		}
	}

	s.publisher.PublishScan(queue.ScanRecordedEvent{
		ScanID:      ev.ID,
		ClientID:    clientID,
		MachineID:   res.Machine.ID,
		MachineName: res.Machine.Name,
		GymID:       res.Gym.ID,
		GymName:     res.Gym.Name,
		ScannedAt:   ev.ScannedAt.UTC().Format(time.RFC3339),
	})
	return &ScanBundle{Machine: res.Machine, Gym: res.Gym, Content: content, Scan: ev}, nil
}

// isASCII reports whether token can be stored in the ascii token column.
func isASCII(token string) bool {
	for i := 0; i < len(token); i++ {
		if token[i] >= 0x80 {
			return false
		}
	}
	return true
}
