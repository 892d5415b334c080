package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/render"
	"github.com/iliyamo/fitcode-qr/internal/repository"
	"github.com/iliyamo/fitcode-qr/internal/security"
)

// QRRegistry issues and renders the single QR record of each machine.
type QRRegistry struct {
	gyms     GymStore
	machines MachineStore
	codes    QRStore
	sealer   PayloadSealer
	renderer ImageRenderer
	log      *zap.Logger

	// NewToken is swapped in tests.
	NewToken func() (string, error)

	inflight singleflight.Group
}

func NewQRRegistry(gyms GymStore, machines MachineStore, codes QRStore, sealer PayloadSealer, renderer ImageRenderer, log *zap.Logger) *QRRegistry {
	return &QRRegistry{
		gyms:     gyms,
		machines: machines,
		codes:    codes,
		sealer:   sealer,
		renderer: renderer,
		log:      log.Named("qr"),
		NewToken: security.NewBareToken,
	}
}

// ownedMachine returns the machine and gym if machineID belongs to the
// owner's gym.  Both "no gym" and "someone else's machine" surface as not
// found.
func (r *QRRegistry) ownedMachine(ctx context.Context, ownerID, machineID uint64) (*model.Machine, *model.Gym, error) {
	gym, err := r.gyms.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	m, err := r.machines.GetByIDAndGym(ctx, machineID, gym.ID)
	if err != nil {
		return nil, nil, err
	}
	return m, gym, nil
}

type generated struct {
	rec     *model.QRToken
	created bool
}

// Generate returns the machine's QR record, creating it on first use.
// created reports whether this call inserted the record.  Concurrent calls
// for one machine are collapsed; a conflict with another process is
// resolved by returning the record that won.
func (r *QRRegistry) Generate(ctx context.Context, ownerID, machineID uint64) (*model.QRToken, bool, error) {
	m, gym, err := r.ownedMachine(ctx, ownerID, machineID)
	if err != nil {
		return nil, false, err
	}

	v, err, _ := r.inflight.Do(strconv.FormatUint(m.ID, 10), func() (any, error) {
		if rec, err := r.codes.GetByMachine(ctx, m.ID); err == nil {
			return generated{rec: rec}, nil
		} else if !errors.Is(err, repository.ErrQRTokenNotFound) {
			return nil, err
		}

		token, err := r.NewToken()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		sealed, err := r.sealer.EncryptQRPayload(model.QRPayload{
			MachineID: m.ID,
			GymID:     gym.ID,
			Token:     token,
			Platform:  model.PlatformMarker,
		})
		if err != nil {
			return nil, fmt.Errorf("seal payload: %w", err)
		}
		rec := &model.QRToken{MachineID: m.ID, EncryptedPayload: sealed, Token: token}
		if err := r.codes.Create(ctx, rec); err != nil {
			if errors.Is(err, repository.ErrQRTokenExists) {
				existing, err := r.codes.GetByMachine(ctx, m.ID)
				if err != nil {
					return nil, err
				}
				return generated{rec: existing}, nil
			}
			return nil, err
		}
		r.log.Info("qr code issued", zap.Uint64("machine_id", m.ID), zap.Uint64("gym_id", gym.ID))
		return generated{rec: rec, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	g := v.(generated)
	return g.rec, g.created, nil
}

// RenderImage encodes the machine's bare token as a branded PNG.  The
// ciphertext never appears in the image.
func (r *QRRegistry) RenderImage(ctx context.Context, ownerID, machineID uint64) ([]byte, error) {
	m, gym, err := r.ownedMachine(ctx, ownerID, machineID)
	if err != nil {
		return nil, err
	}
	rec, err := r.codes.GetByMachine(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return r.renderer.Render(ctx, rec.Token, render.Branding{LogoURL: gym.LogoURL})
}
