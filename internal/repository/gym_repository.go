// Package repository contains data access logic separated from HTTP handlers.
// This file holds the gym queries.  An owner has at most one gym and every
// gym-scoped lookup goes through the owner id, so a gym id supplied by a
// caller is never trusted on its own.
package repository

import (
	"context"      // context carries deadlines and cancellation to DB calls
	"database/sql" // sql provides generic database operations and drivers
	"errors"
	"time"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

const (
	qGymColumns     = "id, owner_id, name, logo_url, contact_info, created_at"
	qGymByOwner     = "SELECT " + qGymColumns + " FROM gyms WHERE owner_id = ? LIMIT 1"
	qGymByID        = "SELECT " + qGymColumns + " FROM gyms WHERE id = ?"
	qGymOwnerExists = "SELECT EXISTS(SELECT 1 FROM gyms WHERE owner_id = ?)"
	qGymInsert      = "INSERT INTO gyms (owner_id, name, logo_url, contact_info, created_at) VALUES (?, ?, ?, ?, ?)"
	qGymUpdate      = "UPDATE gyms SET name = ?, logo_url = ?, contact_info = ? WHERE id = ? AND owner_id = ?"

	// cascade, children first
	qGymDeleteScans    = "DELETE FROM scan_history WHERE machine_id IN (SELECT id FROM gym_machines WHERE gym_id = ?)"
	qGymDeleteMarks    = "DELETE FROM bookmarked_machines WHERE machine_id IN (SELECT id FROM gym_machines WHERE gym_id = ?)"
	qGymDeleteContent  = "DELETE FROM multilingual_content WHERE machine_id IN (SELECT id FROM gym_machines WHERE gym_id = ?)"
	qGymDeleteQR       = "DELETE FROM qr_codes WHERE machine_id IN (SELECT id FROM gym_machines WHERE gym_id = ?)"
	qGymDeleteMachines = "DELETE FROM gym_machines WHERE gym_id = ?"
	qGymDelete         = "DELETE FROM gyms WHERE id = ?"
)

// GymRepo encapsulates all database queries related to gyms.
type GymRepo struct {
	db *sql.DB
}

// NewGymRepo constructs a GymRepo with the provided DB handle.
func NewGymRepo(db *sql.DB) *GymRepo {
	return &GymRepo{db: db}
}

func scanGym(row interface{ Scan(...any) error }) (*model.Gym, error) {
	var g model.Gym
	if err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.LogoURL, &g.ContactInfo, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGymNotFound
		}
		return nil, err
	}
	return &g, nil
}

// Create inserts a gym for g.OwnerID.  ErrGymExists is returned when the
// owner already has one; the unique key on gyms.owner_id settles a race
// between two concurrent creates.
func (r *GymRepo) Create(ctx context.Context, g *model.Gym) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, qGymOwnerExists, g.OwnerID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrGymExists
	}
	g.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx, qGymInsert, g.OwnerID, g.Name, g.LogoURL, g.ContactInfo, g.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrGymExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = uint64(id)
	return nil
}

// GetByOwner returns the owner's gym or ErrGymNotFound.
func (r *GymRepo) GetByOwner(ctx context.Context, ownerID uint64) (*model.Gym, error) {
	return scanGym(r.db.QueryRowContext(ctx, qGymByOwner, ownerID))
}

// GetByID returns a gym regardless of owner.
func (r *GymRepo) GetByID(ctx context.Context, id uint64) (*model.Gym, error) {
	return scanGym(r.db.QueryRowContext(ctx, qGymByID, id))
}

// Update overwrites the mutable fields of the owner's gym.
func (r *GymRepo) Update(ctx context.Context, g *model.Gym) error {
	res, err := r.db.ExecContext(ctx, qGymUpdate, g.Name, g.LogoURL, g.ContactInfo, g.ID, g.OwnerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 affected rows when nothing changed, so confirm
		// the row is really missing before failing.
		if _, err := r.GetByOwner(ctx, g.OwnerID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByOwner removes the owner's gym together with its machines, their
// QR records, localized content, scan history and bookmarks.  Either
// everything goes or nothing does.
func (r *GymRepo) DeleteByOwner(ctx context.Context, ownerID uint64) error {
	g, err := r.GetByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, q := range []string{
			qGymDeleteScans, qGymDeleteMarks, qGymDeleteContent,
			qGymDeleteQR, qGymDeleteMachines, qGymDelete,
		} {
			if _, err := tx.ExecContext(ctx, q, g.ID); err != nil {
				return err
			}
		}
		return nil
	})
}
