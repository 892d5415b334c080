package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

const (
	qMarkExists = "SELECT EXISTS(SELECT 1 FROM bookmarked_machines WHERE client_id = ? AND machine_id = ?)"
	qMarkInsert = "INSERT INTO bookmarked_machines (client_id, machine_id, bookmark_timestamp) VALUES (?, ?, ?)"
	qMarkDelete = "DELETE FROM bookmarked_machines WHERE client_id = ? AND machine_id = ?"
	qMarkList   = `SELECT b.id, b.client_id, b.machine_id, b.bookmark_timestamp,
	    m.id, m.gym_id, m.name, m.how_to_use_video_url, m.local_video_path, m.safety_tips, m.usage_guide, m.created_at,
	    g.id, g.owner_id, g.name, g.logo_url, g.contact_info, g.created_at
	    FROM bookmarked_machines b
	    JOIN gym_machines m ON m.id = b.machine_id
	    JOIN gyms g ON g.id = m.gym_id
	    WHERE b.client_id = ?
	    ORDER BY b.bookmark_timestamp DESC, b.id DESC`
)

// BookmarkEntry is one bookmark with the machine and gym it points at.
type BookmarkEntry struct {
	Event model.BookmarkEvent
	model.MachineActivity
}

// BookmarkRepo stores client bookmarks.  (client_id, machine_id) is unique.
type BookmarkRepo struct {
	db *sql.DB
}

func NewBookmarkRepo(db *sql.DB) *BookmarkRepo {
	return &BookmarkRepo{db: db}
}

// Create bookmarks machineID for clientID.  A second bookmark of the same
// pair yields ErrBookmarkExists, whether caught by the pre-check or by the
// unique index.
func (r *BookmarkRepo) Create(ctx context.Context, clientID, machineID uint64) (*model.BookmarkEvent, error) {
	ev := &model.BookmarkEvent{ClientID: clientID, MachineID: machineID, BookmarkedAt: time.Now().UTC().Truncate(time.Second)}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, qMarkExists, clientID, machineID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrBookmarkExists
		}
		res, err := tx.ExecContext(ctx, qMarkInsert, clientID, machineID, ev.BookmarkedAt)
		if err != nil {
			if isDuplicateKey(err) {
				return ErrBookmarkExists
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		ev.ID = uint64(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Exists reports whether the client has bookmarked the machine.
func (r *BookmarkRepo) Exists(ctx context.Context, clientID, machineID uint64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, qMarkExists, clientID, machineID).Scan(&exists)
	return exists, err
}

// Delete removes a bookmark or returns ErrBookmarkNotFound.
func (r *BookmarkRepo) Delete(ctx context.Context, clientID, machineID uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, qMarkDelete, clientID, machineID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrBookmarkNotFound
		}
		return nil
	})
}

// ListByClient returns the client's bookmarks, newest first.
func (r *BookmarkRepo) ListByClient(ctx context.Context, clientID uint64) ([]BookmarkEntry, error) {
	rows, err := r.db.QueryContext(ctx, qMarkList, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []BookmarkEntry{}
	for rows.Next() {
		var e BookmarkEntry
		m, g := &e.Machine, &e.Gym
		if err := rows.Scan(&e.Event.ID, &e.Event.ClientID, &e.Event.MachineID, &e.Event.BookmarkedAt,
			&m.ID, &m.GymID, &m.Name, &m.HowToUseVideoURL, &m.LocalVideoPath, &m.SafetyTips, &m.UsageGuide, &m.CreatedAt,
			&g.ID, &g.OwnerID, &g.Name, &g.LogoURL, &g.ContactInfo, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
