package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

const (
	qScanInsert     = "INSERT INTO scan_history (client_id, machine_id, scan_timestamp) VALUES (?, ?, ?)"
	qScanCountByCli = "SELECT COUNT(*) FROM scan_history WHERE client_id = ?"
	qScanListByCli  = `SELECT s.id, s.client_id, s.machine_id, s.scan_timestamp,
	    m.id, m.gym_id, m.name, m.how_to_use_video_url, m.local_video_path, m.safety_tips, m.usage_guide, m.created_at,
	    g.id, g.owner_id, g.name, g.logo_url, g.contact_info, g.created_at
	    FROM scan_history s
	    JOIN gym_machines m ON m.id = s.machine_id
	    JOIN gyms g ON g.id = m.gym_id
	    WHERE s.client_id = ?
	    ORDER BY s.scan_timestamp DESC, s.id DESC
	    LIMIT ? OFFSET ?`
)

// ScanEntry is one row of a client's scan history.
type ScanEntry struct {
	Event model.ScanEvent
	model.MachineActivity
}

// ScanRepo appends to and reads the scan_history log.
type ScanRepo struct {
	db *sql.DB
}

func NewScanRepo(db *sql.DB) *ScanRepo {
	return &ScanRepo{db: db}
}

// RecordScan appends one scan event and reads the machine's localized
// content in the same transaction.  If either step fails nothing is
// committed and no content is returned.
func (r *ScanRepo) RecordScan(ctx context.Context, clientID, machineID uint64, at time.Time) (*model.ScanEvent, []model.LocalizedContent, error) {
	ev := &model.ScanEvent{ClientID: clientID, MachineID: machineID, ScannedAt: at.UTC().Truncate(time.Second)}
	var content []model.LocalizedContent
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, qScanInsert, clientID, machineID, ev.ScannedAt)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		ev.ID = uint64(id)
		content, err = queryContent(ctx, tx, qContentByMach, machineID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return ev, content, nil
}

// ListByClient returns a page of the client's scans, newest first, and the
// total number of scans.
func (r *ScanRepo) ListByClient(ctx context.Context, clientID uint64, limit, offset int) ([]ScanEntry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, qScanCountByCli, clientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, qScanListByCli, clientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []ScanEntry{}
	for rows.Next() {
		var e ScanEntry
		m, g := &e.Machine, &e.Gym
		if err := rows.Scan(&e.Event.ID, &e.Event.ClientID, &e.Event.MachineID, &e.Event.ScannedAt,
			&m.ID, &m.GymID, &m.Name, &m.HowToUseVideoURL, &m.LocalVideoPath, &m.SafetyTips, &m.UsageGuide, &m.CreatedAt,
			&g.ID, &g.OwnerID, &g.Name, &g.LogoURL, &g.ContactInfo, &g.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
