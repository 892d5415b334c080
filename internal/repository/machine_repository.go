package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

const (
	qMachineColumns = "id, gym_id, name, how_to_use_video_url, local_video_path, safety_tips, usage_guide, created_at"
	qMachineByID    = "SELECT " + qMachineColumns + " FROM gym_machines WHERE id = ?"
	qMachineByGym   = "SELECT " + qMachineColumns + " FROM gym_machines WHERE id = ? AND gym_id = ?"
	qMachineList    = "SELECT " + qMachineColumns + " FROM gym_machines WHERE gym_id = ? ORDER BY id"
	qMachineInsert  = `INSERT INTO gym_machines
	    (gym_id, name, how_to_use_video_url, local_video_path, safety_tips, usage_guide, created_at)
	    VALUES (?, ?, ?, ?, ?, ?, ?)`
	qMachineUpdate = `UPDATE gym_machines SET name = ?, how_to_use_video_url = ?, local_video_path = ?,
	    safety_tips = ?, usage_guide = ? WHERE id = ? AND gym_id = ?`

	qContentColumns  = "id, machine_id, language_code, instruction_text, safety_text, created_at"
	qContentByMach   = "SELECT " + qContentColumns + " FROM multilingual_content WHERE machine_id = ? ORDER BY id"
	qContentByGym    = "SELECT c.id, c.machine_id, c.language_code, c.instruction_text, c.safety_text, c.created_at FROM multilingual_content c JOIN gym_machines m ON m.id = c.machine_id WHERE m.gym_id = ? ORDER BY c.id"
	qContentInsert   = "INSERT INTO multilingual_content (machine_id, language_code, instruction_text, safety_text, created_at) VALUES (?, ?, ?, ?, ?)"
	qContentDelete   = "DELETE FROM multilingual_content WHERE machine_id = ?"
	qMachineDelScans = "DELETE FROM scan_history WHERE machine_id = ?"
	qMachineDelMarks = "DELETE FROM bookmarked_machines WHERE machine_id = ?"
	qMachineDelQR    = "DELETE FROM qr_codes WHERE machine_id = ?"
	qMachineDelete   = "DELETE FROM gym_machines WHERE id = ? AND gym_id = ?"
)

// MachineRepo holds machines and their localized content.
type MachineRepo struct {
	db *sql.DB
}

func NewMachineRepo(db *sql.DB) *MachineRepo {
	return &MachineRepo{db: db}
}

func scanMachine(row interface{ Scan(...any) error }) (*model.Machine, error) {
	var m model.Machine
	err := row.Scan(&m.ID, &m.GymID, &m.Name, &m.HowToUseVideoURL, &m.LocalVideoPath,
		&m.SafetyTips, &m.UsageGuide, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMachineNotFound
		}
		return nil, err
	}
	return &m, nil
}

func queryContent(ctx context.Context, q querier, query string, arg any) ([]model.LocalizedContent, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.LocalizedContent{}
	for rows.Next() {
		var c model.LocalizedContent
		if err := rows.Scan(&c.ID, &c.MachineID, &c.LanguageCode, &c.InstructionText, &c.SafetyText, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertContent(ctx context.Context, tx *sql.Tx, machineID uint64, content []model.LocalizedContent, now time.Time) error {
	for i := range content {
		c := &content[i]
		c.MachineID = machineID
		c.CreatedAt = now
		res, err := tx.ExecContext(ctx, qContentInsert, machineID, c.LanguageCode, c.InstructionText, c.SafetyText, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		c.ID = uint64(id)
	}
	return nil
}

// CreateWithContent inserts a machine and its localized content in one
// transaction.  IDs are written back into m and content.
func (r *MachineRepo) CreateWithContent(ctx context.Context, m *model.Machine, content []model.LocalizedContent) error {
	now := time.Now().UTC().Truncate(time.Second)
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, qMachineInsert, m.GymID, m.Name, m.HowToUseVideoURL,
			m.LocalVideoPath, m.SafetyTips, m.UsageGuide, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		m.ID = uint64(id)
		m.CreatedAt = now
		return insertContent(ctx, tx, m.ID, content, now)
	})
}

// GetByID returns a machine regardless of gym.
func (r *MachineRepo) GetByID(ctx context.Context, id uint64) (*model.Machine, error) {
	return scanMachine(r.db.QueryRowContext(ctx, qMachineByID, id))
}

// GetByIDAndGym returns the machine only if it belongs to gymID.
func (r *MachineRepo) GetByIDAndGym(ctx context.Context, id, gymID uint64) (*model.Machine, error) {
	return scanMachine(r.db.QueryRowContext(ctx, qMachineByGym, id, gymID))
}

// ListByGym returns the gym's machines ordered by id.
func (r *MachineRepo) ListByGym(ctx context.Context, gymID uint64) ([]*model.Machine, error) {
	rows, err := r.db.QueryContext(ctx, qMachineList, gymID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Machine{}
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListContent returns every localized content row of a machine.
func (r *MachineRepo) ListContent(ctx context.Context, machineID uint64) ([]model.LocalizedContent, error) {
	return queryContent(ctx, r.db, qContentByMach, machineID)
}

// ContentByGym returns the localized content of all machines of a gym,
// keyed by machine id.
func (r *MachineRepo) ContentByGym(ctx context.Context, gymID uint64) (map[uint64][]model.LocalizedContent, error) {
	all, err := queryContent(ctx, r.db, qContentByGym, gymID)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64][]model.LocalizedContent)
	for _, c := range all {
		out[c.MachineID] = append(out[c.MachineID], c)
	}
	return out, nil
}

// UpdateWithContent overwrites the machine's fields.  When content is
// non-nil every existing localized row is deleted and replaced by it; a nil
// slice leaves the content untouched.
func (r *MachineRepo) UpdateWithContent(ctx context.Context, m *model.Machine, content []model.LocalizedContent) error {
	if _, err := r.GetByIDAndGym(ctx, m.ID, m.GymID); err != nil {
		return err
	}
	now := time.Now().UTC().Truncate(time.Second)
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, qMachineUpdate, m.Name, m.HowToUseVideoURL, m.LocalVideoPath,
			m.SafetyTips, m.UsageGuide, m.ID, m.GymID); err != nil {
			return err
		}
		if content == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, qContentDelete, m.ID); err != nil {
			return err
		}
		return insertContent(ctx, tx, m.ID, content, now)
	})
}

// DeleteByIDAndGym removes a machine with its scans, bookmarks, QR record
// and localized content.
func (r *MachineRepo) DeleteByIDAndGym(ctx context.Context, id, gymID uint64) error {
	if _, err := r.GetByIDAndGym(ctx, id, gymID); err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, q := range []string{qMachineDelScans, qMachineDelMarks, qMachineDelQR, qContentDelete} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, qMachineDelete, id, gymID)
		return err
	})
}
