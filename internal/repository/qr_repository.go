package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

const (
	qQRColumns   = "id, machine_id, qr_code_data, token, created_at"
	qQRByMachine = "SELECT " + qQRColumns + " FROM qr_codes WHERE machine_id = ? LIMIT 1"
	qQRByToken   = "SELECT " + qQRColumns + " FROM qr_codes WHERE token = ? LIMIT 1"
	qQRInsert    = "INSERT INTO qr_codes (machine_id, qr_code_data, token, created_at) VALUES (?, ?, ?, ?)"
)

// QRRepo persists the single QR record of each machine.  Records are never
// updated; they disappear only with their machine.
type QRRepo struct {
	db *sql.DB
}

func NewQRRepo(db *sql.DB) *QRRepo {
	return &QRRepo{db: db}
}

func scanQR(row *sql.Row) (*model.QRToken, error) {
	var t model.QRToken
	if err := row.Scan(&t.ID, &t.MachineID, &t.EncryptedPayload, &t.Token, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQRTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetByMachine returns the machine's QR record or ErrQRTokenNotFound.
func (r *QRRepo) GetByMachine(ctx context.Context, machineID uint64) (*model.QRToken, error) {
	return scanQR(r.db.QueryRowContext(ctx, qQRByMachine, machineID))
}

// GetByToken looks a record up by its bare token.
func (r *QRRepo) GetByToken(ctx context.Context, token string) (*model.QRToken, error) {
	return scanQR(r.db.QueryRowContext(ctx, qQRByToken, token))
}

// Create inserts t inside a transaction.  A unique-key violation on
// machine_id (or the astronomically unlikely token collision) is reported
// as ErrQRTokenExists so the caller can reload the winning record.
func (r *QRRepo) Create(ctx context.Context, t *model.QRToken) error {
	now := time.Now().UTC().Truncate(time.Second)
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, qQRInsert, t.MachineID, t.EncryptedPayload, t.Token, now)
		if err != nil {
			if isDuplicateKey(err) {
				return ErrQRTokenExists
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		t.ID = uint64(id)
		t.CreatedAt = now
		return nil
	})
}
