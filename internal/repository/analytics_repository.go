package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

// Every analytics query is scoped to one gym through gym_machines.
const (
	qStatMachines = "SELECT COUNT(*) FROM gym_machines WHERE gym_id = ?"
	qStatScans    = `SELECT COUNT(*) FROM scan_history s
	    JOIN gym_machines m ON m.id = s.machine_id WHERE m.gym_id = ?`
	qStatScansSince = `SELECT COUNT(*) FROM scan_history s
	    JOIN gym_machines m ON m.id = s.machine_id WHERE m.gym_id = ? AND s.scan_timestamp >= ?`
	qStatUniqueSince = `SELECT COUNT(DISTINCT s.client_id) FROM scan_history s
	    JOIN gym_machines m ON m.id = s.machine_id WHERE m.gym_id = ? AND s.scan_timestamp >= ?`
	qStatPerMachine = `SELECT m.id, m.name, COUNT(s.id), COUNT(DISTINCT s.client_id)
	    FROM gym_machines m JOIN scan_history s ON s.machine_id = m.id
	    WHERE m.gym_id = ? AND s.scan_timestamp >= ?
	    GROUP BY m.id, m.name`
	qStatDaily = `SELECT DATE(s.scan_timestamp) AS day, COUNT(s.id)
	    FROM scan_history s JOIN gym_machines m ON m.id = s.machine_id
	    WHERE m.gym_id = ? AND s.scan_timestamp >= ?
	    GROUP BY day ORDER BY day`
)

// AnalyticsRepo runs read-only aggregates over scan_history.
type AnalyticsRepo struct {
	db *sql.DB
}

func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo {
	return &AnalyticsRepo{db: db}
}

func (r *AnalyticsRepo) count(ctx context.Context, q string, args ...any) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// CountMachines returns the number of machines in the gym.
func (r *AnalyticsRepo) CountMachines(ctx context.Context, gymID uint64) (int, error) {
	return r.count(ctx, qStatMachines, gymID)
}

// CountScans returns the all-time number of scans in the gym.
func (r *AnalyticsRepo) CountScans(ctx context.Context, gymID uint64) (int, error) {
	return r.count(ctx, qStatScans, gymID)
}

// CountScansSince counts scans at or after since.
func (r *AnalyticsRepo) CountScansSince(ctx context.Context, gymID uint64, since time.Time) (int, error) {
	return r.count(ctx, qStatScansSince, gymID, since.UTC())
}

// CountUniqueClientsSince counts distinct scanning clients at or after since.
func (r *AnalyticsRepo) CountUniqueClientsSince(ctx context.Context, gymID uint64, since time.Time) (int, error) {
	return r.count(ctx, qStatUniqueSince, gymID, since.UTC())
}

// ScanCountsByMachineSince returns per-machine counts for machines with at
// least one scan in the window.  Machines without scans are absent; the
// caller zero-fills them where needed.
func (r *AnalyticsRepo) ScanCountsByMachineSince(ctx context.Context, gymID uint64, since time.Time) ([]model.MachineScanCount, error) {
	rows, err := r.db.QueryContext(ctx, qStatPerMachine, gymID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MachineScanCount{}
	for rows.Next() {
		var c model.MachineScanCount
		if err := rows.Scan(&c.MachineID, &c.MachineName, &c.ScanCount, &c.UniqueUsers); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DailyScansSince buckets scans by UTC calendar day, ascending.  Days
// without scans are not returned.
func (r *AnalyticsRepo) DailyScansSince(ctx context.Context, gymID uint64, since time.Time) ([]model.DailyScanCount, error) {
	rows, err := r.db.QueryContext(ctx, qStatDaily, gymID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.DailyScanCount{}
	for rows.Next() {
		var (
			day time.Time
			c   model.DailyScanCount
		)
		if err := rows.Scan(&day, &c.ScanCount); err != nil {
			return nil, err
		}
		c.Date = day.Format("2006-01-02")
		out = append(out, c)
	}
	return out, rows.Err()
}
