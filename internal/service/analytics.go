package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/repository"
)

const (
	DefaultWindowDays   = 30
	DefaultPopularLimit = 5
	MaxPopularLimit     = 100
)

// Analytics derives read-only statistics for the gym of one owner.
type Analytics struct {
	gyms     GymStore
	machines MachineStore
	stats    StatsStore

	Now func() time.Time
}

func NewAnalytics(gyms GymStore, machines MachineStore, stats StatsStore) *Analytics {
	return &Analytics{
		gyms:     gyms,
		machines: machines,
		stats:    stats,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *Analytics) gymOf(ctx context.Context, ownerID uint64) (*model.Gym, error) {
	g, err := a.gyms.GetByOwner(ctx, ownerID)
	if errors.Is(err, repository.ErrGymNotFound) {
		return nil, ErrNoGymFound
	}
	return g, err
}

// since is the inclusive lower bound of a window of days.
func (a *Analytics) since(days int) time.Time {
	return a.Now().AddDate(0, 0, -days)
}

// Overview returns machine and scan totals.  TotalScans is all-time; the
// other scan counts cover the window.
func (a *Analytics) Overview(ctx context.Context, ownerID uint64, days int) (*model.Overview, error) {
	g, err := a.gymOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	since := a.since(days)
	out := &model.Overview{DateRangeDays: days}
	if out.TotalMachines, err = a.stats.CountMachines(ctx, g.ID); err != nil {
		return nil, err
	}
	if out.TotalScans, err = a.stats.CountScans(ctx, g.ID); err != nil {
		return nil, err
	}
	if out.RecentScans, err = a.stats.CountScansSince(ctx, g.ID, since); err != nil {
		return nil, err
	}
	if out.UniqueUsers, err = a.stats.CountUniqueClientsSince(ctx, g.ID, since); err != nil {
		return nil, err
	}
	return out, nil
}

// MachineUsage returns every machine of the gym with its scan count in the
// window, zero included, busiest first.
func (a *Analytics) MachineUsage(ctx context.Context, ownerID uint64, days int) ([]model.MachineScanCount, error) {
	g, err := a.gymOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	machines, err := a.machines.ListByGym(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	counts, err := a.stats.ScanCountsByMachineSince(ctx, g.ID, a.since(days))
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(counts, func(c model.MachineScanCount) uint64 { return c.MachineID })

	out := lo.Map(machines, func(m *model.Machine, _ int) model.MachineScanCount {
		c := byID[m.ID]
		return model.MachineScanCount{MachineID: m.ID, MachineName: m.Name, ScanCount: c.ScanCount, UniqueUsers: c.UniqueUsers}
	})
	sortByScans(out)
	return out, nil
}

// DailyScans returns per-day counts in the window, oldest first.
func (a *Analytics) DailyScans(ctx context.Context, ownerID uint64, days int) ([]model.DailyScanCount, error) {
	g, err := a.gymOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return a.stats.DailyScansSince(ctx, g.ID, a.since(days))
}

// PopularMachines returns at most limit machines that were scanned in the
// window, busiest first.  Machines without scans never appear.
func (a *Analytics) PopularMachines(ctx context.Context, ownerID uint64, days, limit int) ([]model.MachineScanCount, error) {
	g, err := a.gymOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	counts, err := a.stats.ScanCountsByMachineSince(ctx, g.ID, a.since(days))
	if err != nil {
		return nil, err
	}
	out := lo.Filter(counts, func(c model.MachineScanCount, _ int) bool { return c.ScanCount > 0 })
	sortByScans(out)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortByScans orders by scan count descending, then machine id.
func sortByScans(s []model.MachineScanCount) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].ScanCount != s[j].ScanCount {
			return s[i].ScanCount > s[j].ScanCount
		}
		return s[i].MachineID < s[j].MachineID
	})
}
