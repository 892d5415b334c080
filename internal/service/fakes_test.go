package service

import (
	"context"
	"encoding/base64"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/queue"
	"github.com/iliyamo/fitcode-qr/internal/render"
	"github.com/iliyamo/fitcode-qr/internal/repository"
	"github.com/iliyamo/fitcode-qr/internal/security"
)

// memDB is an in-memory stand-in for the MySQL repositories.
type memDB struct {
	mu       sync.Mutex
	nextID   uint64
	gyms     map[uint64]*model.Gym
	machines map[uint64]*model.Machine
	content  map[uint64][]model.LocalizedContent
	codes    map[uint64]*model.QRToken // by machine id
	scans    []model.ScanEvent

	createCalls int
	failScan    error
}

func newMemDB() *memDB {
	return &memDB{
		gyms:     map[uint64]*model.Gym{},
		machines: map[uint64]*model.Machine{},
		content:  map[uint64][]model.LocalizedContent{},
		codes:    map[uint64]*model.QRToken{},
	}
}

func (db *memDB) id() uint64 { db.nextID++; return db.nextID }

func (db *memDB) addGym(ownerID uint64, name string) *model.Gym {
	db.mu.Lock()
	defer db.mu.Unlock()
	g := &model.Gym{ID: db.id(), OwnerID: ownerID, Name: name}
	db.gyms[g.ID] = g
	return g
}

func (db *memDB) addMachine(gymID uint64, name string, langs ...string) *model.Machine {
	db.mu.Lock()
	defer db.mu.Unlock()
	m := &model.Machine{ID: db.id(), GymID: gymID, Name: name}
	db.machines[m.ID] = m
	for _, l := range langs {
		db.content[m.ID] = append(db.content[m.ID], model.LocalizedContent{ID: db.id(), MachineID: m.ID, LanguageCode: l})
	}
	return m
}

func (db *memDB) scanCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.scans)
}

type memGyms struct{ *memDB }

func (s memGyms) GetByOwner(_ context.Context, ownerID uint64) (*model.Gym, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.gyms {
		if g.OwnerID == ownerID {
			return g, nil
		}
	}
	return nil, repository.ErrGymNotFound
}

func (s memGyms) GetByID(_ context.Context, id uint64) (*model.Gym, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gyms[id]; ok {
		return g, nil
	}
	return nil, repository.ErrGymNotFound
}

type memMachines struct{ *memDB }

func (s memMachines) GetByID(_ context.Context, id uint64) (*model.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.machines[id]; ok {
		return m, nil
	}
	return nil, repository.ErrMachineNotFound
}

func (s memMachines) GetByIDAndGym(ctx context.Context, id, gymID uint64) (*model.Machine, error) {
	m, err := s.GetByID(ctx, id)
	if err != nil || m.GymID != gymID {
		return nil, repository.ErrMachineNotFound
	}
	return m, nil
}

func (s memMachines) ListByGym(_ context.Context, gymID uint64) ([]*model.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Machine
	for _, m := range s.machines {
		if m.GymID == gymID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memCodes struct{ *memDB }

func (s memCodes) GetByMachine(_ context.Context, machineID uint64) (*model.QRToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.codes[machineID]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, repository.ErrQRTokenNotFound
}

func (s memCodes) GetByToken(_ context.Context, token string) (*model.QRToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.codes {
		if t.Token == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrQRTokenNotFound
}

func (s memCodes) Create(_ context.Context, t *model.QRToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if _, ok := s.codes[t.MachineID]; ok {
		return repository.ErrQRTokenExists
	}
	t.ID = s.id()
	t.CreatedAt = time.Now().UTC()
	cp := *t
	s.codes[t.MachineID] = &cp
	return nil
}

type memScans struct{ *memDB }

func (s memScans) RecordScan(_ context.Context, clientID, machineID uint64, at time.Time) (*model.ScanEvent, []model.LocalizedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failScan != nil {
		return nil, nil, s.failScan
	}
	ev := model.ScanEvent{ID: s.id(), ClientID: clientID, MachineID: machineID, ScannedAt: at}
	s.scans = append(s.scans, ev)
	return &ev, append([]model.LocalizedContent(nil), s.content[machineID]...), nil
}

func (s memScans) inGym(gymID uint64, since time.Time) []model.ScanEvent {
	var out []model.ScanEvent
	for _, ev := range s.scans {
		if m, ok := s.machines[ev.MachineID]; ok && m.GymID == gymID && !ev.ScannedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out
}

func (s memScans) CountMachines(ctx context.Context, gymID uint64) (int, error) {
	ms, _ := memMachines(s).ListByGym(ctx, gymID)
	return len(ms), nil
}

func (s memScans) CountScans(_ context.Context, gymID uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inGym(gymID, time.Time{})), nil
}

func (s memScans) CountScansSince(_ context.Context, gymID uint64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inGym(gymID, since)), nil
}

func (s memScans) CountUniqueClientsSince(_ context.Context, gymID uint64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[uint64]bool{}
	for _, ev := range s.inGym(gymID, since) {
		seen[ev.ClientID] = true
	}
	return len(seen), nil
}

func (s memScans) ScanCountsByMachineSince(_ context.Context, gymID uint64, since time.Time) ([]model.MachineScanCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[uint64]*model.MachineScanCount{}
	users := map[uint64]map[uint64]bool{}
	for _, ev := range s.inGym(gymID, since) {
		c, ok := counts[ev.MachineID]
		if !ok {
			c = &model.MachineScanCount{MachineID: ev.MachineID, MachineName: s.machines[ev.MachineID].Name}
			counts[ev.MachineID] = c
			users[ev.MachineID] = map[uint64]bool{}
		}
		c.ScanCount++
		users[ev.MachineID][ev.ClientID] = true
	}
	out := []model.MachineScanCount{}
	for id, c := range counts {
		c.UniqueUsers = len(users[id])
		out = append(out, *c)
	}
	return out, nil
}

func (s memScans) DailyScansSince(_ context.Context, gymID uint64, since time.Time) ([]model.DailyScanCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay := map[string]int{}
	for _, ev := range s.inGym(gymID, since) {
		byDay[ev.ScannedAt.UTC().Format("2006-01-02")]++
	}
	out := []model.DailyScanCount{}
	for d, n := range byDay {
		out = append(out, model.DailyScanCount{Date: d, ScanCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ScanRecordedEvent
}

func (p *recordingPublisher) PublishScan(ev queue.ScanRecordedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type fakeRenderer struct{ content string }

func (r *fakeRenderer) Render(_ context.Context, content string, _ render.Branding) ([]byte, error) {
	r.content = content
	return []byte("png:" + content), nil
}

func testCredentials(t *testing.T) *security.Credentials {
	t.Helper()
	c, err := security.NewCredentials(security.Options{
		SigningSecret: "test-signing-secret",
		EncryptionKey: base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
		BcryptCost:    4,
	})
	require.NoError(t, err)
	return c
}
