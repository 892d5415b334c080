package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/config"
	"github.com/iliyamo/fitcode-qr/internal/handler"
	"github.com/iliyamo/fitcode-qr/internal/middleware"
	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/render"
	"github.com/iliyamo/fitcode-qr/internal/repository"
	"github.com/iliyamo/fitcode-qr/internal/router"
	"github.com/iliyamo/fitcode-qr/internal/security"
	"github.com/iliyamo/fitcode-qr/internal/service"
)

// store keeps every table in memory.  The adapter types below expose it
// through the repository method sets the handlers and services expect.
type store struct {
	mu         sync.Mutex
	next       uint64
	principals map[string]map[uint64]*model.Principal
	gyms       map[uint64]*model.Gym
	machines   map[uint64]*model.Machine
	content    map[uint64][]model.LocalizedContent
	codes      map[uint64]*model.QRToken // by machine id
	scans      []model.ScanEvent
	marks      []model.BookmarkEvent
}

func newStore() *store {
	return &store{
		principals: map[string]map[uint64]*model.Principal{model.RoleOwner: {}, model.RoleClient: {}},
		gyms:       map[uint64]*model.Gym{},
		machines:   map[uint64]*model.Machine{},
		content:    map[uint64][]model.LocalizedContent{},
		codes:      map[uint64]*model.QRToken{},
	}
}

func (s *store) id() uint64 { s.next++; return s.next }

func (s *store) codeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// activity must be called with mu held.
func (s *store) activity(machineID uint64) (model.MachineActivity, bool) {
	m, ok := s.machines[machineID]
	if !ok {
		return model.MachineActivity{}, false
	}
	return model.MachineActivity{Machine: *m, Gym: *s.gyms[m.GymID]}, true
}

// dropMachine must be called with mu held.
func (s *store) dropMachine(id uint64) {
	delete(s.machines, id)
	delete(s.content, id)
	delete(s.codes, id)
	keptScans := s.scans[:0]
	for _, ev := range s.scans {
		if ev.MachineID != id {
			keptScans = append(keptScans, ev)
		}
	}
	s.scans = keptScans
	keptMarks := s.marks[:0]
	for _, b := range s.marks {
		if b.MachineID != id {
			keptMarks = append(keptMarks, b)
		}
	}
	s.marks = keptMarks
}

type users struct{ *store }

func (s users) Create(_ context.Context, role string, p *model.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.principals[role]
	if !ok {
		return repository.ErrUnknownRole
	}
	for _, other := range table {
		if other.Username == p.Username {
			return repository.ErrUsernameExists
		}
		if other.Email == p.Email {
			return repository.ErrEmailExists
		}
	}
	p.ID = s.id()
	p.Role = role
	p.CreatedAt = time.Now().UTC()
	cp := *p
	table[p.ID] = &cp
	return nil
}

func (s users) FindByUsername(_ context.Context, role, username string) (*model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.principals[role] {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrPrincipalNotFound
}

func (s users) FindByID(_ context.Context, role string, id uint64) (*model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.principals[role][id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, repository.ErrPrincipalNotFound
}

type gyms struct{ *store }

func (s gyms) Create(_ context.Context, g *model.Gym) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.gyms {
		if other.OwnerID == g.OwnerID {
			return repository.ErrGymExists
		}
	}
	g.ID = s.id()
	g.CreatedAt = time.Now().UTC()
	cp := *g
	s.gyms[g.ID] = &cp
	return nil
}

func (s gyms) GetByOwner(_ context.Context, ownerID uint64) (*model.Gym, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.gyms {
		if g.OwnerID == ownerID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, repository.ErrGymNotFound
}

func (s gyms) GetByID(_ context.Context, id uint64) (*model.Gym, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gyms[id]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, repository.ErrGymNotFound
}

func (s gyms) Update(_ context.Context, g *model.Gym) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gyms[g.ID]; !ok {
		return repository.ErrGymNotFound
	}
	cp := *g
	s.gyms[g.ID] = &cp
	return nil
}

func (s gyms) DeleteByOwner(_ context.Context, ownerID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, g := range s.gyms {
		if g.OwnerID != ownerID {
			continue
		}
		for mid, m := range s.machines {
			if m.GymID == id {
				s.dropMachine(mid)
			}
		}
		delete(s.gyms, id)
		return nil
	}
	return repository.ErrGymNotFound
}

type machines struct{ *store }

func (s machines) CreateWithContent(_ context.Context, m *model.Machine, content []model.LocalizedContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	m.CreatedAt = time.Now().UTC()
	cp := *m
	s.machines[m.ID] = &cp
	for i := range content {
		content[i].ID = s.id()
		content[i].MachineID = m.ID
	}
	s.content[m.ID] = append([]model.LocalizedContent(nil), content...)
	return nil
}

func (s machines) GetByID(_ context.Context, id uint64) (*model.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.machines[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, repository.ErrMachineNotFound
}

func (s machines) GetByIDAndGym(ctx context.Context, id, gymID uint64) (*model.Machine, error) {
	m, err := s.GetByID(ctx, id)
	if err != nil || m.GymID != gymID {
		return nil, repository.ErrMachineNotFound
	}
	return m, nil
}

func (s machines) ListByGym(_ context.Context, gymID uint64) ([]*model.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Machine{}
	for _, m := range s.machines {
		if m.GymID == gymID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s machines) ListContent(_ context.Context, machineID uint64) ([]model.LocalizedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LocalizedContent(nil), s.content[machineID]...), nil
}

func (s machines) ContentByGym(_ context.Context, gymID uint64) (map[uint64][]model.LocalizedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uint64][]model.LocalizedContent{}
	for id, m := range s.machines {
		if m.GymID == gymID && len(s.content[id]) > 0 {
			out[id] = append([]model.LocalizedContent(nil), s.content[id]...)
		}
	}
	return out, nil
}

func (s machines) UpdateWithContent(_ context.Context, m *model.Machine, content []model.LocalizedContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.machines[m.ID]; !ok {
		return repository.ErrMachineNotFound
	}
	cp := *m
	s.machines[m.ID] = &cp
	if content != nil {
		for i := range content {
			content[i].ID = s.id()
			content[i].MachineID = m.ID
		}
		s.content[m.ID] = append([]model.LocalizedContent(nil), content...)
	}
	return nil
}

func (s machines) DeleteByIDAndGym(_ context.Context, id, gymID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	if !ok || m.GymID != gymID {
		return repository.ErrMachineNotFound
	}
	s.dropMachine(id)
	return nil
}

type codes struct{ *store }

func (s codes) GetByMachine(_ context.Context, machineID uint64) (*model.QRToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.codes[machineID]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, repository.ErrQRTokenNotFound
}

func (s codes) GetByToken(_ context.Context, token string) (*model.QRToken, error) {
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

func (s codes) Create(_ context.Context, t *model.QRToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[t.MachineID]; ok {
		return repository.ErrQRTokenExists
	}
	t.ID = s.id()
	t.CreatedAt = time.Now().UTC()
	cp := *t
	s.codes[t.MachineID] = &cp
	return nil
}

type scans struct{ *store }

func (s scans) RecordScan(_ context.Context, clientID, machineID uint64, at time.Time) (*model.ScanEvent, []model.LocalizedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := model.ScanEvent{ID: s.id(), ClientID: clientID, MachineID: machineID, ScannedAt: at}
	s.scans = append(s.scans, ev)
	return &ev, append([]model.LocalizedContent(nil), s.content[machineID]...), nil
}

func (s scans) ListByClient(_ context.Context, clientID uint64, limit, offset int) ([]repository.ScanEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []repository.ScanEntry
	for i := len(s.scans) - 1; i >= 0; i-- {
		ev := s.scans[i]
		if ev.ClientID != clientID {
			continue
		}
		act, _ := s.activity(ev.MachineID)
		all = append(all, repository.ScanEntry{Event: ev, MachineActivity: act})
	}
	total := len(all)
	if offset >= total {
		return []repository.ScanEntry{}, total, nil
	}
	return all[offset:min(offset+limit, total)], total, nil
}

// inGym must be called with mu held.
func (s scans) inGym(gymID uint64, since time.Time) []model.ScanEvent {
	var out []model.ScanEvent
	for _, ev := range s.scans {
		if m, ok := s.machines[ev.MachineID]; ok && m.GymID == gymID && !ev.ScannedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out
}

func (s scans) CountMachines(ctx context.Context, gymID uint64) (int, error) {
	ms, err := machines(s).ListByGym(ctx, gymID)
	return len(ms), err
}

func (s scans) CountScans(_ context.Context, gymID uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inGym(gymID, time.Time{})), nil
}

func (s scans) CountScansSince(_ context.Context, gymID uint64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inGym(gymID, since)), nil
}

func (s scans) CountUniqueClientsSince(_ context.Context, gymID uint64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[uint64]bool{}
	for _, ev := range s.inGym(gymID, since) {
		seen[ev.ClientID] = true
	}
	return len(seen), nil
}

func (s scans) ScanCountsByMachineSince(_ context.Context, gymID uint64, since time.Time) ([]model.MachineScanCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[uint64]*model.MachineScanCount{}
	seen := map[uint64]map[uint64]bool{}
	for _, ev := range s.inGym(gymID, since) {
		c, ok := counts[ev.MachineID]
		if !ok {
			c = &model.MachineScanCount{MachineID: ev.MachineID, MachineName: s.machines[ev.MachineID].Name}
			counts[ev.MachineID] = c
			seen[ev.MachineID] = map[uint64]bool{}
		}
		c.ScanCount++
		seen[ev.MachineID][ev.ClientID] = true
	}
	out := []model.MachineScanCount{}
	for id, c := range counts {
		c.UniqueUsers = len(seen[id])
		out = append(out, *c)
	}
	return out, nil
}

func (s scans) DailyScansSince(_ context.Context, gymID uint64, since time.Time) ([]model.DailyScanCount, error) {
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

type bookmarks struct{ *store }

func (s bookmarks) Create(_ context.Context, clientID, machineID uint64) (*model.BookmarkEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.marks {
		if b.ClientID == clientID && b.MachineID == machineID {
			return nil, repository.ErrBookmarkExists
		}
	}
	b := model.BookmarkEvent{ID: s.id(), ClientID: clientID, MachineID: machineID, BookmarkedAt: time.Now().UTC()}
	s.marks = append(s.marks, b)
	return &b, nil
}

func (s bookmarks) Exists(_ context.Context, clientID, machineID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.marks {
		if b.ClientID == clientID && b.MachineID == machineID {
			return true, nil
		}
	}
	return false, nil
}

func (s bookmarks) Delete(_ context.Context, clientID, machineID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.marks {
		if b.ClientID == clientID && b.MachineID == machineID {
			s.marks = append(s.marks[:i], s.marks[i+1:]...)
			return nil
		}
	}
	return repository.ErrBookmarkNotFound
}

func (s bookmarks) ListByClient(_ context.Context, clientID uint64) ([]repository.BookmarkEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []repository.BookmarkEntry{}
	for i := len(s.marks) - 1; i >= 0; i-- {
		b := s.marks[i]
		if b.ClientID != clientID {
			continue
		}
		act, _ := s.activity(b.MachineID)
		out = append(out, repository.BookmarkEntry{Event: b, MachineActivity: act})
	}
	return out, nil
}

type noLogos struct{}

func (noLogos) Fetch(context.Context, string) image.Image { return nil }

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// app is the full API over an in-memory store.
type app struct {
	t     *testing.T
	e     *echo.Echo
	db    *store
	creds *security.Credentials
}

func newApp(t *testing.T) *app {
	t.Helper()
	return buildApp(t, nil)
}

// newCachedApp serves analytics through the Redis response cache backed
// by miniredis.
func newCachedApp(t *testing.T) *app {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return buildApp(t, rdb)
}

func buildApp(t *testing.T, rdb *redis.Client) *app {
	t.Helper()
	creds, err := security.NewCredentials(security.Options{
		SigningSecret: "test-signing-secret",
		EncryptionKey: base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
		BcryptCost:    4,
	})
	require.NoError(t, err)

	log := zap.NewNop()
	db := newStore()
	registry := service.NewQRRegistry(gyms{db}, machines{db}, codes{db}, creds, render.NewQRRenderer(noLogos{}, log), log)
	resolver := service.NewScanResolver(codes{db}, creds, machines{db}, gyms{db}, scans{db}, nil, log)
	analytics := service.NewAnalytics(gyms{db}, machines{db}, scans{db})

	guards := router.Guards{
		Owner:      middleware.RequireAuth(creds, users{db}, model.RoleOwner, log),
		Client:     middleware.RequireAuth(creds, users{db}, model.RoleClient, log),
		Either:     middleware.RequireAuth(creds, users{db}, model.RoleEither, log),
		RateLimit:  passThrough,
		Cache:      passThrough,
		Invalidate: passThrough,
	}
	if rdb != nil {
		cfg := config.CacheConfig{
			Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute,
			KeyStrategy: "principal_route_query", Prefix: "test:cache", MaxBodyBytes: 1 << 20,
		}
		inv := middleware.NewCacheInvalidator(cfg, rdb)
		resolver.Invalidator = inv
		guards.Cache = middleware.NewRedisCache(cfg, rdb, log)
		guards.Invalidate = middleware.InvalidateOnWrite(inv, log)
	}

	e := echo.New()
	router.RegisterRoutes(e, guards, router.Handlers{
		Auth:      handler.NewAuthHandler(users{db}, creds, log),
		Owner:     handler.NewOwnerHandler(gyms{db}, machines{db}, log),
		QR:        handler.NewQRHandler(registry, resolver, log),
		Client:    handler.NewClientHandler(bookmarks{db}, scans{db}, machines{db}, gyms{db}, log),
		Analytics: handler.NewAnalyticsHandler(analytics, log),
		Health:    handler.Health(pinger{}),
	})
	return &app{t: t, e: e, db: db, creds: creds}
}

// do sends a request and decodes a JSON object response.
func (a *app) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(a.t, err)
		rdr = bytes.NewReader(bs)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

// signup registers and logs in a principal and returns its bearer token.
func (a *app) signup(role, username string) string {
	a.t.Helper()
	rec, _ := a.do(http.MethodPost, "/api/auth/register/"+role, "", map[string]string{
		"username": username, "email": username + "@example.com", "password": "secret-" + username,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, out := a.do(http.MethodPost, "/api/auth/login/"+role, "", map[string]string{
		"username": username, "password": "secret-" + username,
	})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return out["token"].(string)
}

// ownerWithMachine sets up an owner with a gym and one machine and
// returns the owner token and machine id.
func (a *app) ownerWithMachine(username, gymName, machineName string) (string, uint64) {
	a.t.Helper()
	tok := a.signup(model.RoleOwner, username)
	rec, _ := a.do(http.MethodPost, "/api/gym", tok, map[string]string{"name": gymName})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, out := a.do(http.MethodPost, "/api/gym/machines", tok, map[string]any{
		"name": machineName,
		"localized_content": []map[string]string{
			{"language_code": "en", "instruction_text": "Keep your back flat"},
		},
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return tok, uint64(out["machine"].(map[string]any)["id"].(float64))
}

// issue generates the machine's QR token.
func (a *app) issue(ownerTok string, machineID uint64) string {
	a.t.Helper()
	rec, out := a.do(http.MethodPost, "/api/qr/generate/"+itoa(machineID), ownerTok, nil)
	require.Contains(a.t, []int{http.StatusCreated, http.StatusOK}, rec.Code, rec.Body.String())
	return out["qr_code"].(map[string]any)["token"].(string)
}

func itoa(n uint64) string { return strconv.FormatUint(n, 10) }
