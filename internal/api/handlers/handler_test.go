package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/chargelog/internal/analytics"
	"github.com/langchou/chargelog/internal/models"
	"github.com/langchou/chargelog/internal/repository"
	"github.com/langchou/chargelog/pkg/ws"
)

// fakeDB 内存数据，按存储接口拆成三个视图
type fakeDB struct {
	mu       sync.Mutex
	lockMu   sync.Mutex
	nextID   int64
	vehicles map[int64]*models.Vehicle
	sessions map[int64]*models.ChargingSession
	settings map[int64]map[string]string
}

type fakeVehicles struct{ db *fakeDB }
type fakeSessions struct{ db *fakeDB }
type fakeSettings struct{ db *fakeDB }

func newFakeDB() *fakeDB {
	return &fakeDB{
		vehicles: make(map[int64]*models.Vehicle),
		sessions: make(map[int64]*models.ChargingSession),
		settings: make(map[int64]map[string]string),
	}
}

func (f fakeVehicles) Create(ctx context.Context, v *models.Vehicle) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.nextID++
	v.ID = f.db.nextID
	f.db.vehicles[v.ID] = v
	return nil
}

func (f fakeVehicles) GetByID(ctx context.Context, userID, id int64) (*models.Vehicle, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	v, ok := f.db.vehicles[id]
	if !ok || v.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func (f fakeVehicles) ListByUser(ctx context.Context, userID int64) ([]*models.Vehicle, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*models.Vehicle
	for _, v := range f.db.vehicles {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeSessions) WithVehicleLock(ctx context.Context, userID, vehicleID int64, fn func(ctx context.Context) error) error {
	f.db.lockMu.Lock()
	defer f.db.lockMu.Unlock()
	if _, err := (fakeVehicles{f.db}).GetByID(ctx, userID, vehicleID); err != nil {
		return err
	}
	return fn(ctx)
}

func (f fakeSessions) SessionsForVehicle(ctx context.Context, userID, vehicleID int64) ([]*models.ChargingSession, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*models.ChargingSession
	for _, s := range f.db.sessions {
		if s.UserID == userID && s.VehicleID == vehicleID {
			c := *s
			out = append(out, &c)
		}
	}
	return analytics.SortSessions(out), nil
}

func (f fakeSessions) SetBaselineFlag(ctx context.Context, sessionID int64, isBaseline bool) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	s.IsBaseline = &isBaseline
	return nil
}

func (f fakeSessions) ClearBaselineFlags(ctx context.Context, userID, vehicleID int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, s := range f.db.sessions {
		if s.UserID == userID && s.VehicleID == vehicleID {
			no := false
			s.IsBaseline = &no
		}
	}
	return nil
}

func (f fakeSessions) Create(ctx context.Context, s *models.ChargingSession) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.nextID++
	s.ID = f.db.nextID
	c := *s
	f.db.sessions[s.ID] = &c
	return nil
}

func (f fakeSessions) Update(ctx context.Context, s *models.ChargingSession) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	old, ok := f.db.sessions[s.ID]
	if !ok || old.UserID != s.UserID {
		return repository.ErrNotFound
	}
	c := *s
	c.IsBaseline = old.IsBaseline
	f.db.sessions[s.ID] = &c
	return nil
}

func (f fakeSessions) Delete(ctx context.Context, userID, id int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[id]
	if !ok || s.UserID != userID {
		return repository.ErrNotFound
	}
	delete(f.db.sessions, id)
	return nil
}

func (f fakeSessions) GetByID(ctx context.Context, userID, id int64) (*models.ChargingSession, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[id]
	if !ok || s.UserID != userID {
		return nil, repository.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (f fakeSessions) ListByVehicle(ctx context.Context, userID, vehicleID int64, limit, offset int) ([]*models.ChargingSession, error) {
	all, _ := f.SessionsForVehicle(ctx, userID, vehicleID)
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (f fakeSessions) CountByVehicle(ctx context.Context, userID, vehicleID int64) (int64, error) {
	all, _ := f.SessionsForVehicle(ctx, userID, vehicleID)
	return int64(len(all)), nil
}

func (f fakeSettings) GetAll(ctx context.Context, userID int64) (map[string]string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := make(map[string]string)
	for k, v := range f.db.settings[userID] {
		out[k] = v
	}
	return out, nil
}

func (f fakeSettings) Set(ctx context.Context, userID int64, key, value string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.settings[userID] == nil {
		f.db.settings[userID] = make(map[string]string)
	}
	f.db.settings[userID][key] = value
	return nil
}

type testServer struct {
	router *gin.Engine
	db     *fakeDB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newFakeDB()
	vehicles, sessions, settings := fakeVehicles{db}, fakeSessions{db}, fakeSettings{db}

	engine := analytics.NewEngine(sessions, vehicles, settings, analytics.Options{
		SeasonalBinEdges:   []float64{0, 10, 20},
		SoCBucketEdges:     []float64{20, 40, 60, 80},
		ThinBucketSessions: 3,
		Rules:              analytics.Rules{EnergyMilestonesKWh: []float64{100}, SessionMilestones: []int{10}},
	}, zap.NewNop(), nil)

	hub := ws.NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	router := gin.New()
	NewHandler(zap.NewNop(), vehicles, sessions, settings, engine, hub).RegisterRoutes(router)
	return &testServer{router: router, db: db}
}

type envelope struct {
	Data     json.RawMessage    `json:"data"`
	Baseline *models.SessionRef `json:"baseline"`
	Error    string             `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (s *testServer) createVehicle(t *testing.T, userID int64, nominal float64) int64 {
	t.Helper()
	code, env := s.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/vehicles", userID), gin.H{
		"name":               "Zoe",
		"nominal_efficiency": nominal,
	})
	require.Equal(t, http.StatusCreated, code)
	return decode[models.Vehicle](t, env.Data).ID
}

func (s *testServer) createSession(t *testing.T, userID, vehicleID int64, body gin.H) (models.ChargingSession, *models.SessionRef) {
	t.Helper()
	code, env := s.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/vehicles/%d/sessions", userID, vehicleID), body)
	require.Equal(t, http.StatusCreated, code, env.Error)
	return decode[models.ChargingSession](t, env.Data), env.Baseline
}
