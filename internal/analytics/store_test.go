package analytics

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/langchou/chargelog/internal/models"
)

var errNotFound = errors.New("not found")

// memStore 内存存储，实现 SessionStore / VehicleStore / SettingsStore
type memStore struct {
	mu       sync.Mutex
	lockMu   sync.Mutex
	nextID   int64
	sessions map[int64]*models.ChargingSession
	vehicles map[int64]*models.Vehicle
	settings map[int64]map[string]string

	failLock     map[int64]error
	failSettings error
	resolveCalls int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[int64]*models.ChargingSession),
		vehicles: make(map[int64]*models.Vehicle),
		settings: make(map[int64]map[string]string),
		failLock: make(map[int64]error),
	}
}

func (m *memStore) addVehicle(userID, id int64, nominal float64) {
	m.vehicles[id] = &models.Vehicle{ID: id, UserID: userID, Name: "car", NominalEfficiency: nominal}
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int { return &v }
func str(v string) *string { return &v }

// add 插入记录，id 自增；返回插入的记录
func (m *memStore) add(userID, vehicleID int64, date string, odo, kwh float64, opts ...func(*models.ChargingSession)) *models.ChargingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s := &models.ChargingSession{
		ID:        m.nextID,
		UserID:    userID,
		VehicleID: vehicleID,
		Date:      day(date),
		Odometer:  f64(odo),
		EnergyKWh: f64(kwh),
	}
	for _, o := range opts {
		o(s)
	}
	m.sessions[s.ID] = s
	return s
}

func (m *memStore) baselines(vehicleID int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, s := range m.sessions {
		if s.VehicleID == vehicleID && s.Baseline() {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func (m *memStore) SessionsForVehicle(ctx context.Context, userID, vehicleID int64) ([]*models.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ChargingSession
	for _, s := range m.sessions {
		if s.UserID == userID && s.VehicleID == vehicleID {
			c := *s
			out = append(out, &c)
		}
	}
	return SortSessions(out), nil
}

func (m *memStore) SetBaselineFlag(ctx context.Context, sessionID int64, isBaseline bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return errNotFound
	}
	s.IsBaseline = &isBaseline
	return nil
}

func (m *memStore) ClearBaselineFlags(ctx context.Context, userID, vehicleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveCalls++
	for _, s := range m.sessions {
		if s.UserID == userID && s.VehicleID == vehicleID {
			f := false
			s.IsBaseline = &f
		}
	}
	return nil
}

func (m *memStore) WithVehicleLock(ctx context.Context, userID, vehicleID int64, fn func(ctx context.Context) error) error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if err := m.failLock[vehicleID]; err != nil {
		return err
	}
	v, ok := m.vehicles[vehicleID]
	if !ok || v.UserID != userID {
		return errNotFound
	}
	return fn(ctx)
}

func (m *memStore) GetByID(ctx context.Context, userID, id int64) (*models.Vehicle, error) {
	v, ok := m.vehicles[id]
	if !ok || v.UserID != userID {
		return nil, errNotFound
	}
	return v, nil
}

func (m *memStore) ListByUser(ctx context.Context, userID int64) ([]*models.Vehicle, error) {
	var out []*models.Vehicle
	for _, id := range slices.Sorted(maps.Keys(m.vehicles)) {
		if v := m.vehicles[id]; v.UserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memStore) GetAll(ctx context.Context, userID int64) (map[string]string, error) {
	if m.failSettings != nil {
		return nil, m.failSettings
	}
	return m.settings[userID], nil
}
