package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/chargelog/internal/models"
	"github.com/langchou/chargelog/internal/state"
)

func TestSummaryExcludesBaseline(t *testing.T) {
	srv := newTestServer(t)
	vehicleID := srv.createVehicle(t, 1, 0)
	srv.createSession(t, 1, vehicleID, gin.H{"date": "2024-01-01", "odometer": 0, "energy_kwh": 30, "cost": 300})
	s, _ := srv.createSession(t, 1, vehicleID, gin.H{"date": "2024-01-10", "odometer": 40, "energy_kwh": 10, "cost": 100})

	code, env := srv.do(t, http.MethodGet, fmt.Sprintf("/api/users/1/vehicles/%d/analytics/summary", vehicleID), nil)
	require.Equal(t, http.StatusOK, code)

	sum := decode[models.Summary](t, env.Data)
	assert.Equal(t, []int64{s.ID}, sum.SessionIDs)
	require.NotNil(t, sum.Efficiency)
	assert.Equal(t, 4.0, *sum.Efficiency)
	assert.Equal(t, 100.0, sum.TotalCost)
	assert.Equal(t, 2.5, *sum.CostPerMile)
	assert.Equal(t, "GBP", sum.Currency)
	assert.True(t, sum.Thin)
}

func TestSummaryNoDataRendersNull(t *testing.T) {
	srv := newTestServer(t)
	vehicleID := srv.createVehicle(t, 1, 0)

	code, env := srv.do(t, http.MethodGet, fmt.Sprintf("/api/users/1/vehicles/%d/analytics/summary", vehicleID), nil)
	require.Equal(t, http.StatusOK, code)

	raw := decode[map[string]any](t, env.Data)
	assert.Nil(t, raw["efficiency"])
	assert.Nil(t, raw["cost_per_mile"])
	assert.Equal(t, 36.1, raw["petrol_threshold"])
}

func TestSummaryDateRange(t *testing.T) {
	srv := newTestServer(t)
	vehicleID := srv.createVehicle(t, 1, 0)
	srv.createSession(t, 1, vehicleID, gin.H{"date": "2024-01-01", "odometer": 0, "energy_kwh": 10})
	srv.createSession(t, 1, vehicleID, gin.H{"date": "2024-02-01", "odometer": 40, "energy_kwh": 10})
	march, _ := srv.createSession(t, 1, vehicleID, gin.H{"date": "2024-03-01", "odometer": 70, "energy_kwh": 10})

	base := fmt.Sprintf("/api/users/1/vehicles/%d/analytics/summary", vehicleID)

	code, env := srv.do(t, http.MethodGet, base+"?from=2024-03-01", nil)
	require.Equal(t, http.StatusOK, code)
	sum := decode[models.Summary](t, env.Data)
	assert.Equal(t, []int64{march.ID}, sum.SessionIDs)
	assert.Equal(t, 3.0, *sum.Efficiency)

	code, _ = srv.do(t, http.MethodGet, base+"?from=2024-03-01&to=2024-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = srv.do(t, http.MethodGet, base+"?to=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSummaryToDateIncludesWholeDay(t *testing.T) {
	srv := newTestServer(t)
	vehicleID := srv.createVehicle(t, 1, 0)
	srv.createSession(t, 1, vehicleID, gin.H{"date": "2024-01-01", "odometer": 0, "energy_kwh": 10})
	afternoon, _ := srv.createSession(t, 1, vehicleID, gin.H{"date": "2024-01-10T15:00:00Z", "odometer": 40, "energy_kwh": 10})
	srv.createSession(t, 1, vehicleID, gin.H{"date": "2024-01-11T00:00:00Z", "odometer": 80, "energy_kwh": 10})

	code, env := srv.do(t, http.MethodGet, fmt.Sprintf("/api/users/1/vehicles/%d/analytics/summary?to=2024-01-10", vehicleID), nil)
	require.Equal(t, http.StatusOK, code)

	sum := decode[models.Summary](t, env.Data)
	assert.Equal(t, 1, sum.SessionCount)
	assert.Equal(t, []int64{afternoon.ID}, sum.SessionIDs)
}

func TestReportsNotFoundForForeignVehicle(t *testing.T) {
	srv := newTestServer(t)
	vehicleID := srv.createVehicle(t, 1, 0)

	for _, report := range []string{"summary", "seasonal", "leaderboard", "sweet-spot", "achievements"} {
		code, _ := srv.do(t, http.MethodGet, fmt.Sprintf("/api/users/2/vehicles/%d/analytics/%s", vehicleID, report), nil)
		assert.Equal(t, http.StatusNotFound, code, report)
	}

	code, _ := srv.do(t, http.MethodGet, "/api/users/1/vehicles/abc/analytics/summary", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBucketReports(t *testing.T) {
	srv := newTestServer(t)
	vehicleID := srv.createVehicle(t, 1, 0)
	srv.createSession(t, 1, vehicleID, gin.H{"date": "2024-01-01", "odometer": 0, "energy_kwh": 10})
	srv.createSession(t, 1, vehicleID, gin.H{
		"date": "2024-01-02", "odometer": 40, "energy_kwh": 10,
		"temperature_c": 5, "soc_start": 30, "location": " Home ",
	})
	srv.createSession(t, 1, vehicleID, gin.H{
		"date": "2024-01-03", "odometer": 70, "energy_kwh": 10,
		"temperature_c": 25, "soc_start": 70, "location": "home",
	})

	base := fmt.Sprintf("/api/users/1/vehicles/%d/analytics/", vehicleID)

	code, env := srv.do(t, http.MethodGet, base+"seasonal", nil)
	require.Equal(t, http.StatusOK, code)
	seasonal := decode[[]models.Bucket](t, env.Data)
	require.Len(t, seasonal, 4)
	assert.Equal(t, "0_10", seasonal[1].Key)
	assert.Equal(t, 1, seasonal[1].SessionCount)
	assert.Zero(t, seasonal[0].SessionCount)
	assert.Nil(t, seasonal[0].Efficiency)

	code, env = srv.do(t, http.MethodGet, base+"leaderboard", nil)
	require.Equal(t, http.StatusOK, code)
	board := decode[[]models.Bucket](t, env.Data)
	require.Len(t, board, 1)
	assert.Equal(t, "home", board[0].Key)
	assert.Equal(t, "Home", board[0].Label)
	assert.Equal(t, 3.5, *board[0].Efficiency)

	code, env = srv.do(t, http.MethodGet, base+"sweet-spot", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.Bucket](t, env.Data), 5)

	code, env = srv.do(t, http.MethodGet, base+"achievements", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]models.AchievementCandidate](t, env.Data))
}

func TestBaselineEndpoints(t *testing.T) {
	srv := newTestServer(t)
	a := srv.createVehicle(t, 1, 0)
	b := srv.createVehicle(t, 1, 0)
	first, _ := srv.createSession(t, 1, a, gin.H{"date": "2024-01-01"})

	code, env := srv.do(t, http.MethodGet, fmt.Sprintf("/api/users/1/vehicles/%d/baseline", b), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, state.StateStale, decode[state.BaselineState](t, env.Data).CurrentState)

	code, env = srv.do(t, http.MethodGet, fmt.Sprintf("/api/users/1/vehicles/%d/baseline", a), nil)
	require.Equal(t, http.StatusOK, code)
	st := decode[state.BaselineState](t, env.Data)
	assert.Equal(t, state.StateResolved, st.CurrentState)
	assert.Equal(t, first.ID, *st.BaselineID)

	code, env = srv.do(t, http.MethodPost, "/api/users/1/baselines/resolve", nil)
	require.Equal(t, http.StatusOK, code)
	views := decode[[]resolutionView](t, env.Data)
	require.Len(t, views, 2)
	assert.Equal(t, a, views[0].VehicleID)
	assert.Equal(t, first.ID, views[0].Baseline.ID)
	assert.Equal(t, b, views[1].VehicleID)
	assert.Nil(t, views[1].Baseline)
	assert.Empty(t, views[1].Error)

	code, _ = srv.do(t, http.MethodPost, fmt.Sprintf("/api/users/2/vehicles/%d/baseline", a), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)
	code, _ := srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}
