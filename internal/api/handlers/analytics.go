package handlers

import (
	"cmp"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langchou/chargelog/internal/analytics"
	"github.com/langchou/chargelog/internal/models"
	"github.com/langchou/chargelog/internal/state"
)

// resolutionView 单车基准解析结果
type resolutionView struct {
	VehicleID int64              `json:"vehicle_id"`
	Baseline  *models.SessionRef `json:"baseline"`
	Error     string             `json:"error,omitempty"`
}

// GetBaselineState 获取车辆基准状态
func (h *Handler) GetBaselineState(c *gin.Context) {
	userID, vehicleID, ok := userAndID(c)
	if !ok {
		return
	}

	if _, err := h.vehicleRepo.GetByID(c.Request.Context(), userID, vehicleID); err != nil {
		h.fail(c, err, "Failed to get vehicle")
		return
	}

	st, ok := h.engine.BaselineState(vehicleID)
	if !ok {
		// 本进程尚未解析过该车辆
		st = &state.BaselineState{VehicleID: vehicleID, CurrentState: state.StateStale}
	}

	c.JSON(http.StatusOK, gin.H{"data": st})
}

// ResolveBaseline 重新解析车辆基准
// POST /api/users/:user_id/vehicles/:id/baseline
func (h *Handler) ResolveBaseline(c *gin.Context) {
	userID, vehicleID, ok := userAndID(c)
	if !ok {
		return
	}

	ref, err := h.engine.ResolveBaseline(c.Request.Context(), userID, vehicleID)
	if err != nil {
		h.fail(c, err, "Failed to resolve baseline")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resolutionView{VehicleID: vehicleID, Baseline: ref}})
}

// ResolveAllBaselines 重新解析用户所有车辆的基准，单车失败不影响其他车辆
func (h *Handler) ResolveAllBaselines(c *gin.Context) {
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	results, err := h.engine.ResolveAllBaselines(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "Failed to resolve baselines")
		return
	}

	views := make([]resolutionView, 0, len(results))
	for vehicleID, r := range results {
		v := resolutionView{VehicleID: vehicleID, Baseline: r.Baseline}
		if r.Err != nil {
			v.Error = "resolution failed"
		}
		views = append(views, v)
	}
	slices.SortFunc(views, func(a, b resolutionView) int {
		return cmp.Compare(a.VehicleID, b.VehicleID)
	})

	c.JSON(http.StatusOK, gin.H{"data": views})
}

// dateRange 解析 from/to 查询参数 (YYYY-MM-DD，均含)
func dateRange(c *gin.Context) (*analytics.DateRange, bool) {
	var r analytics.DateRange
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &r.From},
		{"to", &r.To},
	} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + p.name})
			return nil, false
		}
		*p.dst = &t
	}
	if r.From == nil && r.To == nil {
		return nil, true
	}
	return &r, true
}

// GetSummary 汇总报表
// GET /api/users/:user_id/vehicles/:id/analytics/summary?from=2024-01-01&to=2024-12-31
func (h *Handler) GetSummary(c *gin.Context) {
	userID, vehicleID, ok := userAndID(c)
	if !ok {
		return
	}
	window, ok := dateRange(c)
	if !ok {
		return
	}

	sum, err := h.engine.ComputeSummary(c.Request.Context(), userID, vehicleID, window)
	if err != nil {
		h.fail(c, err, "Failed to compute summary")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sum})
}

// GetSeasonal 温度分箱能效
func (h *Handler) GetSeasonal(c *gin.Context) {
	userID, vehicleID, ok := userAndID(c)
	if !ok {
		return
	}

	buckets, err := h.engine.ComputeSeasonal(c.Request.Context(), userID, vehicleID)
	if err != nil {
		h.fail(c, err, "Failed to compute seasonal efficiency")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": buckets})
}

// GetLeaderboard 充电地点排行
func (h *Handler) GetLeaderboard(c *gin.Context) {
	userID, vehicleID, ok := userAndID(c)
	if !ok {
		return
	}

	buckets, err := h.engine.ComputeLeaderboard(c.Request.Context(), userID, vehicleID)
	if err != nil {
		h.fail(c, err, "Failed to compute leaderboard")
		return
	}
	if buckets == nil {
		buckets = []models.Bucket{}
	}

	c.JSON(http.StatusOK, gin.H{"data": buckets})
}

// GetSweetSpot 起始 SoC 分桶能效
func (h *Handler) GetSweetSpot(c *gin.Context) {
	userID, vehicleID, ok := userAndID(c)
	if !ok {
		return
	}

	buckets, err := h.engine.ComputeSweetSpot(c.Request.Context(), userID, vehicleID)
	if err != nil {
		h.fail(c, err, "Failed to compute sweet spot")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": buckets})
}

// GetAchievements 成就候选，去重由调用方按 code 完成
func (h *Handler) GetAchievements(c *gin.Context) {
	userID, vehicleID, ok := userAndID(c)
	if !ok {
		return
	}

	candidates, err := h.engine.EvaluateAchievements(c.Request.Context(), userID, vehicleID)
	if err != nil {
		h.fail(c, err, "Failed to evaluate achievements")
		return
	}
	if candidates == nil {
		candidates = []models.AchievementCandidate{}
	}

	c.JSON(http.StatusOK, gin.H{"data": candidates})
}
