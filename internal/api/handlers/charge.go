package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/chargelog/internal/models"
)

// sessionRequest 创建/更新充电记录请求
//
// is_baseline 不接受输入，由引擎维护。
type sessionRequest struct {
	VehicleID    *int64   `json:"vehicle_id"`
	Date         string   `json:"date" binding:"required"`
	Odometer     *float64 `json:"odometer" binding:"omitempty,gte=0"`
	EnergyKWh    *float64 `json:"energy_kwh" binding:"omitempty,gte=0"`
	TemperatureC *float64 `json:"temperature_c"`
	Location     *string  `json:"location" binding:"omitempty,max=255"`
	Cost         *float64 `json:"cost" binding:"omitempty,gte=0"`
	SoCStart     *int     `json:"soc_start" binding:"omitempty,min=0,max=100"`
	SoCEnd       *int     `json:"soc_end" binding:"omitempty,min=0,max=100"`
}

// parseDate 支持 2006-01-02 与 RFC3339
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// apply 将请求字段写入记录
func (r *sessionRequest) apply(s *models.ChargingSession) error {
	date, err := parseDate(r.Date)
	if err != nil {
		return err
	}
	s.Date = date
	s.Odometer = r.Odometer
	s.EnergyKWh = r.EnergyKWh
	s.TemperatureC = r.TemperatureC
	s.Location = r.Location
	s.Cost = r.Cost
	s.SoCStart = r.SoCStart
	s.SoCEnd = r.SoCEnd
	return nil
}

// writeSession 写入并重新解析基准，成功后通知订阅者
func (h *Handler) writeSession(c *gin.Context, s *models.ChargingSession, write func(ctx context.Context) error) (*models.SessionRef, bool) {
	ref, err := h.engine.WriteSession(c.Request.Context(), s.UserID, s.VehicleID, write)
	if err != nil {
		h.fail(c, err, "Failed to save session")
		return nil, false
	}

	isBaseline := ref != nil && ref.ID == s.ID
	s.IsBaseline = &isBaseline

	h.wsHub.BroadcastAnalyticsUpdate(s.VehicleID, gin.H{
		"session_id": s.ID,
		"baseline":   ref,
	})
	return ref, true
}

// ListSessions 获取车辆充电记录列表
func (h *Handler) ListSessions(c *gin.Context) {
	userID, vehicleID, ok := userAndID(c)
	if !ok {
		return
	}

	page, perPage, offset := pagination(c)

	sessions, err := h.sessionRepo.ListByVehicle(c.Request.Context(), userID, vehicleID, perPage, offset)
	if err != nil {
		h.fail(c, err, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*models.ChargingSession{}
	}

	total, _ := h.sessionRepo.CountByVehicle(c.Request.Context(), userID, vehicleID)

	c.JSON(http.StatusOK, gin.H{
		"data": sessions,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// GetSession 获取充电记录
func (h *Handler) GetSession(c *gin.Context) {
	userID, id, ok := userAndID(c)
	if !ok {
		return
	}

	s, err := h.sessionRepo.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err, "Failed to get session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s})
}

// CreateSession 新增充电记录
// POST /api/users/:user_id/vehicles/:id/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	userID, vehicleID, ok := userAndID(c)
	if !ok {
		return
	}

	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.VehicleID != nil && *req.VehicleID != vehicleID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vehicle_id does not match path"})
		return
	}

	s := &models.ChargingSession{UserID: userID, VehicleID: vehicleID}
	if err := req.apply(s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date"})
		return
	}

	ref, ok := h.writeSession(c, s, func(ctx context.Context) error {
		return h.sessionRepo.Create(ctx, s)
	})
	if !ok {
		return
	}

	h.logger.Info("Session created",
		zap.Int64("vehicle_id", vehicleID),
		zap.Int64("session_id", s.ID),
	)
	c.JSON(http.StatusCreated, gin.H{"data": s, "baseline": ref})
}

// UpdateSession 修改充电记录
// PUT /api/users/:user_id/sessions/:id
// 记录所属车辆不可修改
func (h *Handler) UpdateSession(c *gin.Context) {
	userID, id, ok := userAndID(c)
	if !ok {
		return
	}

	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sessionRepo.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err, "Failed to get session")
		return
	}
	if req.VehicleID != nil && *req.VehicleID != s.VehicleID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vehicle_id cannot be changed"})
		return
	}
	if err := req.apply(s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date"})
		return
	}

	ref, ok := h.writeSession(c, s, func(ctx context.Context) error {
		return h.sessionRepo.Update(ctx, s)
	})
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s, "baseline": ref})
}

// DeleteSession 删除充电记录
func (h *Handler) DeleteSession(c *gin.Context) {
	userID, id, ok := userAndID(c)
	if !ok {
		return
	}

	s, err := h.sessionRepo.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err, "Failed to get session")
		return
	}

	ref, ok := h.writeSession(c, s, func(ctx context.Context) error {
		return h.sessionRepo.Delete(ctx, userID, id)
	})
	if !ok {
		return
	}

	h.logger.Info("Session deleted",
		zap.Int64("vehicle_id", s.VehicleID),
		zap.Int64("session_id", id),
	)
	c.JSON(http.StatusOK, gin.H{
		"message":  "Session deleted",
		"baseline": ref,
	})
}
