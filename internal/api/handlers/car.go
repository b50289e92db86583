package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/chargelog/internal/models"
)

// vehicleRequest 创建车辆请求
type vehicleRequest struct {
	Name              string  `json:"name" binding:"required"`
	Model             string  `json:"model"`
	NominalEfficiency float64 `json:"nominal_efficiency" binding:"gte=0"`
}

// ListVehicles 获取用户车辆列表
func (h *Handler) ListVehicles(c *gin.Context) {
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	vehicles, err := h.vehicleRepo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "Failed to list vehicles")
		return
	}
	if vehicles == nil {
		vehicles = []*models.Vehicle{}
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// CreateVehicle 创建车辆
func (h *Handler) CreateVehicle(c *gin.Context) {
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	var req vehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v := &models.Vehicle{
		UserID:            userID,
		Name:              req.Name,
		Model:             req.Model,
		NominalEfficiency: req.NominalEfficiency,
	}
	if err := h.vehicleRepo.Create(c.Request.Context(), v); err != nil {
		h.fail(c, err, "Failed to create vehicle")
		return
	}

	h.logger.Info("Vehicle created", zap.Int64("user_id", userID), zap.Int64("vehicle_id", v.ID))
	c.JSON(http.StatusCreated, gin.H{"data": v})
}

// GetVehicle 获取车辆详情与统计
func (h *Handler) GetVehicle(c *gin.Context) {
	userID, id, ok := userAndID(c)
	if !ok {
		return
	}

	vehicle, err := h.vehicleRepo.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err, "Failed to get vehicle")
		return
	}

	sessionCount, err := h.sessionRepo.CountByVehicle(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err, "Failed to count sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"vehicle":       vehicle,
			"session_count": sessionCount,
		},
	})
}
