package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/chargelog/internal/analytics"
	"github.com/langchou/chargelog/pkg/ws"
)

// numericSettings 需要为正数的设置项
var numericSettings = map[string]bool{
	analytics.SettingPetrolPricePerLitre: true,
	analytics.SettingPetrolMPG:           true,
	analytics.SettingDefaultEfficiency:   true,
}

// validateSetting 校验单个设置项
func validateSetting(key, value string) bool {
	if numericSettings[key] {
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		return err == nil && f > 0 && !math.IsInf(f, 0)
	}
	if key == analytics.SettingCurrency {
		v := strings.TrimSpace(value)
		return len(v) == 3
	}
	return false
}

// GetSettings 获取生效的用户设置 (缺失项为默认值)
func (h *Handler) GetSettings(c *gin.Context) {
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	values, err := h.settingsRepo.GetAll(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "Failed to get settings")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": analytics.ParseSettings(values, h.logger)})
}

// UpdateSettings 更新用户设置
// PUT /api/users/:user_id/settings
// 请求体为 key/value 对象，只接受已知设置项
func (h *Handler) UpdateSettings(c *gin.Context) {
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No settings given"})
		return
	}
	for key, value := range req {
		if !validateSetting(key, value) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid setting: " + key})
			return
		}
	}

	for key, value := range req {
		if err := h.settingsRepo.Set(c.Request.Context(), userID, key, strings.TrimSpace(value)); err != nil {
			h.fail(c, err, "Failed to update settings")
			return
		}
	}

	values, err := h.settingsRepo.GetAll(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "Failed to get settings")
		return
	}

	h.logger.Info("Settings updated", zap.Int64("user_id", userID), zap.Int("keys", len(req)))
	// 油价阈值依赖设置，通知所有客户端刷新
	h.wsHub.BroadcastMessage(ws.MsgTypeAnalyticsUpdate, 0, gin.H{"user_id": userID, "settings": true})

	c.JSON(http.StatusOK, gin.H{"data": analytics.ParseSettings(values, h.logger)})
}
