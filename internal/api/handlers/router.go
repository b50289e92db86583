package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由，所有资源都限定在用户下
	api := r.Group("/api/users/:user_id")
	{
		// 车辆
		api.GET("/vehicles", h.ListVehicles)
		api.POST("/vehicles", h.CreateVehicle)
		api.GET("/vehicles/:id", h.GetVehicle)

		// 充电记录
		api.GET("/vehicles/:id/sessions", h.ListSessions)
		api.POST("/vehicles/:id/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.PUT("/sessions/:id", h.UpdateSession)
		api.DELETE("/sessions/:id", h.DeleteSession)

		// 基准
		api.GET("/vehicles/:id/baseline", h.GetBaselineState)
		api.POST("/vehicles/:id/baseline", h.ResolveBaseline)
		api.POST("/baselines/resolve", h.ResolveAllBaselines)

		// 分析
		api.GET("/vehicles/:id/analytics/summary", h.GetSummary)
		api.GET("/vehicles/:id/analytics/seasonal", h.GetSeasonal)
		api.GET("/vehicles/:id/analytics/leaderboard", h.GetLeaderboard)
		api.GET("/vehicles/:id/analytics/sweet-spot", h.GetSweetSpot)
		api.GET("/vehicles/:id/analytics/achievements", h.GetAchievements)

		// 设置
		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)

	// Prometheus
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
