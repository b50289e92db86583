package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/chargelog/internal/analytics"
	"github.com/langchou/chargelog/internal/models"
	"github.com/langchou/chargelog/internal/repository"
	"github.com/langchou/chargelog/pkg/ws"
)

// VehicleStore 车辆存储
type VehicleStore interface {
	Create(ctx context.Context, v *models.Vehicle) error
	GetByID(ctx context.Context, userID, id int64) (*models.Vehicle, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Vehicle, error)
}

// SessionStore 充电记录存储
type SessionStore interface {
	Create(ctx context.Context, s *models.ChargingSession) error
	Update(ctx context.Context, s *models.ChargingSession) error
	Delete(ctx context.Context, userID, id int64) error
	GetByID(ctx context.Context, userID, id int64) (*models.ChargingSession, error)
	ListByVehicle(ctx context.Context, userID, vehicleID int64, limit, offset int) ([]*models.ChargingSession, error)
	CountByVehicle(ctx context.Context, userID, vehicleID int64) (int64, error)
}

// SettingsStore 用户设置存储
type SettingsStore interface {
	GetAll(ctx context.Context, userID int64) (map[string]string, error)
	Set(ctx context.Context, userID int64, key, value string) error
}

// Handler HTTP 处理器
type Handler struct {
	logger       *zap.Logger
	vehicleRepo  VehicleStore
	sessionRepo  SessionStore
	settingsRepo SettingsStore
	engine       *analytics.Engine
	wsHub        *ws.Hub
	upgrader     websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	vehicleRepo VehicleStore,
	sessionRepo SessionStore,
	settingsRepo SettingsStore,
	engine *analytics.Engine,
	wsHub *ws.Hub,
) *Handler {
	h := &Handler{
		logger:       logger,
		vehicleRepo:  vehicleRepo,
		sessionRepo:  sessionRepo,
		settingsRepo: settingsRepo,
		engine:       engine,
		wsHub:        wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
	wsHub.SetInitDataProvider(h.initData)
	return h
}

// initData 新连接的初始数据: 已跟踪车辆及其基准状态
func (h *Handler) initData() *ws.InitData {
	states := h.engine.BaselineStates()
	vehicles := make([]int64, 0, len(states))
	for id := range states {
		vehicles = append(vehicles, id)
	}
	slices.Sort(vehicles)
	return &ws.InitData{Vehicles: vehicles, States: states}
}

// paramID 解析路径中的 ID
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// userAndID 解析 user_id 与 id
func userAndID(c *gin.Context) (int64, int64, bool) {
	userID, ok := paramID(c, "user_id")
	if !ok {
		return 0, 0, false
	}
	id, ok := paramID(c, "id")
	if !ok {
		return 0, 0, false
	}
	return userID, id, true
}

// pagination 解析分页参数
func pagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}

// fail 按错误类型返回状态码，存储错误记录日志
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, analytics.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
