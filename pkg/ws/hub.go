package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType WebSocket 消息类型
const (
	MsgTypeInit            = "init"             // 初始化数据（车辆列表+基准状态）
	MsgTypeAnalyticsUpdate = "analytics_update" // 充电记录变更后分析数据需要刷新
	MsgTypeSubscribed      = "subscribed"
	MsgTypeError           = "error" // 错误消息
)

// 客户端指令
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Message WebSocket 消息结构
type Message struct {
	Type      string      `json:"type"`
	VehicleID int64       `json:"vehicle_id,omitempty"`
	Data      interface{} `json:"data"`
}

// ClientMessage 客户端发来的订阅指令
type ClientMessage struct {
	Action    string `json:"action"`
	VehicleID int64  `json:"vehicle_id"`
}

// InitData 初始化数据
type InitData struct {
	Vehicles interface{} `json:"vehicles"`
	States   interface{} `json:"states"`
}

// outbound 待发送消息
//
// target 非空时只发给该客户端；否则 vehicleID 为 0 时发送给所有客户端。
type outbound struct {
	target    *Client
	vehicleID int64
	data      []byte
}

// Client WebSocket 客户端
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	vehicles map[int64]bool // 已订阅的车辆
}

// Hub WebSocket 连接管理中心
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	// 初始数据提供者回调
	getInitData func() *InitData
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetInitDataProvider 设置初始数据提供者
func (h *Hub) SetInitDataProvider(provider func() *InitData) {
	h.getInitData = provider
}

// Run 运行 Hub，ctx 取消时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client connected", zap.Int("total_clients", total))

			// 发送初始数据
			h.sendInitData(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client disconnected", zap.Int("total_clients", total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !msg.deliverTo(client) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// 慢消费者，关闭连接
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (m outbound) deliverTo(c *Client) bool {
	switch {
	case m.target != nil:
		return m.target == c
	case m.vehicleID != 0:
		return c.Subscribed(m.vehicleID)
	}
	return true
}

// sendInitData 发送初始数据给新连接的客户端
func (h *Hub) sendInitData(client *Client) {
	if h.getInitData == nil {
		return
	}

	initData := h.getInitData()
	if initData == nil {
		h.logger.Warn("Init data provider returned nil")
		return
	}

	data, err := json.Marshal(Message{Type: MsgTypeInit, Data: initData})
	if err != nil {
		h.logger.Error("Failed to marshal init data", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
		h.logger.Debug("Sent init data to client")
	default:
		h.logger.Warn("Failed to send init data, client buffer full")
	}
}

// Broadcast 广播消息给所有客户端
func (h *Hub) Broadcast(message []byte) {
	h.enqueue(outbound{data: message})
}

// BroadcastToVehicleSubscribers 只发送给订阅了该车辆的客户端
func (h *Hub) BroadcastToVehicleSubscribers(vehicleID int64, message []byte) {
	h.enqueue(outbound{vehicleID: vehicleID, data: message})
}

// enqueue Hub 停止后丢弃消息
func (h *Hub) enqueue(msg outbound) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// BroadcastMessage 广播结构化消息
func (h *Hub) BroadcastMessage(msgType string, vehicleID int64, data interface{}) {
	jsonData, err := json.Marshal(Message{Type: msgType, VehicleID: vehicleID, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	if vehicleID == 0 {
		h.Broadcast(jsonData)
		return
	}
	h.BroadcastToVehicleSubscribers(vehicleID, jsonData)
}

// BroadcastAnalyticsUpdate 通知订阅者车辆的分析数据已变化
func (h *Hub) BroadcastAnalyticsUpdate(vehicleID int64, data interface{}) {
	h.BroadcastMessage(MsgTypeAnalyticsUpdate, vehicleID, data)
}

// ClientCount 获取客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount 订阅了某车辆的客户端数量
func (h *Hub) SubscriberCount(vehicleID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.Subscribed(vehicleID) {
			n++
		}
	}
	return n
}

// NewClient 创建客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		vehicles: make(map[int64]bool),
	}
}

// Register 注册客户端
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
	}
}

// Unregister 注销客户端
func (c *Client) Unregister() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// Subscribed 是否订阅了该车辆
func (c *Client) Subscribed(vehicleID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vehicles[vehicleID]
}

func (c *Client) setSubscription(vehicleID int64, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.vehicles[vehicleID] = true
		return
	}
	delete(c.vehicles, vehicleID)
}

// reply 经由 Hub 回复当前客户端，send 只在 Hub 协程中写入
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.enqueue(outbound{target: c, data: data})
}

// handle 处理订阅指令
func (c *Client) handle(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(Message{Type: MsgTypeError, Data: "invalid message"})
		return
	}
	if msg.VehicleID <= 0 {
		c.reply(Message{Type: MsgTypeError, Data: "vehicle_id required"})
		return
	}

	switch msg.Action {
	case ActionSubscribe:
		c.setSubscription(msg.VehicleID, true)
	case ActionUnsubscribe:
		c.setSubscription(msg.VehicleID, false)
	default:
		c.reply(Message{Type: MsgTypeError, Data: "unknown action"})
		return
	}
	c.reply(Message{Type: MsgTypeSubscribed, VehicleID: msg.VehicleID, Data: msg.Action == ActionSubscribe})
}

// ReadPump 读取订阅指令
func (c *Client) ReadPump() {
	defer func() {
		c.Unregister()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handle(raw)
	}
}

// WritePump 发送消息
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
