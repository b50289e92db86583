package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 基准状态常量
const (
	StateStale     = "stale"     // 有写入或尚未解析
	StateResolving = "resolving" // 正在解析
	StateResolved  = "resolved"  // 基准标记与数据一致
	StateFailed    = "failed"    // 上次解析失败
)

// 事件常量
const (
	EventInvalidate = "invalidate"
	EventBegin      = "begin"
	EventSucceed    = "succeed"
	EventFail       = "fail"
)

// BaselineState 车辆基准状态
type BaselineState struct {
	VehicleID    int64     `json:"vehicle_id"`
	CurrentState string    `json:"state"`
	Since        time.Time `json:"since"`
	BaselineID   *int64    `json:"baseline_id,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Machine 单车基准状态机
type Machine struct {
	mu            sync.Mutex
	vehicleID     int64
	fsm           *fsm.FSM
	state         *BaselineState
	onStateChange func(vehicleID int64, from, to string)
}

// NewMachine 创建状态机，初始为 stale
func NewMachine(vehicleID int64, onStateChange func(vehicleID int64, from, to string)) *Machine {
	m := &Machine{
		vehicleID:     vehicleID,
		onStateChange: onStateChange,
		state: &BaselineState{
			VehicleID:    vehicleID,
			CurrentState: StateStale,
			Since:        time.Now(),
		},
	}

	m.fsm = fsm.NewFSM(
		StateStale,
		fsm.Events{
			{Name: EventInvalidate, Src: []string{StateResolved, StateFailed, StateResolving}, Dst: StateStale},
			{Name: EventBegin, Src: []string{StateStale, StateFailed, StateResolved}, Dst: StateResolving},
			{Name: EventSucceed, Src: []string{StateResolving}, Dst: StateResolved},
			{Name: EventFail, Src: []string{StateResolving}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.vehicleID, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Current()
}

// GetState 获取状态副本
func (m *Machine) GetState() *BaselineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	stateCopy := *m.state
	stateCopy.CurrentState = m.fsm.Current()
	return &stateCopy
}

// trigger 触发事件，当前状态不允许该事件时保持原状态
func (m *Machine) trigger(event string, update func(s *BaselineState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fsm.Can(event) {
		return nil
	}
	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.state.CurrentState = m.fsm.Current()
	m.state.Since = time.Now()
	if update != nil {
		update(m.state)
	}
	return nil
}

// Tracker 各车辆基准状态管理器
type Tracker struct {
	mu       sync.RWMutex
	machines map[int64]*Machine
	onChange func(vehicleID int64, from, to string)
}

// NewTracker 创建管理器
func NewTracker(onChange func(vehicleID int64, from, to string)) *Tracker {
	return &Tracker{
		machines: make(map[int64]*Machine),
		onChange: onChange,
	}
}

// getOrCreate 获取或创建状态机
func (t *Tracker) getOrCreate(vehicleID int64) *Machine {
	t.mu.Lock()
	defer t.mu.Unlock()

	if machine, ok := t.machines[vehicleID]; ok {
		return machine
	}

	machine := NewMachine(vehicleID, t.onChange)
	t.machines[vehicleID] = machine
	return machine
}

// NeedsResolve 基准是否需要重新解析
func (t *Tracker) NeedsResolve(vehicleID int64) bool {
	return t.getOrCreate(vehicleID).CurrentState() != StateResolved
}

// Invalidate 标记车辆基准过期
func (t *Tracker) Invalidate(vehicleID int64) error {
	return t.getOrCreate(vehicleID).trigger(EventInvalidate, nil)
}

// Begin 开始解析
func (t *Tracker) Begin(vehicleID int64) error {
	return t.getOrCreate(vehicleID).trigger(EventBegin, nil)
}

// Succeed 解析成功，baselineID 为 nil 表示车辆没有充电记录
func (t *Tracker) Succeed(vehicleID int64, baselineID *int64) error {
	return t.getOrCreate(vehicleID).trigger(EventSucceed, func(s *BaselineState) {
		s.BaselineID = baselineID
		s.LastError = ""
	})
}

// Fail 解析失败
func (t *Tracker) Fail(vehicleID int64, cause error) error {
	return t.getOrCreate(vehicleID).trigger(EventFail, func(s *BaselineState) {
		if cause != nil {
			s.LastError = cause.Error()
		}
	})
}

// Get 获取车辆基准状态
func (t *Tracker) Get(vehicleID int64) (*BaselineState, bool) {
	t.mu.RLock()
	machine, ok := t.machines[vehicleID]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return machine.GetState(), true
}

// GetAllStates 获取所有车辆基准状态
func (t *Tracker) GetAllStates() map[int64]*BaselineState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make(map[int64]*BaselineState)
	for vehicleID, machine := range t.machines {
		states[vehicleID] = machine.GetState()
	}
	return states
}
