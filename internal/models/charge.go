package models

import "time"

// ChargingSession 充电记录
//
// 可选字段都用指针表示，NULL 在扫描时保留为 nil。
// IsBaseline 由基准解析器维护，不接受用户输入。
type ChargingSession struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	VehicleID    int64     `json:"vehicle_id" db:"vehicle_id"`
	Date         time.Time `json:"date" db:"session_date"`
	Odometer     *float64  `json:"odometer,omitempty" db:"odometer"`           // 英里
	EnergyKWh    *float64  `json:"energy_kwh,omitempty" db:"energy_kwh"`       // 本次充入电量
	TemperatureC *float64  `json:"temperature_c,omitempty" db:"temperature_c"` // 环境温度
	Location     *string   `json:"location,omitempty" db:"location"`
	Cost         *float64  `json:"cost,omitempty" db:"cost"`
	SoCStart     *int      `json:"soc_start,omitempty" db:"soc_start"` // %
	SoCEnd       *int      `json:"soc_end,omitempty" db:"soc_end"`     // %
	IsBaseline   *bool     `json:"is_baseline,omitempty" db:"is_baseline"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Baseline 是否为基准记录，字段缺失时视为 false
func (s *ChargingSession) Baseline() bool {
	return s != nil && s.IsBaseline != nil && *s.IsBaseline
}

// SessionRef 充电记录引用
type SessionRef struct {
	ID        int64     `json:"id"`
	VehicleID int64     `json:"vehicle_id"`
	Date      time.Time `json:"date"`
}

// Ref 生成引用
func (s *ChargingSession) Ref() *SessionRef {
	return &SessionRef{ID: s.ID, VehicleID: s.VehicleID, Date: s.Date}
}
