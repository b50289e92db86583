package models

import "time"

// Vehicle 车辆信息
type Vehicle struct {
	ID     int64  `json:"id" db:"id"`
	UserID int64  `json:"user_id" db:"user_id"`
	Name   string `json:"name" db:"name"`
	Model  string `json:"model" db:"model"`
	// 标称能效 (mi/kWh)，没有充电数据时用作兜底
	NominalEfficiency float64   `json:"nominal_efficiency" db:"nominal_efficiency"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Setting 用户设置 (key/value)
type Setting struct {
	UserID int64  `json:"user_id" db:"user_id"`
	Key    string `json:"key" db:"key"`
	Value  string `json:"value" db:"value"`
}
