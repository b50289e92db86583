package models

import "time"

// AggregateResult 聚合结果
//
// Efficiency / CostPerMile 为 nil 表示没有数据，展示层应显示占位符而不是 0。
type AggregateResult struct {
	SessionCount           int      `json:"session_count"`
	SessionIDs             []int64  `json:"session_ids"`
	EfficiencySessionCount int      `json:"efficiency_session_count"` // 里程与电量均有效的记录数
	TotalDistance          float64  `json:"total_distance"`           // 英里
	TotalEnergyKWh         float64  `json:"total_energy_kwh"`
	TotalCost              float64  `json:"total_cost"`
	Efficiency             *float64 `json:"efficiency"`    // mi/kWh，按能量加权
	CostPerMile            *float64 `json:"cost_per_mile"` // 总费用 / 总里程
	Thin                   bool     `json:"thin"`          // 样本过少
}

// SessionCostPerMile 单次充电的每英里费用
type SessionCostPerMile struct {
	SessionID   int64     `json:"session_id"`
	Date        time.Time `json:"date"`
	CostPerMile float64   `json:"cost_per_mile"`
}

// Summary 汇总报表
type Summary struct {
	AggregateResult
	VehicleID             int64               `json:"vehicle_id"`
	From                  *time.Time          `json:"from,omitempty"`
	To                    *time.Time          `json:"to,omitempty"`
	MeanSessionEfficiency *float64            `json:"mean_session_efficiency"` // 算术平均，仅供对照
	Cheapest              *SessionCostPerMile `json:"cheapest"`
	MostExpensive         *SessionCostPerMile `json:"most_expensive"`
	CostPerKWh            *float64            `json:"cost_per_kwh"`
	EffectiveEfficiency   float64             `json:"effective_efficiency"` // 计算阈值所用能效
	PetrolThreshold       *float64            `json:"petrol_threshold"`     // 每 kWh 等效油价
	PetrolCostPerMile     *float64            `json:"petrol_cost_per_mile"`
	BelowPetrolThreshold  *bool               `json:"below_petrol_threshold"`
	Currency              string              `json:"currency"`
	ExcludedSessionIDs    []int64             `json:"excluded_session_ids"` // 数据异常被排除的记录
}

// Bucket 分组结果 (温度区间 / 地点 / SoC 区间)
type Bucket struct {
	Key   string   `json:"key"`
	Label string   `json:"label"`
	Lower *float64 `json:"lower,omitempty"` // 含
	Upper *float64 `json:"upper,omitempty"` // 不含
	AggregateResult
}

// AchievementCandidate 成就解锁候选
type AchievementCandidate struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	SessionID *int64  `json:"session_id,omitempty"`
}
