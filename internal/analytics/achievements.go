package analytics

import (
	"fmt"
	"strconv"

	"github.com/langchou/chargelog/internal/models"
)

// 成就代码
const (
	CodeRecordCheapestMile = "record_cheapest_mile"
	CodeRecordEfficiency   = "record_efficiency"
	CodeBeatPetrol         = "beat_petrol"
)

// Rules 成就阈值
type Rules struct {
	EnergyMilestonesKWh []float64
	SessionMilestones   []int
}

// Evaluate 根据完整历史与汇总生成成就候选
//
// 无状态，对相同输入总是返回相同的有序结果，去重由成就存储按 Code 完成。
func Evaluate(deltas []SessionDelta, summary models.Summary, rules Rules) []models.AchievementCandidate {
	var out []models.AchievementCandidate

	for _, m := range rules.EnergyMilestonesKWh {
		if m > 0 && summary.TotalEnergyKWh >= m {
			label := strconv.FormatFloat(m, 'f', -1, 64)
			out = append(out, models.AchievementCandidate{
				Code:  "energy_" + label + "kwh",
				Name:  label + " kWh Charged",
				Value: summary.TotalEnergyKWh,
			})
		}
	}

	for _, m := range rules.SessionMilestones {
		if m > 0 && len(deltas) >= m {
			out = append(out, models.AchievementCandidate{
				Code:  fmt.Sprintf("sessions_%d", m),
				Name:  fmt.Sprintf("%d Charging Sessions", m),
				Value: float64(len(deltas)),
			})
		}
	}

	if c, ok := latestRecord(deltas, func(d SessionDelta) *float64 { return d.CostPerMile }, func(a, b float64) bool { return a < b }); ok {
		c.Code = CodeRecordCheapestMile
		c.Name = "Cheapest Mile Yet"
		out = append(out, c)
	}

	if c, ok := latestRecord(deltas, func(d SessionDelta) *float64 { return d.Efficiency }, func(a, b float64) bool { return a > b }); ok {
		c.Code = CodeRecordEfficiency
		c.Name = "Efficiency Record"
		out = append(out, c)
	}

	if summary.BelowPetrolThreshold != nil && *summary.BelowPetrolThreshold && summary.CostPerKWh != nil {
		out = append(out, models.AchievementCandidate{
			Code:  CodeBeatPetrol,
			Name:  "Cheaper Than Petrol",
			Value: *summary.CostPerKWh,
		})
	}

	return out
}

// latestRecord 最近一条有值的记录是否严格优于之前所有记录
func latestRecord(deltas []SessionDelta, value func(SessionDelta) *float64, better func(a, b float64) bool) (models.AchievementCandidate, bool) {
	var (
		best    *float64
		latest  *SessionDelta
		earlier int
	)

	for i := range deltas {
		v := value(deltas[i])
		if v == nil {
			continue
		}
		if latest != nil {
			prev := *value(*latest)
			if best == nil || better(prev, *best) {
				best = ptr(prev)
			}
			earlier++
		}
		latest = &deltas[i]
	}

	if latest == nil || earlier == 0 {
		return models.AchievementCandidate{}, false
	}

	v := *value(*latest)
	if !better(v, *best) {
		return models.AchievementCandidate{}, false
	}
	return models.AchievementCandidate{
		Value:     v,
		SessionID: ptr(latest.Session.ID),
	}, true
}
