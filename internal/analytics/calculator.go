package analytics

import (
	"math"
	"slices"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/langchou/chargelog/internal/models"
)

// LitresPerGallon 英制加仑
const LitresPerGallon = 4.546

// 排除原因
const (
	ReasonNoAnchor           = "no_anchor"           // 前一条记录缺少里程
	ReasonMissingOdometer    = "missing_odometer"    // 本条记录缺少里程
	ReasonOdometerRegression = "odometer_regression" // 里程倒退
	ReasonZeroEnergy         = "zero_energy"         // 充电量缺失或为 0
	ReasonInvalidNumber      = "invalid_number"      // NaN / Inf
)

// SessionDelta 单条非基准记录相对前一条记录的计算结果
type SessionDelta struct {
	Session     *models.ChargingSession
	Distance    *float64 // 与前一条记录的里程差
	Efficiency  *float64 // mi/kWh
	CostPerMile *float64
	Excluded    string // 不参与能效计算的原因，空表示有效
}

// Energy 有效充电量，缺失或非正数返回 0
func (d SessionDelta) Energy() float64 {
	if d.Session.EnergyKWh == nil || !finite(*d.Session.EnergyKWh) || *d.Session.EnergyKWh <= 0 {
		return 0
	}
	return *d.Session.EnergyKWh
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func ptr[T any](v T) *T {
	return &v
}

// SortSessions 按 (日期, id) 升序排序，返回新切片
func SortSessions(sessions []*models.ChargingSession) []*models.ChargingSession {
	sorted := slices.Clone(sessions)
	slices.SortStableFunc(sorted, func(a, b *models.ChargingSession) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return sorted
}

// Deltas 遍历车辆完整历史，为每条非基准记录计算里程差与能效
//
// 基准记录只作为里程起点，不产生 delta。
func Deltas(sessions []*models.ChargingSession) []SessionDelta {
	var (
		out    []SessionDelta
		anchor *float64
	)

	for _, s := range SortSessions(sessions) {
		odo := s.Odometer
		if odo != nil && !finite(*odo) {
			odo = nil
		}

		if s.Baseline() {
			anchor = odo
			continue
		}

		d := SessionDelta{Session: s}
		switch {
		case s.Odometer != nil && odo == nil:
			d.Excluded = ReasonInvalidNumber
		case odo == nil:
			d.Excluded = ReasonMissingOdometer
		case anchor == nil:
			d.Excluded = ReasonNoAnchor
		default:
			d.Distance = ptr(*odo - *anchor)
			if *d.Distance < 0 {
				d.Excluded = ReasonOdometerRegression
			}
		}

		energy := d.Energy()
		if d.Excluded == "" && energy == 0 {
			d.Excluded = ReasonZeroEnergy
			if s.EnergyKWh != nil && !finite(*s.EnergyKWh) {
				d.Excluded = ReasonInvalidNumber
			}
		}
		if d.Excluded == "" {
			d.Efficiency = ptr(*d.Distance / energy)
		}
		if cost, ok := sessionCost(s); ok && d.Distance != nil && *d.Distance > 0 {
			d.CostPerMile = ptr(cost / *d.Distance)
		}

		out = append(out, d)
		anchor = odo
	}

	return out
}

func sessionCost(s *models.ChargingSession) (float64, bool) {
	if s.Cost == nil || !finite(*s.Cost) || *s.Cost < 0 {
		return 0, false
	}
	return *s.Cost, true
}

// Weighted 计算能量加权能效: Σ里程 / Σ电量
//
// 零电量或里程异常的记录只计入费用与电量合计，不计入能效分子分母。
func Weighted(deltas []SessionDelta) models.AggregateResult {
	res := models.AggregateResult{
		SessionCount: len(deltas),
		SessionIDs:   make([]int64, 0, len(deltas)),
	}

	var (
		effDistance, effEnergy []float64
		energies, costs        []float64
		distances              []float64
		costDistances          []float64
		costWithDistance       []float64
	)

	for _, d := range deltas {
		res.SessionIDs = append(res.SessionIDs, d.Session.ID)

		if e := d.Energy(); e > 0 {
			energies = append(energies, e)
		}
		if d.Distance != nil && *d.Distance >= 0 {
			distances = append(distances, *d.Distance)
		}
		if d.Efficiency != nil {
			effDistance = append(effDistance, *d.Distance)
			effEnergy = append(effEnergy, d.Energy())
		}
		if cost, ok := sessionCost(d.Session); ok {
			costs = append(costs, cost)
			if d.Distance != nil && *d.Distance >= 0 {
				costDistances = append(costDistances, *d.Distance)
				costWithDistance = append(costWithDistance, cost)
			}
		}
	}

	res.EfficiencySessionCount = len(effEnergy)
	res.TotalEnergyKWh = floats.Sum(energies)
	res.TotalDistance = floats.Sum(distances)
	res.TotalCost = floats.Sum(costs)

	if den := floats.Sum(effEnergy); den > 0 {
		res.Efficiency = ptr(floats.Sum(effDistance) / den)
	}
	// 每英里费用只用同时有费用和里程的记录，分子分母口径一致
	if miles, cost := floats.Sum(costDistances), floats.Sum(costWithDistance); miles > 0 && cost > 0 {
		res.CostPerMile = ptr(cost / miles)
	}

	return res
}

// MeanEfficiency 单次能效的算术平均，仅用于和加权值对照
func MeanEfficiency(deltas []SessionDelta) *float64 {
	var effs []float64
	for _, d := range deltas {
		if d.Efficiency != nil {
			effs = append(effs, *d.Efficiency)
		}
	}
	if len(effs) == 0 {
		return nil
	}
	return ptr(stat.Mean(effs, nil))
}

// CostPerKWh 有价格记录的平均每 kWh 费用
func CostPerKWh(deltas []SessionDelta) *float64 {
	var costs, energies []float64
	for _, d := range deltas {
		cost, ok := sessionCost(d.Session)
		if !ok || d.Energy() == 0 {
			continue
		}
		costs = append(costs, cost)
		energies = append(energies, d.Energy())
	}
	if den := floats.Sum(energies); den > 0 && len(costs) > 0 {
		return ptr(floats.Sum(costs) / den)
	}
	return nil
}

// PetrolCostPerMile 同价汽油车每英里费用: 油价 × 4.546 ÷ MPG
func PetrolCostPerMile(pricePerLitre, mpg float64) *float64 {
	if mpg <= 0 || pricePerLitre <= 0 || !finite(mpg) || !finite(pricePerLitre) {
		return nil
	}
	v := decimal.NewFromFloat(pricePerLitre).
		Mul(decimal.NewFromFloat(LitresPerGallon)).
		Div(decimal.NewFromFloat(mpg))
	return ptr(v.InexactFloat64())
}

// PetrolThreshold 等效油价阈值 (每 kWh)，保留一位小数
//
// threshold = 油价 × 4.546 ÷ MPG × 能效
func PetrolThreshold(pricePerLitre, mpg, efficiency float64) *float64 {
	if mpg <= 0 || pricePerLitre <= 0 || efficiency <= 0 ||
		!finite(mpg) || !finite(pricePerLitre) || !finite(efficiency) {
		return nil
	}
	v := decimal.NewFromFloat(pricePerLitre).
		Mul(decimal.NewFromFloat(LitresPerGallon)).
		Div(decimal.NewFromFloat(mpg)).
		Mul(decimal.NewFromFloat(efficiency)).
		Round(1)
	return ptr(v.InexactFloat64())
}
