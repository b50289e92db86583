package analytics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/langchou/chargelog/internal/models"
)

// UnspecifiedLocation 没有地点的记录归入此分组
const UnspecifiedLocation = "unspecified"

// DateRange 日期窗口，From 含、To 含 (整天)，nil 表示不限
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Contains 判断时间是否在窗口内
func (r *DateRange) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && !t.Before(endOfDay(*r.To)) {
		return false
	}
	return true
}

// endOfDay To 所在日期的下一天零点，To 当天任意时刻都在窗口内
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// Window 过滤窗口内的 delta；里程差仍基于完整历史计算
func Window(deltas []SessionDelta, r *DateRange) []SessionDelta {
	if r == nil {
		return deltas
	}
	var out []SessionDelta
	for _, d := range deltas {
		if r.Contains(d.Session.Date) {
			out = append(out, d)
		}
	}
	return out
}

func aggregate(deltas []SessionDelta, thin int) models.AggregateResult {
	res := Weighted(deltas)
	res.Thin = res.EfficiencySessionCount < thin
	return res
}

// Summary 汇总报表 (不含油价相关字段，由 Engine 补充)
func Summary(deltas []SessionDelta, window *DateRange, thin int) models.Summary {
	deltas = Window(deltas, window)

	sum := models.Summary{
		AggregateResult:       aggregate(deltas, thin),
		MeanSessionEfficiency: MeanEfficiency(deltas),
		CostPerKWh:            CostPerKWh(deltas),
		ExcludedSessionIDs:    []int64{},
	}
	if window != nil {
		sum.From = window.From
		sum.To = window.To
	}

	for _, d := range deltas {
		if d.Excluded != "" {
			sum.ExcludedSessionIDs = append(sum.ExcludedSessionIDs, d.Session.ID)
		}
		if d.CostPerMile == nil {
			continue
		}
		entry := &models.SessionCostPerMile{
			SessionID:   d.Session.ID,
			Date:        d.Session.Date,
			CostPerMile: *d.CostPerMile,
		}
		// 相同值保留较早的记录
		if sum.Cheapest == nil || entry.CostPerMile < sum.Cheapest.CostPerMile {
			sum.Cheapest = entry
		}
		if sum.MostExpensive == nil || entry.CostPerMile > sum.MostExpensive.CostPerMile {
			sum.MostExpensive = entry
		}
	}

	return sum
}

// rangeBuckets 根据边界生成区间，lo/hi 为 nil 表示无界
func rangeBuckets(edges []float64, lo, hi *float64, unit string) []models.Bucket {
	buckets := make([]models.Bucket, 0, len(edges)+1)
	for i := 0; i <= len(edges); i++ {
		lower, upper := lo, hi
		if i > 0 {
			lower = ptr(edges[i-1])
		}
		if i < len(edges) {
			upper = ptr(edges[i])
		}
		buckets = append(buckets, models.Bucket{
			Key:   rangeKey(lower, upper),
			Label: rangeLabel(lower, upper, unit),
			Lower: lower,
			Upper: upper,
		})
	}
	return buckets
}

func formatEdge(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func rangeKey(lower, upper *float64) string {
	switch {
	case lower == nil && upper == nil:
		return "all"
	case lower == nil:
		return "lt_" + formatEdge(*upper)
	case upper == nil:
		return "ge_" + formatEdge(*lower)
	}
	return formatEdge(*lower) + "_" + formatEdge(*upper)
}

func rangeLabel(lower, upper *float64, unit string) string {
	switch {
	case lower == nil && upper == nil:
		return "all"
	case lower == nil:
		return fmt.Sprintf("below %s%s", formatEdge(*upper), unit)
	case upper == nil:
		return fmt.Sprintf("%s%s+", formatEdge(*lower), unit)
	}
	return fmt.Sprintf("%s–%s%s", formatEdge(*lower), formatEdge(*upper), unit)
}

// bucketIndex 半开区间 [lo, hi) 的下标，即 <= v 的边界个数
func bucketIndex(edges []float64, v float64) int {
	return sort.Search(len(edges), func(i int) bool { return edges[i] > v })
}

func fillBuckets(buckets []models.Bucket, groups [][]SessionDelta, thin int) []models.Bucket {
	for i := range buckets {
		buckets[i].AggregateResult = aggregate(groups[i], thin)
	}
	return buckets
}

// Seasonal 按环境温度分箱，缺少温度的记录不参与
func Seasonal(deltas []SessionDelta, edges []float64, thin int) []models.Bucket {
	buckets := rangeBuckets(edges, nil, nil, "°C")
	groups := make([][]SessionDelta, len(buckets))

	for _, d := range deltas {
		t := d.Session.TemperatureC
		if t == nil || !finite(*t) {
			continue
		}
		i := bucketIndex(edges, *t)
		groups[i] = append(groups[i], d)
	}

	return fillBuckets(buckets, groups, thin)
}

// SweetSpot 按起始 SoC 分桶，缺少或越界 SoC 的记录不参与
func SweetSpot(deltas []SessionDelta, edges []float64, thin int) []models.Bucket {
	buckets := rangeBuckets(edges, ptr(0.0), ptr(100.0), "%")
	groups := make([][]SessionDelta, len(buckets))

	for _, d := range deltas {
		soc := d.Session.SoCStart
		if soc == nil || *soc < 0 || *soc > 100 {
			continue
		}
		// 100% 落在最后一个桶
		i := bucketIndex(edges, float64(*soc))
		groups[i] = append(groups[i], d)
	}

	return fillBuckets(buckets, groups, thin)
}

// LocationKey 地点归一化: 去空白、小写，空值归入 unspecified
func LocationKey(loc *string) string {
	if loc == nil {
		return UnspecifiedLocation
	}
	key := strings.ToLower(strings.TrimSpace(*loc))
	if key == "" {
		return UnspecifiedLocation
	}
	return key
}

// Leaderboard 按充电地点分组，能效高者在前，无能效的分组排在最后
func Leaderboard(deltas []SessionDelta, thin int) []models.Bucket {
	index := make(map[string]int)
	var (
		buckets []models.Bucket
		groups  [][]SessionDelta
	)

	for _, d := range deltas {
		key := LocationKey(d.Session.Location)
		i, ok := index[key]
		if !ok {
			label := "Unspecified"
			if key != UnspecifiedLocation {
				label = strings.TrimSpace(*d.Session.Location)
			}
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, models.Bucket{Key: key, Label: label})
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], d)
	}

	buckets = fillBuckets(buckets, groups, thin)

	sort.SliceStable(buckets, func(a, b int) bool {
		ea, eb := buckets[a].Efficiency, buckets[b].Efficiency
		switch {
		case ea != nil && eb == nil:
			return true
		case ea == nil && eb != nil:
			return false
		case ea != nil && eb != nil && *ea != *eb:
			return *ea > *eb
		}
		return buckets[a].Key < buckets[b].Key
	})

	return buckets
}
