package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector 分析引擎的 Prometheus 指标
//
// 所有方法对 nil 接收者安全，测试中可直接传 nil。
type Collector struct {
	resolutions *prometheus.CounterVec
	reports     *prometheus.HistogramVec
	excluded    *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// New 在默认 registerer 上注册指标
func New() (*Collector, error) {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry 在指定 registerer 上注册指标，nil 使用默认 registerer
func NewWithRegistry(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chargelog_baseline_resolutions_total",
		Help: "Baseline resolutions by outcome",
	}, []string{"outcome"})
	reports := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chargelog_report_duration_seconds",
		Help:    "Time spent computing an analytics report",
		Buckets: prometheus.DefBuckets,
	}, []string{"report"})
	excluded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chargelog_sessions_excluded_total",
		Help: "Sessions excluded from efficiency math by reason",
	}, []string{"reason"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chargelog_baseline_state_transitions_total",
		Help: "Baseline freshness state transitions",
	}, []string{"from", "to"})

	var err error
	if resolutions, err = register(reg, resolutions); err != nil {
		return nil, err
	}
	if reports, err = register(reg, reports); err != nil {
		return nil, err
	}
	if excluded, err = register(reg, excluded); err != nil {
		return nil, err
	}
	if transitions, err = register(reg, transitions); err != nil {
		return nil, err
	}

	return &Collector{
		resolutions: resolutions,
		reports:     reports,
		excluded:    excluded,
		transitions: transitions,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveResolution 记录基准解析结果: resolved / empty / error
func (c *Collector) ObserveResolution(outcome string) {
	if c == nil {
		return
	}
	c.resolutions.WithLabelValues(outcome).Inc()
}

// ObserveReport 记录报表计算耗时
func (c *Collector) ObserveReport(report string, started time.Time) {
	if c == nil {
		return
	}
	c.reports.WithLabelValues(report).Observe(time.Since(started).Seconds())
}

// ObserveExcluded 记录被排除的充电记录
func (c *Collector) ObserveExcluded(reason string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.excluded.WithLabelValues(reason).Add(float64(n))
}

// ObserveTransition 记录基准状态转换
func (c *Collector) ObserveTransition(from, to string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(from, to).Inc()
}
