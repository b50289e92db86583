package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/chargelog/internal/config"
	"github.com/langchou/chargelog/internal/metrics"
	"github.com/langchou/chargelog/internal/models"
	"github.com/langchou/chargelog/internal/state"
)

// ErrInvalidRange 日期窗口起点晚于终点
var ErrInvalidRange = errors.New("invalid date range")

// SessionStore 充电记录存储
type SessionStore interface {
	BaselineStore
	// WithVehicleLock 在锁定车辆的事务中执行 fn，fn 内的 ctx 携带该事务
	WithVehicleLock(ctx context.Context, userID, vehicleID int64, fn func(ctx context.Context) error) error
}

// VehicleStore 车辆存储
type VehicleStore interface {
	GetByID(ctx context.Context, userID, id int64) (*models.Vehicle, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Vehicle, error)
}

// SettingsStore 用户设置存储
type SettingsStore interface {
	GetAll(ctx context.Context, userID int64) (map[string]string, error)
}

// Options 分箱与成就配置
type Options struct {
	SeasonalBinEdges   []float64
	SoCBucketEdges     []float64
	ThinBucketSessions int
	Rules              Rules
}

// OptionsFromConfig 从配置生成
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SeasonalBinEdges:   cfg.SeasonalBinEdges,
		SoCBucketEdges:     cfg.SoCBucketEdges,
		ThinBucketSessions: cfg.ThinBucketSessions,
		Rules: Rules{
			EnergyMilestonesKWh: cfg.EnergyMilestonesKWh,
			SessionMilestones:   cfg.SessionMilestones,
		},
	}
}

// Resolution 单车基准解析结果
type Resolution struct {
	Baseline *models.SessionRef `json:"baseline"`
	Err      error              `json:"-"`
}

// Engine 基准与能效/费用分析引擎
type Engine struct {
	sessions SessionStore
	vehicles VehicleStore
	settings SettingsStore
	resolver *Resolver
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Collector
	tracker  *state.Tracker
}

// NewEngine 创建引擎
func NewEngine(
	sessions SessionStore,
	vehicles VehicleStore,
	settings SettingsStore,
	opts Options,
	logger *zap.Logger,
	collector *metrics.Collector,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		sessions: sessions,
		vehicles: vehicles,
		settings: settings,
		resolver: NewResolver(sessions),
		opts:     opts,
		logger:   logger,
		metrics:  collector,
	}
	e.tracker = state.NewTracker(e.onStateChange)
	return e
}

func (e *Engine) onStateChange(vehicleID int64, from, to string) {
	e.metrics.ObserveTransition(from, to)
	e.logger.Debug("Baseline state changed",
		zap.Int64("vehicle_id", vehicleID),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// BaselineState 车辆基准状态
func (e *Engine) BaselineState(vehicleID int64) (*state.BaselineState, bool) {
	return e.tracker.Get(vehicleID)
}

// BaselineStates 所有已跟踪车辆的基准状态
func (e *Engine) BaselineStates() map[int64]*state.BaselineState {
	return e.tracker.GetAllStates()
}

// ResolveBaseline 在车辆锁内重新解析基准
func (e *Engine) ResolveBaseline(ctx context.Context, userID, vehicleID int64) (*models.SessionRef, error) {
	return e.WriteSession(ctx, userID, vehicleID, nil)
}

// WriteSession 在同一事务中执行写入并重新解析基准
//
// write 为 nil 时只做解析。事务提交后基准状态才标记为 resolved。
func (e *Engine) WriteSession(ctx context.Context, userID, vehicleID int64, write func(ctx context.Context) error) (*models.SessionRef, error) {
	_ = e.tracker.Invalidate(vehicleID)
	_ = e.tracker.Begin(vehicleID)

	var ref *models.SessionRef
	err := e.sessions.WithVehicleLock(ctx, userID, vehicleID, func(ctx context.Context) error {
		if write != nil {
			if err := write(ctx); err != nil {
				return err
			}
		}
		var err error
		ref, err = e.resolver.Resolve(ctx, userID, vehicleID)
		return err
	})
	if err != nil {
		_ = e.tracker.Fail(vehicleID, err)
		e.metrics.ObserveResolution("error")
		return nil, err
	}

	var baselineID *int64
	outcome := "empty"
	if ref != nil {
		baselineID = &ref.ID
		outcome = "resolved"
	}
	_ = e.tracker.Succeed(vehicleID, baselineID)
	e.metrics.ObserveResolution(outcome)

	e.logger.Debug("Baseline resolved",
		zap.Int64("user_id", userID),
		zap.Int64("vehicle_id", vehicleID),
		zap.Int64p("baseline_id", baselineID),
	)
	return ref, nil
}

// ResolveAllBaselines 解析用户所有车辆，单车失败不影响其他车辆
func (e *Engine) ResolveAllBaselines(ctx context.Context, userID int64) (map[int64]Resolution, error) {
	vehicles, err := e.vehicles.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}

	results := make(map[int64]Resolution, len(vehicles))
	for _, v := range vehicles {
		ref, err := e.ResolveBaseline(ctx, userID, v.ID)
		if err != nil {
			e.logger.Warn("Failed to resolve baseline",
				zap.Int64("user_id", userID),
				zap.Int64("vehicle_id", v.ID),
				zap.Error(err),
			)
		}
		results[v.ID] = Resolution{Baseline: ref, Err: err}
	}
	return results, nil
}

// ensureResolved 计算前保证基准已解析
func (e *Engine) ensureResolved(ctx context.Context, userID, vehicleID int64) error {
	if !e.tracker.NeedsResolve(vehicleID) {
		return nil
	}
	if _, err := e.ResolveBaseline(ctx, userID, vehicleID); err != nil {
		return fmt.Errorf("resolve baseline: %w", err)
	}
	return nil
}

// load 校验车辆归属、保证基准并计算 delta
func (e *Engine) load(ctx context.Context, userID, vehicleID int64) (*models.Vehicle, []SessionDelta, error) {
	vehicle, err := e.vehicles.GetByID(ctx, userID, vehicleID)
	if err != nil {
		return nil, nil, fmt.Errorf("get vehicle: %w", err)
	}
	if err := e.ensureResolved(ctx, userID, vehicleID); err != nil {
		return nil, nil, err
	}

	sessions, err := e.sessions.SessionsForVehicle(ctx, userID, vehicleID)
	if err != nil {
		return nil, nil, fmt.Errorf("load sessions: %w", err)
	}

	deltas := Deltas(sessions)
	for _, d := range deltas {
		if d.Excluded == "" {
			continue
		}
		e.metrics.ObserveExcluded(d.Excluded, 1)
		e.logger.Debug("Session excluded from efficiency",
			zap.Int64("vehicle_id", vehicleID),
			zap.Int64("session_id", d.Session.ID),
			zap.String("reason", d.Excluded),
		)
	}
	return vehicle, deltas, nil
}

// loadSettings 读取并解析用户设置
func (e *Engine) loadSettings(ctx context.Context, userID int64) (Settings, error) {
	values, err := e.settings.GetAll(ctx, userID)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return ParseSettings(values, e.logger.With(zap.Int64("user_id", userID))), nil
}

func (e *Engine) summarize(vehicle *models.Vehicle, deltas []SessionDelta, window *DateRange, settings Settings) models.Summary {
	sum := Summary(deltas, window, e.opts.ThinBucketSessions)
	sum.VehicleID = vehicle.ID
	sum.Currency = settings.Currency

	// 能效兜底: 实测 → 车辆标称 → 用户默认
	switch {
	case sum.Efficiency != nil:
		sum.EffectiveEfficiency = *sum.Efficiency
	case vehicle.NominalEfficiency > 0:
		sum.EffectiveEfficiency = vehicle.NominalEfficiency
	default:
		sum.EffectiveEfficiency = settings.DefaultEfficiency
	}

	sum.PetrolCostPerMile = PetrolCostPerMile(settings.PetrolPricePerLitre, settings.PetrolMPG)
	sum.PetrolThreshold = PetrolThreshold(settings.PetrolPricePerLitre, settings.PetrolMPG, sum.EffectiveEfficiency)
	if sum.PetrolThreshold != nil && sum.CostPerKWh != nil {
		sum.BelowPetrolThreshold = ptr(*sum.CostPerKWh < *sum.PetrolThreshold)
	}
	return sum
}

// ComputeSummary 汇总报表，window 为 nil 表示全部历史
func (e *Engine) ComputeSummary(ctx context.Context, userID, vehicleID int64, window *DateRange) (*models.Summary, error) {
	defer e.metrics.ObserveReport("summary", time.Now())

	if window != nil && window.From != nil && window.To != nil && window.From.After(*window.To) {
		return nil, ErrInvalidRange
	}

	vehicle, deltas, err := e.load(ctx, userID, vehicleID)
	if err != nil {
		return nil, err
	}
	settings, err := e.loadSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum := e.summarize(vehicle, deltas, window, settings)
	return &sum, nil
}

// ComputeSeasonal 温度分箱报表
func (e *Engine) ComputeSeasonal(ctx context.Context, userID, vehicleID int64) ([]models.Bucket, error) {
	defer e.metrics.ObserveReport("seasonal", time.Now())

	_, deltas, err := e.load(ctx, userID, vehicleID)
	if err != nil {
		return nil, err
	}
	return Seasonal(deltas, e.opts.SeasonalBinEdges, e.opts.ThinBucketSessions), nil
}

// ComputeLeaderboard 充电地点排行
func (e *Engine) ComputeLeaderboard(ctx context.Context, userID, vehicleID int64) ([]models.Bucket, error) {
	defer e.metrics.ObserveReport("leaderboard", time.Now())

	_, deltas, err := e.load(ctx, userID, vehicleID)
	if err != nil {
		return nil, err
	}
	return Leaderboard(deltas, e.opts.ThinBucketSessions), nil
}

// ComputeSweetSpot 起始 SoC 分桶报表
func (e *Engine) ComputeSweetSpot(ctx context.Context, userID, vehicleID int64) ([]models.Bucket, error) {
	defer e.metrics.ObserveReport("sweet_spot", time.Now())

	_, deltas, err := e.load(ctx, userID, vehicleID)
	if err != nil {
		return nil, err
	}
	return SweetSpot(deltas, e.opts.SoCBucketEdges, e.opts.ThinBucketSessions), nil
}

// EvaluateAchievements 基于全部历史生成成就候选
func (e *Engine) EvaluateAchievements(ctx context.Context, userID, vehicleID int64) ([]models.AchievementCandidate, error) {
	defer e.metrics.ObserveReport("achievements", time.Now())

	vehicle, deltas, err := e.load(ctx, userID, vehicleID)
	if err != nil {
		return nil, err
	}
	settings, err := e.loadSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum := e.summarize(vehicle, deltas, nil, settings)
	return Evaluate(deltas, sum, e.opts.Rules), nil
}
