package analytics

import (
	"context"
	"fmt"

	"github.com/langchou/chargelog/internal/models"
)

// BaselineStore 基准解析所需的存储操作
type BaselineStore interface {
	// SessionsForVehicle 必须按 (日期, id) 升序返回
	SessionsForVehicle(ctx context.Context, userID, vehicleID int64) ([]*models.ChargingSession, error)
	SetBaselineFlag(ctx context.Context, sessionID int64, isBaseline bool) error
	ClearBaselineFlags(ctx context.Context, userID, vehicleID int64) error
}

// Resolver 基准解析器
//
// 每辆车最早的一条记录 (按日期，同日按 id) 为基准记录，不参与能效计算。
type Resolver struct {
	store BaselineStore
}

// NewResolver 创建解析器
func NewResolver(store BaselineStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve 清除旧标记后重新标记最早的记录
//
// 没有记录时返回 nil, nil。调用方负责在同一事务/锁内执行。
func (r *Resolver) Resolve(ctx context.Context, userID, vehicleID int64) (*models.SessionRef, error) {
	if err := r.store.ClearBaselineFlags(ctx, userID, vehicleID); err != nil {
		return nil, fmt.Errorf("clear baseline flags: %w", err)
	}

	sessions, err := r.store.SessionsForVehicle(ctx, userID, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	first := SortSessions(sessions)[0]
	if err := r.store.SetBaselineFlag(ctx, first.ID, true); err != nil {
		return nil, fmt.Errorf("set baseline flag: %w", err)
	}
	return first.Ref(), nil
}

// IsBaseline 是否为基准记录，字段缺失时为 false
func IsBaseline(s *models.ChargingSession) bool {
	return s.Baseline()
}
