package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/chargelog/internal/models"
)

const sessionColumns = `id, user_id, vehicle_id, session_date, odometer, energy_kwh, temperature_c, location, cost,
	soc_start, soc_end, is_baseline, created_at, updated_at`

// SessionRepository 充电记录仓库
type SessionRepository struct {
	db *DB
}

// NewSessionRepository 创建充电记录仓库
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (*models.ChargingSession, error) {
	s := &models.ChargingSession{}
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.VehicleID,
		&s.Date,
		&s.Odometer,
		&s.EnergyKWh,
		&s.TemperatureC,
		&s.Location,
		&s.Cost,
		&s.SoCStart,
		&s.SoCEnd,
		&s.IsBaseline,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

func collectSessions(rows pgx.Rows) ([]*models.ChargingSession, error) {
	defer rows.Close()

	var sessions []*models.ChargingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charging session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate charging sessions: %w", err)
	}
	return sessions, nil
}

// WithVehicleLock 锁定车辆行后在同一事务中执行 fn
//
// 同一车辆的并发写入与基准解析因此串行化。车辆不属于该用户时返回 ErrNotFound。
func (r *SessionRepository) WithVehicleLock(ctx context.Context, userID, vehicleID int64, fn func(ctx context.Context) error) error {
	return r.db.InTx(ctx, func(ctx context.Context) error {
		var id int64
		err := r.db.conn(ctx).QueryRow(ctx,
			`SELECT id FROM vehicles WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			vehicleID, userID,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock vehicle: %w", err)
		}
		return fn(ctx)
	})
}

// SessionsForVehicle 按 (日期, id) 升序返回车辆全部充电记录
func (r *SessionRepository) SessionsForVehicle(ctx context.Context, userID, vehicleID int64) ([]*models.ChargingSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM charging_sessions WHERE user_id = $1 AND vehicle_id = $2
		ORDER BY session_date ASC, id ASC`
	rows, err := r.db.conn(ctx).Query(ctx, query, userID, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list sessions for vehicle: %w", err)
	}
	return collectSessions(rows)
}

// SetBaselineFlag 设置单条记录的基准标记
func (r *SessionRepository) SetBaselineFlag(ctx context.Context, sessionID int64, isBaseline bool) error {
	tag, err := r.db.conn(ctx).Exec(ctx,
		`UPDATE charging_sessions SET is_baseline = $1 WHERE id = $2`,
		isBaseline, sessionID,
	)
	if err != nil {
		return fmt.Errorf("set baseline flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearBaselineFlags 清除车辆全部基准标记
func (r *SessionRepository) ClearBaselineFlags(ctx context.Context, userID, vehicleID int64) error {
	_, err := r.db.conn(ctx).Exec(ctx,
		`UPDATE charging_sessions SET is_baseline = false
		WHERE user_id = $1 AND vehicle_id = $2 AND is_baseline IS DISTINCT FROM false`,
		userID, vehicleID,
	)
	if err != nil {
		return fmt.Errorf("clear baseline flags: %w", err)
	}
	return nil
}

// Create 创建充电记录，基准标记总是写为 false
func (r *SessionRepository) Create(ctx context.Context, s *models.ChargingSession) error {
	query := `
		INSERT INTO charging_sessions (user_id, vehicle_id, session_date, odometer, energy_kwh, temperature_c,
			location, cost, soc_start, soc_end, is_baseline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, $11, $12)
		RETURNING id
	`
	now := time.Now()
	err := r.db.conn(ctx).QueryRow(ctx, query,
		s.UserID,
		s.VehicleID,
		s.Date,
		s.Odometer,
		s.EnergyKWh,
		s.TemperatureC,
		s.Location,
		s.Cost,
		s.SoCStart,
		s.SoCEnd,
		now,
		now,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert charging session: %w", err)
	}

	notBaseline := false
	s.IsBaseline = &notBaseline
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// Update 更新充电记录 (不修改 vehicle_id 与基准标记)
func (r *SessionRepository) Update(ctx context.Context, s *models.ChargingSession) error {
	query := `
		UPDATE charging_sessions SET
			session_date = $1,
			odometer = $2,
			energy_kwh = $3,
			temperature_c = $4,
			location = $5,
			cost = $6,
			soc_start = $7,
			soc_end = $8,
			updated_at = $9
		WHERE id = $10 AND user_id = $11
	`
	s.UpdatedAt = time.Now()
	tag, err := r.db.conn(ctx).Exec(ctx, query,
		s.Date,
		s.Odometer,
		s.EnergyKWh,
		s.TemperatureC,
		s.Location,
		s.Cost,
		s.SoCStart,
		s.SoCEnd,
		s.UpdatedAt,
		s.ID,
		s.UserID,
	)
	if err != nil {
		return fmt.Errorf("update charging session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除充电记录
func (r *SessionRepository) Delete(ctx context.Context, userID, id int64) error {
	tag, err := r.db.conn(ctx).Exec(ctx,
		`DELETE FROM charging_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete charging session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID 获取充电记录
func (r *SessionRepository) GetByID(ctx context.Context, userID, id int64) (*models.ChargingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM charging_sessions WHERE id = $1 AND user_id = $2`
	s, err := scanSession(r.db.conn(ctx).QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get charging session: %w", err)
	}
	return s, nil
}

// ListByVehicle 分页获取车辆充电记录 (新到旧)
func (r *SessionRepository) ListByVehicle(ctx context.Context, userID, vehicleID int64, limit, offset int) ([]*models.ChargingSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM charging_sessions WHERE user_id = $1 AND vehicle_id = $2
		ORDER BY session_date DESC, id DESC LIMIT $3 OFFSET $4`
	rows, err := r.db.conn(ctx).Query(ctx, query, userID, vehicleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list charging sessions: %w", err)
	}
	return collectSessions(rows)
}

// CountByVehicle 统计车辆充电次数
func (r *SessionRepository) CountByVehicle(ctx context.Context, userID, vehicleID int64) (int64, error) {
	var count int64
	err := r.db.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM charging_sessions WHERE user_id = $1 AND vehicle_id = $2`,
		userID, vehicleID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count charging sessions: %w", err)
	}
	return count, nil
}
