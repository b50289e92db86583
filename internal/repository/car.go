package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/chargelog/internal/models"
)

// VehicleRepository 车辆数据仓库
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// Create 创建车辆
func (r *VehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (user_id, name, model, nominal_efficiency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	now := time.Now()
	err := r.db.conn(ctx).QueryRow(ctx, query,
		v.UserID,
		v.Name,
		v.Model,
		v.NominalEfficiency,
		now,
		now,
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("insert vehicle: %w", err)
	}

	v.CreatedAt = now
	v.UpdatedAt = now
	return nil
}

// GetByID 获取用户的车辆
func (r *VehicleRepository) GetByID(ctx context.Context, userID, id int64) (*models.Vehicle, error) {
	query := `
		SELECT id, user_id, name, COALESCE(model, ''), nominal_efficiency, created_at, updated_at
		FROM vehicles WHERE id = $1 AND user_id = $2
	`
	v := &models.Vehicle{}
	err := r.db.conn(ctx).QueryRow(ctx, query, id, userID).Scan(
		&v.ID,
		&v.UserID,
		&v.Name,
		&v.Model,
		&v.NominalEfficiency,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle by id: %w", err)
	}
	return v, nil
}

// ListByUser 获取用户全部车辆
func (r *VehicleRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Vehicle, error) {
	query := `
		SELECT id, user_id, name, COALESCE(model, ''), nominal_efficiency, created_at, updated_at
		FROM vehicles WHERE user_id = $1 ORDER BY id
	`
	rows, err := r.db.conn(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v := &models.Vehicle{}
		err := rows.Scan(
			&v.ID,
			&v.UserID,
			&v.Name,
			&v.Model,
			&v.NominalEfficiency,
			&v.CreatedAt,
			&v.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicles: %w", err)
	}

	return vehicles, nil
}
