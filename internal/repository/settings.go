package repository

import (
	"context"
	"fmt"
)

// SettingsRepository 用户设置仓库
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository 创建设置仓库
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetAll 获取用户全部设置
func (r *SettingsRepository) GetAll(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT key, value FROM settings WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return values, nil
}

// Set 写入单个设置
func (r *SettingsRepository) Set(ctx context.Context, userID int64, key, value string) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO settings (user_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value
	`, userID, key, value)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}
