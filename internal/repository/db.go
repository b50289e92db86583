package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// querier pgxpool.Pool 与 pgx.Tx 的公共子集
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// conn 返回 ctx 中的事务，没有则返回连接池
func (db *DB) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db.Pool
}

// InTx 在事务中执行 fn，事务通过 ctx 传递给各仓库方法
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateVehicles,
		migrationCreateChargingSessions,
		migrationCreateSettings,
		migrationBaselineIndex,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    name VARCHAR(255) NOT NULL,
    model VARCHAR(100),
    nominal_efficiency DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicles_user_id ON vehicles(user_id);
`

const migrationCreateChargingSessions = `
CREATE TABLE IF NOT EXISTS charging_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    vehicle_id BIGINT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
    session_date TIMESTAMP WITH TIME ZONE NOT NULL,
    odometer DOUBLE PRECISION,
    energy_kwh DOUBLE PRECISION,
    temperature_c DOUBLE PRECISION,
    location VARCHAR(255),
    cost DOUBLE PRECISION,
    soc_start INT,
    soc_end INT,
    is_baseline BOOLEAN DEFAULT false,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_charging_sessions_vehicle_date ON charging_sessions(vehicle_id, session_date, id);
`

const migrationCreateSettings = `
CREATE TABLE IF NOT EXISTS settings (
    user_id BIGINT NOT NULL,
    key VARCHAR(100) NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (user_id, key)
);
`

// 每辆车最多一条基准记录
const migrationBaselineIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_charging_sessions_one_baseline
    ON charging_sessions(vehicle_id) WHERE is_baseline;
`
