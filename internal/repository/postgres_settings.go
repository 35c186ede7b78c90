package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresSettingsRepository 配置Repository实现
type PostgresSettingsRepository struct {
	db DBTX
}

// NewPostgresSettingsRepository 创建配置Repository
func NewPostgresSettingsRepository(db DBTX) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{db: db}
}

var _ SettingsRepository = (*PostgresSettingsRepository)(nil)

// GetSetting 读取配置（可加共享锁/排他锁）
func (r *PostgresSettingsRepository) GetSetting(ctx context.Context, key string, lock LockMode) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`+lockClause(lock), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// UpsertSetting 写入配置
func (r *PostgresSettingsRepository) UpsertSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", key, err)
	}
	return nil
}

// EnsureSetting 仅在不存在时写入
func (r *PostgresSettingsRepository) EnsureSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to ensure setting %s: %w", key, err)
	}
	return nil
}
