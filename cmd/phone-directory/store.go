package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/common/database"
	"github.com/limbovvv/phone-directly/internal/config"
	"github.com/limbovvv/phone-directly/internal/repository"
	"github.com/limbovvv/phone-directly/migrations"
)

// openStore DB_ENABLED=false 时使用内存 Store（本地联调）
// 启用 DB 时连接或迁移失败直接返回错误，不回退到内存
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, func(), error) {
	if !cfg.DBEnabled {
		log.Warn("DB disabled, using in-memory store")
		return repository.NewMemoryStore(), func() {}, nil
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("DB enabled but connection failed: %w", err)
	}
	log.Info("DB enabled for phone-directory")

	if cfg.DBAutoMigrate {
		if err := migrations.Apply(ctx, db); err != nil {
			database.Close(db)
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("Migrations applied")
	}
	return repository.NewPostgresStore(db), func() { database.Close(db) }, nil
}
