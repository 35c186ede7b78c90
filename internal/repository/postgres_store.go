package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore PostgreSQL 实现的 Store
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore 创建 PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// 确保实现了接口
var _ Store = (*PostgresStore)(nil)

func newPostgresRepos(q DBTX) Repos {
	return Repos{
		Departments: NewPostgresDepartmentsRepository(q),
		Contacts:    NewPostgresContactsRepository(q),
		Phones:      NewPostgresPhonesRepository(q),
		Links:       NewPostgresContactPhonesRepository(q),
		Settings:    NewPostgresSettingsRepository(q),
		Audit:       NewPostgresAuditRepository(q),
		Users:       NewPostgresUsersRepository(q),
	}
}

// Repos 非事务 Repository（自动提交）
func (s *PostgresStore) Repos() Repos {
	return newPostgresRepos(s.db)
}

// WithTx 在 READ COMMITTED 事务中执行 fn
// ctx 取消时 database/sql 会自动回滚
func (s *PostgresStore) WithTx(ctx context.Context, fn func(r Repos) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newPostgresRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Snapshot 在 REPEATABLE READ READ ONLY 事务中执行 fn（导出等多次读取需要同一快照）
func (s *PostgresStore) Snapshot(ctx context.Context, fn func(r Repos) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newPostgresRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// isUniqueViolation 23505 unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isForeignKeyViolation 23503 foreign_key_violation
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func lockClause(lock LockMode) string {
	switch lock {
	case LockShare:
		return " FOR SHARE"
	case LockUpdate:
		return " FOR UPDATE"
	}
	return ""
}
