package repository

import (
	"context"
	"fmt"

	"github.com/limbovvv/phone-directly/internal/domain"
)

// PostgresAuditRepository 审计日志Repository实现
type PostgresAuditRepository struct {
	db DBTX
}

// NewPostgresAuditRepository 创建审计日志Repository
func NewPostgresAuditRepository(db DBTX) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

var _ AuditRepository = (*PostgresAuditRepository)(nil)

// InsertAudit 追加审计日志
func (r *PostgresAuditRepository) InsertAudit(ctx context.Context, entry *domain.AuditLog) (int64, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO audit_log (user_id, action, entity, entity_id, diff_json, ip)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, entry.UserID, entry.Action, entry.Entity, entry.EntityID, entry.DiffJSON, entry.IP).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit log: %w", err)
	}
	return entry.ID, nil
}

// ListAudit 最近的审计日志（按时间倒序）
func (r *PostgresAuditRepository) ListAudit(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, action, entity, entity_id, diff_json, created_at, ip
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	defer rows.Close()

	items := []*domain.AuditLog{}
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Entity, &e.EntityID, &e.DiffJSON, &e.CreatedAt, &e.IP); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		items = append(items, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit log: %w", err)
	}
	return items, nil
}
