package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "github.com/limbovvv/phone-directly/common/redis"
	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
)

const (
	// MaxAuditListLimit 审计列表单次最多返回条数
	MaxAuditListLimit = 200

	auditStreamMaxLen = 10000
)

// AuditService 审计日志
// 写入与业务修改处于同一事务；提交后可选地镜像到 Redis Stream
type AuditService struct {
	store  repository.Store
	redis  *redis.Client // 可为 nil
	stream string
	logger *zap.Logger
}

// NewAuditService 创建 AuditService，redisClient 为 nil 时不镜像
func NewAuditService(store repository.Store, redisClient *redis.Client, stream string, logger *zap.Logger) *AuditService {
	return &AuditService{
		store:  store,
		redis:  redisClient,
		stream: stream,
		logger: logger,
	}
}

// AuditEntryView 审计日志（API 输出）
type AuditEntryView struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  *int64    `json:"entity_id,omitempty"`
	Diff      string    `json:"diff,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newAuditEntryView(e *domain.AuditLog) AuditEntryView {
	v := AuditEntryView{
		ID:        e.ID,
		Action:    e.Action,
		Entity:    e.Entity,
		Diff:      e.DiffJSON.String,
		IP:        e.IP.String,
		CreatedAt: e.CreatedAt,
	}
	if e.UserID.Valid {
		id := e.UserID.Int64
		v.UserID = &id
	}
	if e.EntityID.Valid {
		id := e.EntityID.Int64
		v.EntityID = &id
	}
	return v
}

// Record 在 r 所属事务内追加一条审计日志
// diff 为 string 时原样保存，其它非 nil 值序列化为 JSON
func (a *AuditService) Record(ctx context.Context, r repository.Repos, p *domain.Principal, action, entity string, entityID int64, diff any) (*domain.AuditLog, error) {
	entry := &domain.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: sql.NullInt64{Int64: entityID, Valid: true},
	}
	if p != nil {
		entry.UserID = sql.NullInt64{Int64: p.UserID, Valid: true}
		if p.IP != "" {
			entry.IP = sql.NullString{String: p.IP, Valid: true}
		}
	}

	switch v := diff.(type) {
	case nil:
	case string:
		entry.DiffJSON = sql.NullString{String: v, Valid: v != ""}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit diff: %w", err)
		}
		entry.DiffJSON = sql.NullString{String: string(b), Valid: true}
	}

	if _, err := r.Audit.InsertAudit(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Mirror 将已提交的审计日志发布到 Redis Stream（失败只记录日志）
func (a *AuditService) Mirror(ctx context.Context, entries ...*domain.AuditLog) {
	if a.redis == nil || a.stream == "" {
		return
	}
	for _, e := range entries {
		if e == nil {
			continue
		}
		if _, err := rediscommon.PublishJSONToStream(ctx, a.redis, a.stream, auditStreamMaxLen, newAuditEntryView(e)); err != nil {
			a.logger.Warn("Failed to mirror audit entry",
				zap.Int64("audit_id", e.ID),
				zap.String("stream", a.stream),
				zap.Error(err),
			)
		}
	}
}

// List 最近的审计日志；limit <= 0 或超过上限时取上限
func (a *AuditService) List(ctx context.Context, limit int) ([]AuditEntryView, error) {
	if limit <= 0 || limit > MaxAuditListLimit {
		limit = MaxAuditListLimit
	}
	entries, err := a.store.Repos().Audit.ListAudit(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]AuditEntryView, 0, len(entries))
	for _, e := range entries {
		items = append(items, newAuditEntryView(e))
	}
	return items, nil
}
