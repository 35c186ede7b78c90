package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
)

// SettingsService 配置服务接口
type SettingsService interface {
	GetMaxContactsPerPhone(ctx context.Context) (int, error)
	// SetMaxContactsPerPhone value >= 1，且不能低于当前占用最多的号码的关联数
	SetMaxContactsPerPhone(ctx context.Context, p *domain.Principal, value int) error
	// EnsureDefaults 配置缺失时写入默认值
	EnsureDefaults(ctx context.Context, maxContactsPerPhone int) error
}

type settingsService struct {
	store   repository.Store
	limiter *LinkLimiter
	audit   *AuditService
	logger  *zap.Logger
}

// NewSettingsService 创建 SettingsService
func NewSettingsService(s repository.Store, limiter *LinkLimiter, audit *AuditService, logger *zap.Logger) SettingsService {
	return &settingsService{
		store:   s,
		limiter: limiter,
		audit:   audit,
		logger:  logger,
	}
}

func (s *settingsService) GetMaxContactsPerPhone(ctx context.Context) (int, error) {
	return s.limiter.Limit(ctx, s.store.Repos().Settings, repository.LockNone)
}

func (s *settingsService) SetMaxContactsPerPhone(ctx context.Context, p *domain.Principal, value int) error {
	if value < 1 {
		return domain.Validationf("%s must be >= 1, got %d", domain.SettingMaxContactsPerPhone, value)
	}

	var entry *domain.AuditLog
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		// FOR UPDATE 等待持有 FOR SHARE 的容量检查结束
		old, err := s.limiter.Limit(ctx, r.Settings, repository.LockUpdate)
		if err != nil {
			return err
		}
		number, usage, err := r.Links.MaxActiveUsage(ctx)
		if err != nil {
			return err
		}
		if usage > value {
			return domain.Validationf("number %s already has %d active contacts, limit cannot be %d", number, usage, value)
		}
		if err := r.Settings.UpsertSetting(ctx, domain.SettingMaxContactsPerPhone, strconv.Itoa(value)); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, r, p, domain.ActionUpdate, domain.EntitySetting, 0, map[string]any{
			domain.SettingMaxContactsPerPhone: map[string]int{"old": old, "new": value},
		})
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("Updated phone sharing limit", zap.Int("value", value))
	s.audit.Mirror(ctx, entry)
	return nil
}

func (s *settingsService) EnsureDefaults(ctx context.Context, maxContactsPerPhone int) error {
	if maxContactsPerPhone < 1 {
		maxContactsPerPhone = 1
	}
	return s.store.Repos().Settings.EnsureSetting(ctx, domain.SettingMaxContactsPerPhone, strconv.Itoa(maxContactsPerPhone))
}
