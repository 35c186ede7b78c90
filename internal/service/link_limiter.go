package service

import (
	"context"
	"sort"
	"strconv"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
)

// LinkLimiter 单个号码的未归档联系人关联数上限
//
// 调用方必须处于事务中：Require 先对号码行加 FOR UPDATE 锁再计数，
// 同一号码上的并发检查因此串行化，直到持锁事务提交或回滚。
type LinkLimiter struct {
	defaultLimit int
}

// NewLinkLimiter 创建 LinkLimiter，defaultLimit 在配置缺失时使用
func NewLinkLimiter(defaultLimit int) *LinkLimiter {
	if defaultLimit < 1 {
		defaultLimit = 1
	}
	return &LinkLimiter{defaultLimit: defaultLimit}
}

// Limit 读取当前上限（每次调用都读库，不缓存）
func (l *LinkLimiter) Limit(ctx context.Context, settings repository.SettingsRepository, lock repository.LockMode) (int, error) {
	raw, ok, err := settings.GetSetting(ctx, domain.SettingMaxContactsPerPhone, lock)
	if err != nil {
		return 0, err
	}
	if !ok {
		return l.defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, domain.Integrityf("invalid %s setting %q", domain.SettingMaxContactsPerPhone, raw)
	}
	return limit, nil
}

// Require 未归档关联数 + proposed 不超过上限时返回 nil
// 超限时返回 *domain.LimitExceededError，Error() 为 "limit <L> exceeded for number <number>"
func (l *LinkLimiter) Require(ctx context.Context, r repository.Repos, phone *domain.Phone, proposed int) error {
	if _, err := r.Phones.LockPhone(ctx, phone.ID); err != nil {
		return err
	}
	limit, err := l.Limit(ctx, r.Settings, repository.LockShare)
	if err != nil {
		return err
	}
	active, err := r.Links.CountActiveLinks(ctx, phone.ID)
	if err != nil {
		return err
	}
	if active+proposed > limit {
		return &domain.LimitExceededError{Limit: limit, Number: phone.Number}
	}
	return nil
}

// RequireAll 每个号码新增 proposed 条关联
// 先按号码 id 升序加锁（固定加锁顺序），再按传入顺序检查，报告第一个超限的号码
func (l *LinkLimiter) RequireAll(ctx context.Context, r repository.Repos, phones []*domain.Phone, proposed int) error {
	ordered := append([]*domain.Phone(nil), phones...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	for _, p := range ordered {
		if _, err := r.Phones.LockPhone(ctx, p.ID); err != nil {
			return err
		}
	}

	for _, p := range phones {
		if err := l.Require(ctx, r, p, proposed); err != nil {
			return err
		}
	}
	return nil
}
