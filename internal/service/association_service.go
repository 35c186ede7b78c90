package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
)

// PhoneInput 请求中的一个号码
type PhoneInput struct {
	Type   string `json:"type"`
	Number string `json:"number"`
	Label  string `json:"label,omitempty"`
}

// PhoneView 联系人号码（API 输出）
type PhoneView struct {
	PhoneID   int64            `json:"phone_id"`
	Type      domain.PhoneType `json:"type"`
	Number    string           `json:"number"`
	Label     string           `json:"label,omitempty"`
	SortOrder int              `json:"sort_order"`
}

func newPhoneViews(links []domain.LinkedPhone) []PhoneView {
	views := make([]PhoneView, 0, len(links))
	for _, lp := range links {
		views = append(views, PhoneView{
			PhoneID:   lp.Phone.ID,
			Type:      lp.Phone.Type,
			Number:    lp.Phone.Number,
			Label:     lp.Link.Label.String,
			SortOrder: lp.Link.SortOrder,
		})
	}
	return views
}

type phoneEntry struct {
	Type   domain.PhoneType
	Number string
	Label  string
}

type phoneKey struct {
	Type   domain.PhoneType
	Number string
}

// normalizePhoneInputs 校验并去重；同一 (type, number) 只保留第一次出现
func normalizePhoneInputs(inputs []PhoneInput) ([]phoneEntry, error) {
	entries := make([]phoneEntry, 0, len(inputs))
	seen := make(map[phoneKey]bool, len(inputs))
	for i, in := range inputs {
		t, err := domain.ParsePhoneType(in.Type)
		if err != nil {
			return nil, err
		}
		number := NormalizeNumber(in.Number)
		if err := domain.ValidatePhoneNumber(number); err != nil {
			return nil, fmt.Errorf("phone %d: %w", i+1, err)
		}
		label := strings.TrimSpace(in.Label)
		if err := domain.ValidatePhoneLabel(label); err != nil {
			return nil, fmt.Errorf("phone %d: %w", i+1, err)
		}
		key := phoneKey{Type: t, Number: number}
		if seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, phoneEntry{Type: t, Number: number, Label: label})
	}
	return entries, nil
}

// phoneLinker 号码集合替换（关联管理与导入共用）
type phoneLinker struct {
	registry *PhoneRegistry
	limiter  *LinkLimiter
}

// replaceLinks 在 r 所属事务内整体替换联系人的号码
// 先删除旧关联再计数，联系人自己已有的关联不会被重复计入；归档联系人不占用容量
func (l *phoneLinker) replaceLinks(ctx context.Context, r repository.Repos, contact *domain.Contact, entries []phoneEntry) ([]domain.LinkedPhone, error) {
	if _, err := r.Links.DeleteLinksByContact(ctx, contact.ID); err != nil {
		return nil, err
	}

	phones := make([]*domain.Phone, 0, len(entries))
	for _, e := range entries {
		p, err := l.registry.FindOrCreate(ctx, r.Phones, e.Type, e.Number)
		if err != nil {
			return nil, err
		}
		phones = append(phones, p)
	}

	if !contact.IsArchived {
		if err := l.limiter.RequireAll(ctx, r, phones, 1); err != nil {
			return nil, err
		}
	}

	for i, p := range phones {
		link := &domain.ContactPhone{
			ContactID: contact.ID,
			PhoneID:   p.ID,
			SortOrder: i,
		}
		if entries[i].Label != "" {
			link.Label = sql.NullString{String: entries[i].Label, Valid: true}
		}
		if _, err := r.Links.InsertLink(ctx, link); err != nil {
			return nil, err
		}
	}
	return r.Links.ListLinksByContact(ctx, contact.ID)
}

// AssociationService 联系人-号码关联服务接口
type AssociationService interface {
	// ReplaceContactPhones 整体替换联系人的号码；任何一个号码超限时整个替换回滚
	ReplaceContactPhones(ctx context.Context, p *domain.Principal, contactID int64, phones []PhoneInput) ([]PhoneView, error)
}

type associationService struct {
	store    repository.Store
	linker   *phoneLinker
	audit    *AuditService
	notifier Notifier
	logger   *zap.Logger
}

// NewAssociationService 创建 AssociationService
func NewAssociationService(s repository.Store, registry *PhoneRegistry, limiter *LinkLimiter, audit *AuditService, notifier Notifier, logger *zap.Logger) AssociationService {
	return &associationService{
		store:    s,
		linker:   &phoneLinker{registry: registry, limiter: limiter},
		audit:    audit,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *associationService) ReplaceContactPhones(ctx context.Context, p *domain.Principal, contactID int64, phones []PhoneInput) ([]PhoneView, error) {
	entries, err := normalizePhoneInputs(phones)
	if err != nil {
		return nil, err
	}

	var (
		links []domain.LinkedPhone
		entry *domain.AuditLog
	)
	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		contact, err := r.Contacts.LockContact(ctx, contactID)
		if err != nil {
			return err
		}
		links, err = s.linker.replaceLinks(ctx, r, contact, entries)
		if err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, r, p, domain.ActionUpdatePhones, domain.EntityContact, contactID, map[string]any{
			"phones": newPhoneViews(links),
		})
		return err
	})
	if err != nil {
		s.logger.Info("Phone replacement rejected",
			zap.Int64("contact_id", contactID),
			zap.Error(err),
		)
		return nil, err
	}

	s.audit.Mirror(ctx, entry)
	s.notifier.Notify(ChangeEvent{
		Action:   domain.ActionUpdatePhones,
		Entity:   domain.EntityContact,
		EntityID: contactID,
	})
	return newPhoneViews(links), nil
}
