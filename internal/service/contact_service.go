package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
)

// ContactService 联系人服务接口
type ContactService interface {
	CreateContact(ctx context.Context, p *domain.Principal, req CreateContactRequest) (*ContactView, error)
	GetContact(ctx context.Context, id int64) (*ContactView, error)
	ArchiveContact(ctx context.Context, p *domain.Principal, id int64) error
	// RestoreContact 恢复归档联系人；其全部号码都必须还有容量
	RestoreContact(ctx context.Context, p *domain.Principal, id int64) error
	SearchContacts(ctx context.Context, req SearchContactsRequest) ([]*ContactView, error)
}

// CreateContactRequest 创建联系人请求
type CreateContactRequest struct {
	DepartmentID int64        `json:"department_id"` // 必填
	FullName     string       `json:"full_name"`     // 必填
	Phones       []PhoneInput `json:"phones,omitempty"`
}

// SearchContactsRequest 联系人查询请求
type SearchContactsRequest struct {
	DepartmentID    *int64 // 部门及其全部下级
	Query           string
	IncludeArchived bool
}

// ContactView 联系人（API 输出）
type ContactView struct {
	ID             int64       `json:"id"`
	DepartmentID   int64       `json:"department_id"`
	DepartmentPath string      `json:"department_path"`
	FullName       string      `json:"full_name"`
	IsArchived     bool        `json:"is_archived"`
	Phones         []PhoneView `json:"phones"`
}

type contactService struct {
	store       repository.Store
	departments DepartmentService
	linker      *phoneLinker
	audit       *AuditService
	notifier    Notifier
	logger      *zap.Logger
}

// NewContactService 创建 ContactService
func NewContactService(s repository.Store, departments DepartmentService, registry *PhoneRegistry, limiter *LinkLimiter, audit *AuditService, notifier Notifier, logger *zap.Logger) ContactService {
	return &contactService{
		store:       s,
		departments: departments,
		linker:      &phoneLinker{registry: registry, limiter: limiter},
		audit:       audit,
		notifier:    notifier,
		logger:      logger,
	}
}

func newContactView(c *domain.Contact, path string, links []domain.LinkedPhone) *ContactView {
	return &ContactView{
		ID:             c.ID,
		DepartmentID:   c.DepartmentID,
		DepartmentPath: path,
		FullName:       c.FullName,
		IsArchived:     c.IsArchived,
		Phones:         newPhoneViews(links),
	}
}

func (s *contactService) CreateContact(ctx context.Context, p *domain.Principal, req CreateContactRequest) (*ContactView, error) {
	fullName := strings.TrimSpace(req.FullName)
	if err := domain.ValidateFullName(fullName); err != nil {
		return nil, err
	}
	if req.DepartmentID <= 0 {
		return nil, domain.Validationf("department_id is required")
	}
	entries, err := normalizePhoneInputs(req.Phones)
	if err != nil {
		return nil, err
	}

	var (
		contact *domain.Contact
		links   []domain.LinkedPhone
		entry   *domain.AuditLog
	)
	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		if _, err := r.Departments.GetDepartment(ctx, req.DepartmentID); err != nil {
			return err
		}
		id, err := r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: req.DepartmentID, FullName: fullName})
		if err != nil {
			return err
		}
		contact, err = r.Contacts.GetContact(ctx, id)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			if links, err = s.linker.replaceLinks(ctx, r, contact, entries); err != nil {
				return err
			}
		}
		entry, err = s.audit.Record(ctx, r, p, domain.ActionCreate, domain.EntityContact, id, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Mirror(ctx, entry)
	paths, err := s.departments.Paths(ctx)
	if err != nil {
		return nil, err
	}
	return newContactView(contact, paths[contact.DepartmentID], links), nil
}

func (s *contactService) GetContact(ctx context.Context, id int64) (*ContactView, error) {
	repos := s.store.Repos()
	contact, err := repos.Contacts.GetContact(ctx, id)
	if err != nil {
		return nil, err
	}
	links, err := repos.Links.ListLinksByContact(ctx, id)
	if err != nil {
		return nil, err
	}
	paths, err := s.departments.Paths(ctx)
	if err != nil {
		return nil, err
	}
	return newContactView(contact, paths[contact.DepartmentID], links), nil
}

func (s *contactService) ArchiveContact(ctx context.Context, p *domain.Principal, id int64) error {
	return s.setArchived(ctx, p, id, true)
}

func (s *contactService) RestoreContact(ctx context.Context, p *domain.Principal, id int64) error {
	return s.setArchived(ctx, p, id, false)
}

func (s *contactService) setArchived(ctx context.Context, p *domain.Principal, id int64, archived bool) error {
	action := domain.ActionArchive
	if !archived {
		action = domain.ActionRestore
	}

	var (
		entry   *domain.AuditLog
		changed bool
	)
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		contact, err := r.Contacts.LockContact(ctx, id)
		if err != nil {
			return err
		}
		if contact.IsArchived == archived {
			return nil
		}

		if !archived {
			// 恢复后其关联重新计入容量
			links, err := r.Links.ListLinksByContact(ctx, id)
			if err != nil {
				return err
			}
			phones := make([]*domain.Phone, 0, len(links))
			for i := range links {
				phones = append(phones, &links[i].Phone)
			}
			if err := s.linker.limiter.RequireAll(ctx, r, phones, 1); err != nil {
				return err
			}
		}

		if err := r.Contacts.SetContactArchived(ctx, id, archived); err != nil {
			return err
		}
		changed = true
		entry, err = s.audit.Record(ctx, r, p, action, domain.EntityContact, id, nil)
		return err
	})
	if err != nil || !changed {
		return err
	}

	s.audit.Mirror(ctx, entry)
	s.notifier.Notify(ChangeEvent{Action: action, Entity: domain.EntityContact, EntityID: id})
	return nil
}

func (s *contactService) SearchContacts(ctx context.Context, req SearchContactsRequest) ([]*ContactView, error) {
	filter := repository.ContactFilter{
		Query:           strings.TrimSpace(req.Query),
		IncludeArchived: req.IncludeArchived,
	}
	if req.DepartmentID != nil {
		ids, err := s.departments.SubtreeIDs(ctx, *req.DepartmentID)
		switch {
		case err == nil:
			filter.DepartmentIDs = ids
		case errors.Is(err, domain.ErrNotFound):
			// 未知部门不作过滤
		default:
			return nil, err
		}
	}

	repos := s.store.Repos()
	contacts, err := repos.Contacts.ListContacts(ctx, filter)
	if err != nil {
		return nil, err
	}
	links, err := repos.Links.ListAllLinks(ctx)
	if err != nil {
		return nil, err
	}
	paths, err := s.departments.Paths(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]*ContactView, 0, len(contacts))
	for _, c := range contacts {
		items = append(items, newContactView(c, paths[c.DepartmentID], links[c.ID]))
	}
	return items, nil
}
