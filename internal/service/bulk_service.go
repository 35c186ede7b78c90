package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
)

// 导入/导出表格列（导出按此顺序）
const (
	ColumnDepartmentPath = "DepartmentPath"
	ColumnFullName       = "FullName"
	ColumnPhonesCity     = "PhonesCity"
	ColumnPhonesInternal = "PhonesInternal"
	ColumnPhonesIP       = "PhonesIP"
	ColumnArchived       = "Archived"

	// PhoneListSeparator 同一类型多个号码的分隔符
	PhoneListSeparator = domain.PhoneListDelimiter
)

// Columns 固定列顺序
var Columns = []string{
	ColumnDepartmentPath,
	ColumnFullName,
	ColumnPhonesCity,
	ColumnPhonesInternal,
	ColumnPhonesIP,
	ColumnArchived,
}

// Row 表格中的一行
type Row struct {
	DepartmentPath string
	FullName       string
	PhonesCity     string
	PhonesInternal string
	PhonesIP       string
	Archived       string
}

// RowFromFields 由列名 -> 值构造 Row（未知列忽略）
func RowFromFields(fields map[string]string) Row {
	return Row{
		DepartmentPath: fields[ColumnDepartmentPath],
		FullName:       fields[ColumnFullName],
		PhonesCity:     fields[ColumnPhonesCity],
		PhonesInternal: fields[ColumnPhonesInternal],
		PhonesIP:       fields[ColumnPhonesIP],
		Archived:       fields[ColumnArchived],
	}
}

// Values 按 Columns 顺序输出
func (r Row) Values() []string {
	return []string{r.DepartmentPath, r.FullName, r.PhonesCity, r.PhonesInternal, r.PhonesIP, r.Archived}
}

func (r Row) phones(t domain.PhoneType) string {
	switch t {
	case domain.PhoneTypeCity:
		return r.PhonesCity
	case domain.PhoneTypeInternal:
		return r.PhonesInternal
	case domain.PhoneTypeIP:
		return r.PhonesIP
	}
	return ""
}

func (r *Row) setPhones(t domain.PhoneType, v string) {
	switch t {
	case domain.PhoneTypeCity:
		r.PhonesCity = v
	case domain.PhoneTypeInternal:
		r.PhonesInternal = v
	case domain.PhoneTypeIP:
		r.PhonesIP = v
	}
}

// ParseArchived "0"/"1"/空；非数字按 false 处理
func ParseArchived(v string) bool {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return n != 0
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f) != 0
	}
	return false
}

func formatArchived(archived bool) string {
	if archived {
		return "1"
	}
	return "0"
}

// ImportResult 导入结果
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors"`
}

// Summary 审计摘要
func (r *ImportResult) Summary() string {
	return fmt.Sprintf("created=%d,updated=%d,errors=%d", r.Created, r.Updated, len(r.Errors))
}

// BulkService 批量导入导出服务接口
type BulkService interface {
	// ImportRows 逐行导入，每行一个事务；业务错误按行收集，存储错误立即返回
	ImportRows(ctx context.Context, p *domain.Principal, rows []Row) (*ImportResult, error)
	// ExportRows 导出全部联系人（含归档），按姓名排序
	ExportRows(ctx context.Context, p *domain.Principal) ([]Row, error)
}

type bulkService struct {
	store       repository.Store
	departments DepartmentService
	linker      *phoneLinker
	audit       *AuditService
	notifier    Notifier
	logger      *zap.Logger
}

// NewBulkService 创建 BulkService
func NewBulkService(s repository.Store, departments DepartmentService, registry *PhoneRegistry, limiter *LinkLimiter, audit *AuditService, notifier Notifier, logger *zap.Logger) BulkService {
	return &bulkService{
		store:       s,
		departments: departments,
		linker:      &phoneLinker{registry: registry, limiter: limiter},
		audit:       audit,
		notifier:    notifier,
		logger:      logger,
	}
}

// rowReason 行错误描述
func rowReason(err error) string {
	var le *domain.LimitExceededError
	if errors.As(err, &le) {
		return le.Error()
	}
	return err.Error()
}

func (s *bulkService) ImportRows(ctx context.Context, p *domain.Principal, rows []Row) (*ImportResult, error) {
	result := &ImportResult{Errors: []string{}}
	createdDepartments := 0
	defer func() {
		if createdDepartments > 0 {
			s.departments.InvalidateForest(context.Background())
		}
	}()

	for i, row := range rows {
		rowNum := i + 1
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		created, depts, err := s.importRow(ctx, row)
		if err != nil {
			if domain.IsBusinessError(err) {
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", rowNum, rowReason(err)))
				s.logger.Warn("Import row rejected", zap.Int("row", rowNum), zap.Error(err))
				continue
			}
			s.logger.Error("Import aborted", zap.Int("row", rowNum), zap.Error(err))
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}

		createdDepartments += depts
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	var entry *domain.AuditLog
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		entry, err = s.audit.Record(ctx, r, p, domain.ActionImport, domain.EntityContacts, 0, result.Summary())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Mirror(ctx, entry)
	s.notifier.Notify(ChangeEvent{Action: domain.ActionImport, Entity: domain.EntityContacts, Summary: result.Summary()})
	s.logger.Info("Import finished",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// importRow 一行一个事务：部门路径 -> 联系人 -> 归档标记 -> 号码
func (s *bulkService) importRow(ctx context.Context, row Row) (created bool, createdDepartments int, err error) {
	fullName := strings.TrimSpace(row.FullName)
	if err := domain.ValidateFullName(fullName); err != nil {
		return false, 0, err
	}
	archived := ParseArchived(row.Archived)
	entries, err := rowPhoneEntries(row)
	if err != nil {
		return false, 0, err
	}

	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		created, createdDepartments = false, 0

		dept, n, err := s.departments.EnsurePath(ctx, r, SplitPath(row.DepartmentPath))
		if err != nil {
			return err
		}
		createdDepartments = n

		contact, err := r.Contacts.FindContact(ctx, fullName, dept.ID)
		switch {
		case err == nil:
			if contact, err = r.Contacts.LockContact(ctx, contact.ID); err != nil {
				return err
			}
			if contact.IsArchived != archived {
				if err := r.Contacts.SetContactArchived(ctx, contact.ID, archived); err != nil {
					return err
				}
				contact.IsArchived = archived
			}
		case errors.Is(err, domain.ErrNotFound):
			id, err := r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: dept.ID, FullName: fullName, IsArchived: archived})
			if err != nil {
				return err
			}
			if contact, err = r.Contacts.GetContact(ctx, id); err != nil {
				return err
			}
			created = true
		default:
			return err
		}

		_, err = s.linker.replaceLinks(ctx, r, contact, entries)
		return err
	})
	return created, createdDepartments, err
}

// rowPhoneEntries 三个号码列按 ";" 拆分，忽略空项并去重
func rowPhoneEntries(row Row) ([]phoneEntry, error) {
	entries := []phoneEntry{}
	seen := make(map[phoneKey]bool)
	for _, t := range domain.PhoneTypes {
		for _, token := range strings.Split(row.phones(t), PhoneListSeparator) {
			number := NormalizeNumber(token)
			if number == "" {
				continue
			}
			if err := domain.ValidatePhoneNumber(number); err != nil {
				return nil, err
			}
			key := phoneKey{Type: t, Number: number}
			if seen[key] {
				continue
			}
			seen[key] = true
			entries = append(entries, phoneEntry{Type: t, Number: number})
		}
	}
	return entries, nil
}

func (s *bulkService) ExportRows(ctx context.Context, p *domain.Principal) ([]Row, error) {
	// 联系人、关联与部门路径取自同一快照，导出期间的并发修改不会混入
	var (
		contacts []*domain.Contact
		links    map[int64][]domain.LinkedPhone
		paths    map[int64]string
	)
	err := s.store.Snapshot(ctx, func(r repository.Repos) error {
		var err error
		if contacts, err = r.Contacts.ListContacts(ctx, repository.ContactFilter{IncludeArchived: true}); err != nil {
			return err
		}
		if links, err = r.Links.ListAllLinks(ctx); err != nil {
			return err
		}
		paths, err = departmentPaths(ctx, r)
		return err
	})
	if err != nil {
		s.logger.Error("Export snapshot failed", zap.Error(err))
		return nil, err
	}

	rows := make([]Row, 0, len(contacts))
	for _, c := range contacts {
		row := Row{
			DepartmentPath: paths[c.DepartmentID],
			FullName:       c.FullName,
			Archived:       formatArchived(c.IsArchived),
		}
		byType := make(map[domain.PhoneType][]string, len(domain.PhoneTypes))
		for _, lp := range links[c.ID] {
			byType[lp.Phone.Type] = append(byType[lp.Phone.Type], lp.Phone.Number)
		}
		for _, t := range domain.PhoneTypes {
			row.setPhones(t, strings.Join(byType[t], PhoneListSeparator))
		}
		rows = append(rows, row)
	}

	var entry *domain.AuditLog
	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		entry, err = s.audit.Record(ctx, r, p, domain.ActionExport, domain.EntityContacts, 0, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.Mirror(ctx, entry)
	return rows, nil
}
