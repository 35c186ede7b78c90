package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
	"github.com/limbovvv/phone-directly/internal/store"
)

const (
	forestCacheKeyActive = "phone-directory:departments:forest:active"
	forestCacheKeyAll    = "phone-directory:departments:forest:all"
)

// DepartmentService 部门层级服务接口
type DepartmentService interface {
	// Forest 部门森林（带缓存）
	Forest(ctx context.Context, activeOnly bool) ([]*DepartmentNode, error)
	List(ctx context.Context, activeOnly bool) ([]*domain.Department, error)
	SubtreeIDs(ctx context.Context, rootID int64) ([]int64, error)
	// Paths department_id -> "Root / Child"
	Paths(ctx context.Context) (map[int64]string, error)

	CreateDepartment(ctx context.Context, p *domain.Principal, req CreateDepartmentRequest) (*domain.Department, error)
	UpdateDepartment(ctx context.Context, p *domain.Principal, req UpdateDepartmentRequest) (*domain.Department, error)
	DeactivateDepartment(ctx context.Context, p *domain.Principal, id int64) error

	// EnsurePath 在 r 所属事务内按路径逐级查找或创建部门，返回叶子部门及新建数量
	EnsurePath(ctx context.Context, r repository.Repos, segments []string) (*domain.Department, int, error)
	// InvalidateForest 清除部门森林缓存
	InvalidateForest(ctx context.Context)
}

// CreateDepartmentRequest 创建部门请求
type CreateDepartmentRequest struct {
	Name      string `json:"name"`                // 必填
	ParentID  *int64 `json:"parent_id,omitempty"` // 可选，nil 表示根部门
	SortOrder int    `json:"sort_order"`
}

// UpdateDepartmentRequest 更新部门请求（整体替换名称、上级、排序）
type UpdateDepartmentRequest struct {
	ID        int64  `json:"-"`
	Name      string `json:"name"`
	ParentID  *int64 `json:"parent_id,omitempty"`
	SortOrder int    `json:"sort_order"`
}

type departmentService struct {
	store    repository.Store
	kv       store.KVStore
	cacheTTL time.Duration
	audit    *AuditService
	logger   *zap.Logger
}

// NewDepartmentService 创建 DepartmentService
func NewDepartmentService(s repository.Store, kv store.KVStore, cacheTTL time.Duration, audit *AuditService, logger *zap.Logger) DepartmentService {
	return &departmentService{
		store:    s,
		kv:       kv,
		cacheTTL: cacheTTL,
		audit:    audit,
		logger:   logger,
	}
}

func forestCacheKey(activeOnly bool) string {
	if activeOnly {
		return forestCacheKeyActive
	}
	return forestCacheKeyAll
}

func (s *departmentService) Forest(ctx context.Context, activeOnly bool) ([]*DepartmentNode, error) {
	key := forestCacheKey(activeOnly)
	if s.kv != nil {
		cached, err := s.kv.Get(ctx, key)
		switch {
		case err == nil:
			var forest []*DepartmentNode
			if err := json.Unmarshal([]byte(cached), &forest); err == nil {
				return forest, nil
			}
			s.logger.Warn("Discarding malformed forest cache", zap.String("key", key))
		case !errors.Is(err, store.ErrCacheMiss):
			s.logger.Warn("Failed to read forest cache", zap.String("key", key), zap.Error(err))
		}
	}

	depts, err := s.store.Repos().Departments.ListDepartments(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	forest := BuildForest(depts)

	if s.kv != nil {
		if data, err := json.Marshal(forest); err == nil {
			if err := s.kv.Set(ctx, key, string(data), s.cacheTTL); err != nil {
				s.logger.Warn("Failed to write forest cache", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return forest, nil
}

func (s *departmentService) InvalidateForest(ctx context.Context) {
	if s.kv == nil {
		return
	}
	if err := s.kv.Delete(ctx, forestCacheKeyActive, forestCacheKeyAll); err != nil {
		s.logger.Warn("Failed to invalidate forest cache", zap.Error(err))
	}
}

func (s *departmentService) List(ctx context.Context, activeOnly bool) ([]*domain.Department, error) {
	return s.store.Repos().Departments.ListDepartments(ctx, activeOnly)
}

func (s *departmentService) SubtreeIDs(ctx context.Context, rootID int64) ([]int64, error) {
	depts, err := s.store.Repos().Departments.ListDepartments(ctx, false)
	if err != nil {
		return nil, err
	}
	ids, err := SubtreeIDs(depts, rootID)
	if err != nil && errors.Is(err, domain.ErrDataIntegrity) {
		s.logger.Error("Department tree is corrupt", zap.Int64("root_id", rootID), zap.Error(err))
	}
	return ids, err
}

func (s *departmentService) Paths(ctx context.Context) (map[int64]string, error) {
	paths, err := departmentPaths(ctx, s.store.Repos())
	if err != nil {
		s.logger.Error("Department tree is corrupt", zap.Error(err))
		return nil, err
	}
	return paths, nil
}

// departmentPaths 全部部门（含停用）的完整路径，r 可以是事务或快照
func departmentPaths(ctx context.Context, r repository.Repos) (map[int64]string, error) {
	depts, err := r.Departments.ListDepartments(ctx, false)
	if err != nil {
		return nil, err
	}
	byID := indexDepartments(depts)
	paths := make(map[int64]string, len(depts))
	for _, d := range depts {
		names, err := PathToRoot(byID, d.ID)
		if err != nil {
			return nil, err
		}
		paths[d.ID] = JoinPath(names)
	}
	return paths, nil
}

func (s *departmentService) EnsurePath(ctx context.Context, r repository.Repos, segments []string) (*domain.Department, int, error) {
	if len(segments) == 0 {
		segments = []string{DefaultImportDepartment}
	}

	var (
		parent  sql.NullInt64
		leaf    *domain.Department
		created int
	)
	for _, name := range segments {
		if err := domain.ValidateDepartmentName(name); err != nil {
			return nil, created, err
		}
		d, isNew, err := r.Departments.EnsureDepartment(ctx, parent, name)
		if err != nil {
			return nil, created, err
		}
		if isNew {
			created++
		}
		leaf = d
		parent = sql.NullInt64{Int64: d.ID, Valid: true}
	}
	return leaf, created, nil
}

func (s *departmentService) CreateDepartment(ctx context.Context, p *domain.Principal, req CreateDepartmentRequest) (*domain.Department, error) {
	name := strings.TrimSpace(req.Name)
	if err := domain.ValidateDepartmentName(name); err != nil {
		return nil, err
	}

	d := &domain.Department{Name: name, SortOrder: req.SortOrder, IsActive: true}
	if req.ParentID != nil {
		d.ParentID = sql.NullInt64{Int64: *req.ParentID, Valid: true}
	}

	var entry *domain.AuditLog
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if d.ParentID.Valid {
			if _, err := r.Departments.GetDepartment(ctx, d.ParentID.Int64); err != nil {
				return err
			}
		}
		id, err := r.Departments.CreateDepartment(ctx, d)
		if err != nil {
			return err
		}
		created, err := r.Departments.GetDepartment(ctx, id)
		if err != nil {
			return err
		}
		d = created
		entry, err = s.audit.Record(ctx, r, p, domain.ActionCreate, domain.EntityDepartment, id, map[string]any{
			"name":      d.Name,
			"parent_id": req.ParentID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateForest(ctx)
	s.audit.Mirror(ctx, entry)
	return d, nil
}

func (s *departmentService) UpdateDepartment(ctx context.Context, p *domain.Principal, req UpdateDepartmentRequest) (*domain.Department, error) {
	name := strings.TrimSpace(req.Name)
	if err := domain.ValidateDepartmentName(name); err != nil {
		return nil, err
	}
	if req.ParentID != nil && *req.ParentID == req.ID {
		return nil, domain.Validationf("department cannot be its own parent")
	}

	var (
		updated *domain.Department
		entry   *domain.AuditLog
	)
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Departments.LockDepartmentTree(ctx); err != nil {
			return err
		}
		current, err := r.Departments.GetDepartment(ctx, req.ID)
		if err != nil {
			return err
		}

		next := *current
		next.Name = name
		next.SortOrder = req.SortOrder
		next.ParentID = sql.NullInt64{}
		if req.ParentID != nil {
			next.ParentID = sql.NullInt64{Int64: *req.ParentID, Valid: true}
			if _, err := r.Departments.GetDepartment(ctx, *req.ParentID); err != nil {
				return err
			}
			depts, err := r.Departments.ListDepartments(ctx, false)
			if err != nil {
				return err
			}
			subtree, err := SubtreeIDs(depts, req.ID)
			if err != nil {
				return err
			}
			for _, id := range subtree {
				if id == *req.ParentID {
					return domain.Validationf("cannot move department %d under its own descendant %d", req.ID, id)
				}
			}
		}

		if err := r.Departments.UpdateDepartment(ctx, &next); err != nil {
			return err
		}
		updated, err = r.Departments.GetDepartment(ctx, req.ID)
		if err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, r, p, domain.ActionUpdate, domain.EntityDepartment, req.ID, map[string]any{
			"old": map[string]any{"name": current.Name, "parent_id": nullableID(current.ParentID), "sort_order": current.SortOrder},
			"new": map[string]any{"name": updated.Name, "parent_id": nullableID(updated.ParentID), "sort_order": updated.SortOrder},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateForest(ctx)
	s.audit.Mirror(ctx, entry)
	return updated, nil
}

func (s *departmentService) DeactivateDepartment(ctx context.Context, p *domain.Principal, id int64) error {
	var entry *domain.AuditLog
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if _, err := r.Departments.GetDepartment(ctx, id); err != nil {
			return err
		}
		if err := r.Departments.SetDepartmentActive(ctx, id, false); err != nil {
			return err
		}
		var err error
		entry, err = s.audit.Record(ctx, r, p, domain.ActionDeactivate, domain.EntityDepartment, id, nil)
		return err
	})
	if err != nil {
		return err
	}

	s.InvalidateForest(ctx)
	s.audit.Mirror(ctx, entry)
	return nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
