package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/limbovvv/phone-directly/internal/domain"
)

// PostgresDepartmentsRepository 部门Repository实现
type PostgresDepartmentsRepository struct {
	db DBTX
}

// NewPostgresDepartmentsRepository 创建部门Repository
func NewPostgresDepartmentsRepository(db DBTX) *PostgresDepartmentsRepository {
	return &PostgresDepartmentsRepository{db: db}
}

var _ DepartmentsRepository = (*PostgresDepartmentsRepository)(nil)

const departmentColumns = `id, parent_id, name, sort_order, is_active, created_at, updated_at`

func scanDepartment(row interface{ Scan(dest ...any) error }) (*domain.Department, error) {
	var d domain.Department
	if err := row.Scan(&d.ID, &d.ParentID, &d.Name, &d.SortOrder, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDepartments 查询部门列表
func (r *PostgresDepartmentsRepository) ListDepartments(ctx context.Context, activeOnly bool) ([]*domain.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY parent_id NULLS FIRST, sort_order, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	items := []*domain.Department{}
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate departments: %w", err)
	}
	return items, nil
}

// GetDepartment 根据id获取部门
func (r *PostgresDepartmentsRepository) GetDepartment(ctx context.Context, id int64) (*domain.Department, error) {
	d, err := scanDepartment(r.db.QueryRowContext(ctx,
		`SELECT `+departmentColumns+` FROM departments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("department %d", id)
		}
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return d, nil
}

// FindDepartmentByName 按 (parent, name) 查找
func (r *PostgresDepartmentsRepository) FindDepartmentByName(ctx context.Context, parentID sql.NullInt64, name string) (*domain.Department, error) {
	d, err := scanDepartment(r.db.QueryRowContext(ctx, `
		SELECT `+departmentColumns+`
		FROM departments
		WHERE COALESCE(parent_id, 0) = COALESCE($1::bigint, 0) AND name = $2
		ORDER BY id
		LIMIT 1
	`, parentID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("department %q", name)
		}
		return nil, fmt.Errorf("failed to find department: %w", err)
	}
	return d, nil
}

// CreateDepartment 创建部门
func (r *PostgresDepartmentsRepository) CreateDepartment(ctx context.Context, d *domain.Department) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO departments (parent_id, name, sort_order, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, d.ParentID, d.Name, d.SortOrder, d.IsActive).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.Validationf("department %q already exists under this parent", d.Name)
		}
		if isForeignKeyViolation(err) {
			return 0, domain.NotFoundf("parent department %d", d.ParentID.Int64)
		}
		return 0, fmt.Errorf("failed to create department: %w", err)
	}
	return id, nil
}

// EnsureDepartment 不存在则创建
// ON CONFLICT DO NOTHING 不会中止事务；冲突后重新读取已提交的行
func (r *PostgresDepartmentsRepository) EnsureDepartment(ctx context.Context, parentID sql.NullInt64, name string) (*domain.Department, bool, error) {
	existing, err := r.FindDepartmentByName(ctx, parentID, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO departments (parent_id, name, sort_order, is_active)
		VALUES ($1, $2, 0, TRUE)
		ON CONFLICT ((COALESCE(parent_id, 0)), name) DO NOTHING
		RETURNING id
	`, parentID, name).Scan(&id)
	switch {
	case err == nil:
		d, err := r.GetDepartment(ctx, id)
		return d, true, err
	case errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err):
		d, err := r.FindDepartmentByName(ctx, parentID, name)
		return d, false, err
	default:
		return nil, false, fmt.Errorf("failed to ensure department: %w", err)
	}
}

// UpdateDepartment 更新名称、上级、排序
func (r *PostgresDepartmentsRepository) UpdateDepartment(ctx context.Context, d *domain.Department) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE departments
		SET parent_id = $1, name = $2, sort_order = $3, updated_at = now()
		WHERE id = $4
	`, d.ParentID, d.Name, d.SortOrder, d.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Validationf("department %q already exists under this parent", d.Name)
		}
		return fmt.Errorf("failed to update department: %w", err)
	}
	return requireAffected(res, domain.NotFoundf("department %d", d.ID))
}

// LockDepartmentTree 表级锁：与自身互斥，不阻塞普通读取
func (r *PostgresDepartmentsRepository) LockDepartmentTree(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `LOCK TABLE departments IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("failed to lock departments: %w", err)
	}
	return nil
}

// SetDepartmentActive 启用/停用部门
func (r *PostgresDepartmentsRepository) SetDepartmentActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE departments SET is_active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update department: %w", err)
	}
	return requireAffected(res, domain.NotFoundf("department %d", id))
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
