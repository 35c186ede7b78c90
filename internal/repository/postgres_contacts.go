package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/limbovvv/phone-directly/internal/domain"
)

// PostgresContactsRepository 联系人Repository实现
type PostgresContactsRepository struct {
	db DBTX
}

// NewPostgresContactsRepository 创建联系人Repository
func NewPostgresContactsRepository(db DBTX) *PostgresContactsRepository {
	return &PostgresContactsRepository{db: db}
}

var _ ContactsRepository = (*PostgresContactsRepository)(nil)

const contactColumns = `c.id, c.department_id, c.full_name, c.is_archived, c.created_at, c.updated_at`

func scanContact(row interface{ Scan(dest ...any) error }) (*domain.Contact, error) {
	var c domain.Contact
	if err := row.Scan(&c.ID, &c.DepartmentID, &c.FullName, &c.IsArchived, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresContactsRepository) getContact(ctx context.Context, id int64, lock LockMode) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts c WHERE c.id = $1`+lockClause(lock), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("contact %d", id)
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return c, nil
}

// GetContact 根据id获取联系人
func (r *PostgresContactsRepository) GetContact(ctx context.Context, id int64) (*domain.Contact, error) {
	return r.getContact(ctx, id, LockNone)
}

// LockContact 获取联系人并加行锁
func (r *PostgresContactsRepository) LockContact(ctx context.Context, id int64) (*domain.Contact, error) {
	return r.getContact(ctx, id, LockUpdate)
}

// FindContact 按 (full_name, department_id) 查找（uq_contact_department_full_name）
func (r *PostgresContactsRepository) FindContact(ctx context.Context, fullName string, departmentID int64) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c
		WHERE c.full_name = $1 AND c.department_id = $2
		ORDER BY c.id
		LIMIT 1
	`, fullName, departmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("contact %q", fullName)
		}
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return c, nil
}

// CreateContact 创建联系人
func (r *PostgresContactsRepository) CreateContact(ctx context.Context, c *domain.Contact) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO contacts (department_id, full_name, is_archived)
		VALUES ($1, $2, $3)
		RETURNING id
	`, c.DepartmentID, c.FullName, c.IsArchived).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, domain.NotFoundf("department %d", c.DepartmentID)
		}
		if isUniqueViolation(err) {
			return 0, domain.Validationf("contact %q already exists in department %d", c.FullName, c.DepartmentID)
		}
		return 0, fmt.Errorf("failed to create contact: %w", err)
	}
	return id, nil
}

// SetContactArchived 归档/恢复
func (r *PostgresContactsRepository) SetContactArchived(ctx context.Context, id int64, archived bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE contacts SET is_archived = $1, updated_at = now() WHERE id = $2`, archived, id)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	return requireAffected(res, domain.NotFoundf("contact %d", id))
}

// ListContacts 查询联系人列表
func (r *PostgresContactsRepository) ListContacts(ctx context.Context, filter ContactFilter) ([]*domain.Contact, error) {
	where := []string{}
	args := []any{}
	argIdx := 1

	if !filter.IncludeArchived {
		where = append(where, "c.is_archived = FALSE")
	}
	if len(filter.DepartmentIDs) > 0 {
		where = append(where, fmt.Sprintf("c.department_id = ANY($%d)", argIdx))
		args = append(args, pq.Array(filter.DepartmentIDs))
		argIdx++
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, fmt.Sprintf(`(
			c.full_name ILIKE $%[1]d
			OR d.name ILIKE $%[1]d
			OR EXISTS (
				SELECT 1 FROM contact_phones cp
				JOIN phones p ON p.id = cp.phone_id
				WHERE cp.contact_id = c.id AND p.number ILIKE $%[1]d
			)
		)`, argIdx))
		args = append(args, "%"+q+"%")
		argIdx++
	}

	query := `SELECT ` + contactColumns + `
		FROM contacts c
		JOIN departments d ON d.id = c.department_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.full_name, c.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	items := []*domain.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}
	return items, nil
}
