package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/limbovvv/phone-directly/internal/domain"
)

// PostgresContactPhonesRepository 联系人-号码关联Repository实现
type PostgresContactPhonesRepository struct {
	db DBTX
}

// NewPostgresContactPhonesRepository 创建关联Repository
func NewPostgresContactPhonesRepository(db DBTX) *PostgresContactPhonesRepository {
	return &PostgresContactPhonesRepository{db: db}
}

var _ ContactPhonesRepository = (*PostgresContactPhonesRepository)(nil)

const linkedPhoneQuery = `
	SELECT cp.id, cp.contact_id, cp.phone_id, cp.label, cp.sort_order, cp.created_at,
	       p.id, p.type, p.number, p.note, p.is_active, p.created_at, p.updated_at
	FROM contact_phones cp
	JOIN phones p ON p.id = cp.phone_id`

func scanLinkedPhones(rows *sql.Rows) ([]domain.LinkedPhone, error) {
	defer rows.Close()

	items := []domain.LinkedPhone{}
	for rows.Next() {
		var lp domain.LinkedPhone
		if err := rows.Scan(
			&lp.Link.ID, &lp.Link.ContactID, &lp.Link.PhoneID, &lp.Link.Label, &lp.Link.SortOrder, &lp.Link.CreatedAt,
			&lp.Phone.ID, &lp.Phone.Type, &lp.Phone.Number, &lp.Phone.Note, &lp.Phone.IsActive, &lp.Phone.CreatedAt, &lp.Phone.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan contact phone: %w", err)
		}
		items = append(items, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact phones: %w", err)
	}
	return items, nil
}

// ListLinksByContact 查询联系人的号码
func (r *PostgresContactPhonesRepository) ListLinksByContact(ctx context.Context, contactID int64) ([]domain.LinkedPhone, error) {
	rows, err := r.db.QueryContext(ctx, linkedPhoneQuery+`
		WHERE cp.contact_id = $1
		ORDER BY cp.sort_order, cp.id
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact phones: %w", err)
	}
	return scanLinkedPhones(rows)
}

// ListAllLinks 查询全部关联（导出用，一次查询）
func (r *PostgresContactPhonesRepository) ListAllLinks(ctx context.Context) (map[int64][]domain.LinkedPhone, error) {
	rows, err := r.db.QueryContext(ctx, linkedPhoneQuery+`
		ORDER BY cp.contact_id, cp.sort_order, cp.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact phones: %w", err)
	}
	items, err := scanLinkedPhones(rows)
	if err != nil {
		return nil, err
	}
	byContact := make(map[int64][]domain.LinkedPhone)
	for _, lp := range items {
		byContact[lp.Link.ContactID] = append(byContact[lp.Link.ContactID], lp)
	}
	return byContact, nil
}

// DeleteLinksByContact 删除联系人的全部关联
func (r *PostgresContactPhonesRepository) DeleteLinksByContact(ctx context.Context, contactID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contact_phones WHERE contact_id = $1`, contactID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete contact phones: %w", err)
	}
	return res.RowsAffected()
}

// InsertLink 创建关联
func (r *PostgresContactPhonesRepository) InsertLink(ctx context.Context, link *domain.ContactPhone) (bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO contact_phones (contact_id, phone_id, label, sort_order)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT uq_contact_phone DO NOTHING
		RETURNING id
	`, link.ContactID, link.PhoneID, link.Label, link.SortOrder).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if isForeignKeyViolation(err) {
			return false, domain.NotFoundf("contact %d or phone %d", link.ContactID, link.PhoneID)
		}
		return false, fmt.Errorf("failed to create contact phone: %w", err)
	}
	link.ID = id
	return true, nil
}

// CountActiveLinks 统计号码上未归档联系人的关联数
func (r *PostgresContactPhonesRepository) CountActiveLinks(ctx context.Context, phoneID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM contact_phones cp
		JOIN contacts c ON c.id = cp.contact_id
		WHERE cp.phone_id = $1 AND c.is_archived = FALSE
	`, phoneID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active links: %w", err)
	}
	return n, nil
}

// MaxActiveUsage 当前占用最多的号码
func (r *PostgresContactPhonesRepository) MaxActiveUsage(ctx context.Context) (string, int, error) {
	var (
		number string
		n      int
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT p.number, COUNT(*) AS cnt
		FROM contact_phones cp
		JOIN contacts c ON c.id = cp.contact_id
		JOIN phones p ON p.id = cp.phone_id
		WHERE c.is_archived = FALSE
		GROUP BY p.id, p.number
		ORDER BY cnt DESC, p.id
		LIMIT 1
	`).Scan(&number, &n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("failed to compute phone usage: %w", err)
	}
	return number, n, nil
}
