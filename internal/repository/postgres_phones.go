package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/limbovvv/phone-directly/internal/domain"
)

// PostgresPhonesRepository 号码Repository实现
type PostgresPhonesRepository struct {
	db DBTX
}

// NewPostgresPhonesRepository 创建号码Repository
func NewPostgresPhonesRepository(db DBTX) *PostgresPhonesRepository {
	return &PostgresPhonesRepository{db: db}
}

var _ PhonesRepository = (*PostgresPhonesRepository)(nil)

const phoneColumns = `p.id, p.type, p.number, p.note, p.is_active, p.created_at, p.updated_at`

func scanPhone(row interface{ Scan(dest ...any) error }) (*domain.Phone, error) {
	var p domain.Phone
	if err := row.Scan(&p.ID, &p.Type, &p.Number, &p.Note, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPhonesRepository) getPhone(ctx context.Context, id int64, lock LockMode) (*domain.Phone, error) {
	p, err := scanPhone(r.db.QueryRowContext(ctx,
		`SELECT `+phoneColumns+` FROM phones p WHERE p.id = $1`+lockClause(lock), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("phone %d", id)
		}
		return nil, fmt.Errorf("failed to get phone: %w", err)
	}
	return p, nil
}

// GetPhone 根据id获取号码
func (r *PostgresPhonesRepository) GetPhone(ctx context.Context, id int64) (*domain.Phone, error) {
	return r.getPhone(ctx, id, LockNone)
}

// LockPhone 获取号码并加行锁（FOR UPDATE）
func (r *PostgresPhonesRepository) LockPhone(ctx context.Context, id int64) (*domain.Phone, error) {
	return r.getPhone(ctx, id, LockUpdate)
}

// GetPhoneByKey 按 (type, number) 查找
func (r *PostgresPhonesRepository) GetPhoneByKey(ctx context.Context, phoneType domain.PhoneType, number string) (*domain.Phone, error) {
	p, err := scanPhone(r.db.QueryRowContext(ctx,
		`SELECT `+phoneColumns+` FROM phones p WHERE p.type = $1 AND p.number = $2`, string(phoneType), number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("phone %s/%s", phoneType, number)
		}
		return nil, fmt.Errorf("failed to get phone: %w", err)
	}
	return p, nil
}

// InsertPhoneIfAbsent 插入号码
// 并发插入同一 (type, number) 时，后到的事务等待先到者提交后得到 0 行（inserted=false）
func (r *PostgresPhonesRepository) InsertPhoneIfAbsent(ctx context.Context, phoneType domain.PhoneType, number string) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO phones (type, number, is_active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT ON CONSTRAINT uq_phone_type_number DO NOTHING
		RETURNING id
	`, string(phoneType), number).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to create phone: %w", err)
	}
	return id, true, nil
}
