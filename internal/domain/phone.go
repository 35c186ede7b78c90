package domain

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PhoneType 号码类型
type PhoneType string

const (
	PhoneTypeCity     PhoneType = "city"
	PhoneTypeInternal PhoneType = "internal"
	PhoneTypeIP       PhoneType = "ip"
)

// PhoneTypes 导出列顺序
var PhoneTypes = []PhoneType{PhoneTypeCity, PhoneTypeInternal, PhoneTypeIP}

// ParsePhoneType 解析号码类型（忽略大小写与首尾空白）
func ParsePhoneType(s string) (PhoneType, error) {
	t := PhoneType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case PhoneTypeCity, PhoneTypeInternal, PhoneTypeIP:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown phone type %q", ErrValidation, s)
}

// Phone 号码领域模型（对应 phones 表），(type, number) 唯一
type Phone struct {
	ID        int64          `db:"id"`
	Type      PhoneType      `db:"type"`
	Number    string         `db:"number"`
	Note      sql.NullString `db:"note"`
	IsActive  bool           `db:"is_active"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// ContactPhone 联系人-号码关联（对应 contact_phones 表），(contact_id, phone_id) 唯一
type ContactPhone struct {
	ID        int64          `db:"id"`
	ContactID int64          `db:"contact_id"`
	PhoneID   int64          `db:"phone_id"`
	Label     sql.NullString `db:"label"`
	SortOrder int            `db:"sort_order"`
	CreatedAt time.Time      `db:"created_at"`
}

// LinkedPhone 关联 + 号码（读取联系人号码时使用）
type LinkedPhone struct {
	Link  ContactPhone
	Phone Phone
}
