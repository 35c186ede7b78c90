package domain

import "time"

// User 目录管理员 / 编辑（对应 users 表）
type User struct {
	ID           int64     `db:"id" json:"id"`
	Login        string    `db:"login" json:"login"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ValidateUserRole users 表只存 admin / editor
func ValidateUserRole(role Role) error {
	switch role {
	case RoleAdmin, RoleEditor:
		return nil
	default:
		return Validationf("role must be %q or %q", RoleAdmin, RoleEditor)
	}
}

// ValidateLogin 登录名必填且不超过 MaxLoginLength
func ValidateLogin(login string) error {
	if login == "" {
		return Validationf("login is required")
	}
	return checkLength("login", login, MaxLoginLength)
}
