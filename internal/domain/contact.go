package domain

import "time"

// Contact 联系人领域模型（对应 contacts 表）
type Contact struct {
	ID           int64     `db:"id"`
	DepartmentID int64     `db:"department_id"` // NOT NULL
	FullName     string    `db:"full_name"`
	IsArchived   bool      `db:"is_archived"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
