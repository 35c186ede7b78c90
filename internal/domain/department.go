package domain

import (
	"database/sql"
	"time"
)

// Department 部门领域模型（对应 departments 表）
// parent_id 为空表示根部门；停用使用 is_active = false（不物理删除）
type Department struct {
	ID        int64         `db:"id"`
	ParentID  sql.NullInt64 `db:"parent_id"` // nullable
	Name      string        `db:"name"`
	SortOrder int           `db:"sort_order"`
	IsActive  bool          `db:"is_active"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}

// HasParent 是否存在上级部门
func (d *Department) HasParent() bool {
	return d.ParentID.Valid
}
