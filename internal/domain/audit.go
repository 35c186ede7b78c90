package domain

import (
	"database/sql"
	"time"
)

// AuditLog 审计日志（对应 audit_log 表），只追加
type AuditLog struct {
	ID        int64          `db:"id" json:"id"`
	UserID    sql.NullInt64  `db:"user_id" json:"-"`
	Action    string         `db:"action" json:"action"`
	Entity    string         `db:"entity" json:"entity"`
	EntityID  sql.NullInt64  `db:"entity_id" json:"-"`
	DiffJSON  sql.NullString `db:"diff_json" json:"-"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	IP        sql.NullString `db:"ip" json:"-"`
}

// Audit actions
const (
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionArchive      = "archive"
	ActionRestore      = "restore"
	ActionDeactivate   = "deactivate"
	ActionUpdatePhones = "update_phones"
	ActionImport       = "import"
	ActionExport       = "export"
	ActionToggle       = "toggle"
)

// Audit entities
const (
	EntityContact    = "contact"
	EntityContacts   = "contacts"
	EntityDepartment = "department"
	EntitySetting    = "setting"
	EntityUser       = "user"
)
