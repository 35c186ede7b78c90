package repository

import (
	"context"
	"database/sql"

	"github.com/limbovvv/phone-directly/internal/domain"
)

// DBTX *sql.DB 与 *sql.Tx 的公共子集，Repository 不关心是否处于事务中
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LockMode 读取时的行锁模式
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

// Repos 一组绑定到同一连接（或同一事务）的 Repository
type Repos struct {
	Departments DepartmentsRepository
	Contacts    ContactsRepository
	Phones      PhonesRepository
	Links       ContactPhonesRepository
	Settings    SettingsRepository
	Audit       AuditRepository
	Users       UsersRepository
}

// Store 事务边界
// WithTx 中 fn 返回错误或 ctx 被取消时整体回滚；fn 内只能使用传入的 Repos
// Snapshot 只读一致性快照：fn 内多次读取看到同一时刻的数据，fn 内的写入不会生效
type Store interface {
	Repos() Repos
	WithTx(ctx context.Context, fn func(r Repos) error) error
	Snapshot(ctx context.Context, fn func(r Repos) error) error
}

// DepartmentsRepository 部门Repository接口
type DepartmentsRepository interface {
	// ListDepartments 按 (parent_id, sort_order, id) 排序返回
	ListDepartments(ctx context.Context, activeOnly bool) ([]*domain.Department, error)
	GetDepartment(ctx context.Context, id int64) (*domain.Department, error)
	// FindDepartmentByName 按 (parent, name) 查找，不区分是否停用
	FindDepartmentByName(ctx context.Context, parentID sql.NullInt64, name string) (*domain.Department, error)
	// CreateDepartment 同级重名返回 ErrValidation
	CreateDepartment(ctx context.Context, d *domain.Department) (int64, error)
	// EnsureDepartment 不存在则创建；并发创建同一 (parent, name) 时只会留下一行
	EnsureDepartment(ctx context.Context, parentID sql.NullInt64, name string) (*domain.Department, bool, error)
	UpdateDepartment(ctx context.Context, d *domain.Department) error
	// LockDepartmentTree 串行化部门移动（防止并发移动形成环），仅在事务中调用
	LockDepartmentTree(ctx context.Context) error
	SetDepartmentActive(ctx context.Context, id int64, active bool) error
}

// ContactFilter 联系人查询过滤器
type ContactFilter struct {
	DepartmentIDs   []int64 // 为空表示不过滤
	Query           string  // 模糊匹配 full_name / 部门名 / 号码
	IncludeArchived bool
}

// ContactsRepository 联系人Repository接口
type ContactsRepository interface {
	GetContact(ctx context.Context, id int64) (*domain.Contact, error)
	// LockContact SELECT ... FOR UPDATE，串行化同一联系人的号码替换
	LockContact(ctx context.Context, id int64) (*domain.Contact, error)
	// FindContact 按 (full_name, department_id) 查找
	FindContact(ctx context.Context, fullName string, departmentID int64) (*domain.Contact, error)
	// CreateContact 同部门重名返回 ErrValidation
	CreateContact(ctx context.Context, c *domain.Contact) (int64, error)
	SetContactArchived(ctx context.Context, id int64, archived bool) error
	// ListContacts 按 (full_name, id) 排序
	ListContacts(ctx context.Context, filter ContactFilter) ([]*domain.Contact, error)
}

// PhonesRepository 号码Repository接口
type PhonesRepository interface {
	GetPhone(ctx context.Context, id int64) (*domain.Phone, error)
	GetPhoneByKey(ctx context.Context, phoneType domain.PhoneType, number string) (*domain.Phone, error)
	// InsertPhoneIfAbsent 唯一约束冲突时返回 inserted=false，不报错
	InsertPhoneIfAbsent(ctx context.Context, phoneType domain.PhoneType, number string) (id int64, inserted bool, err error)
	// LockPhone SELECT ... FOR UPDATE，容量检查期间持有
	LockPhone(ctx context.Context, id int64) (*domain.Phone, error)
}

// ContactPhonesRepository 联系人-号码关联Repository接口
type ContactPhonesRepository interface {
	ListLinksByContact(ctx context.Context, contactID int64) ([]domain.LinkedPhone, error)
	// ListAllLinks contact_id -> 关联（按 sort_order, id 排序）
	ListAllLinks(ctx context.Context) (map[int64][]domain.LinkedPhone, error)
	DeleteLinksByContact(ctx context.Context, contactID int64) (int64, error)
	// InsertLink (contact_id, phone_id) 已存在时返回 inserted=false
	InsertLink(ctx context.Context, link *domain.ContactPhone) (inserted bool, err error)
	// CountActiveLinks 统计号码上未归档联系人的关联数
	CountActiveLinks(ctx context.Context, phoneID int64) (int, error)
	// MaxActiveUsage 当前占用最多的号码及其未归档关联数；无关联时 count=0
	MaxActiveUsage(ctx context.Context) (number string, count int, err error)
}

// SettingsRepository 配置Repository接口
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string, lock LockMode) (value string, ok bool, err error)
	UpsertSetting(ctx context.Context, key, value string) error
	// EnsureSetting 仅在不存在时写入
	EnsureSetting(ctx context.Context, key, value string) error
}

// AuditRepository 审计日志Repository接口（只追加）
type AuditRepository interface {
	InsertAudit(ctx context.Context, entry *domain.AuditLog) (int64, error)
	ListAudit(ctx context.Context, limit int) ([]*domain.AuditLog, error)
}

// UsersRepository 用户Repository接口
type UsersRepository interface {
	// ListUsers 按 login 排序
	ListUsers(ctx context.Context) ([]*domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	// CreateUser login 已存在返回 ErrValidation
	CreateUser(ctx context.Context, u *domain.User) (int64, error)
	// SetUserActive 不存在返回 ErrNotFound
	SetUserActive(ctx context.Context, id int64, active bool) error
}
