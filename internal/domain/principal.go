package domain

// Role 用户角色
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Principal 已认证的调用方（由外部身份服务提供）
type Principal struct {
	UserID int64
	Role   Role
	IP     string
}

// CanEdit admin / editor 可修改联系人与号码
func (p *Principal) CanEdit() bool {
	return p != nil && (p.Role == RoleAdmin || p.Role == RoleEditor)
}

// IsAdmin 部门、配置、导入导出仅 admin
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
