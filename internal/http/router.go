package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（Go 1.22 起支持方法与路径参数）
type Router struct {
	mux    *http.ServeMux
	users  userLookup
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// Handler 带 request id 与访问日志的根处理器
func (r *Router) Handler() http.Handler {
	var h http.Handler = r.mux
	if r.users != nil {
		h = withActiveUser(h, r.users, r.logger)
	}
	return withRequestLog(h, r.logger)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Handler().ServeHTTP(w, req)
}

// RegisterHealthRoutes 健康检查
func (r *Router) RegisterHealthRoutes() {
	r.Handle("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok("ok"))
	})
}

// RegisterDepartmentRoutes 部门
func (r *Router) RegisterDepartmentRoutes(h *DepartmentsHandler) {
	r.Handle("GET /api/v1/departments", h.Forest)
	r.Handle("POST /api/v1/departments", h.Create)
	r.Handle("PUT /api/v1/departments/{id}", h.Update)
	r.Handle("POST /api/v1/departments/{id}/deactivate", h.Deactivate)
}

// RegisterContactRoutes 联系人与号码
func (r *Router) RegisterContactRoutes(h *ContactsHandler) {
	r.Handle("GET /api/v1/contacts", h.Search)
	r.Handle("POST /api/v1/contacts", h.Create)
	r.Handle("GET /api/v1/contacts/{id}", h.Get)
	r.Handle("POST /api/v1/contacts/{id}/archive", h.Archive)
	r.Handle("POST /api/v1/contacts/{id}/restore", h.Restore)
	r.Handle("PUT /api/v1/contacts/{id}/phones", h.ReplacePhones)
}

// RegisterSettingsRoutes 配置
func (r *Router) RegisterSettingsRoutes(h *SettingsHandler) {
	r.Handle("GET /api/v1/settings/max-contacts-per-phone", h.GetMaxContactsPerPhone)
	r.Handle("PUT /api/v1/settings/max-contacts-per-phone", h.SetMaxContactsPerPhone)
}

// RegisterBulkRoutes 导入导出
func (r *Router) RegisterBulkRoutes(h *BulkHandler) {
	r.Handle("GET /api/v1/export", h.Export)
	r.Handle("POST /api/v1/import", h.Import)
}

// RegisterAuditRoutes 审计日志
func (r *Router) RegisterAuditRoutes(h *AuditHandler) {
	r.Handle("GET /api/v1/audit", h.List)
}

// RegisterUserRoutes 用户管理；同时启用基于 users 表的身份校验
func (r *Router) RegisterUserRoutes(h *UsersHandler) {
	r.users = h.Users
	r.Handle("GET /api/v1/users", h.List)
	r.Handle("POST /api/v1/users", h.Create)
	r.Handle("POST /api/v1/users/{id}/toggle", h.Toggle)
}
