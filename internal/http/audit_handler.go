package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/service"
)

// AuditHandler 审计日志查询（仅 admin）
type AuditHandler struct {
	Audit  *service.AuditService
	Logger *zap.Logger
}

func NewAuditHandler(audit *service.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{Audit: audit, Logger: logger}
}

// List GET /api/v1/audit?limit=50
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, h.Logger, "list audit", err)
		return
	}
	entries, err := h.Audit.List(r.Context(), parseInt(r.URL.Query().Get("limit"), 50))
	if err != nil {
		writeError(w, r, h.Logger, "list audit", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(entries))
}
