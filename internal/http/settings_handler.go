package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/service"
)

// SettingsHandler 配置 API（仅 admin）
type SettingsHandler struct {
	Settings service.SettingsService
	Logger   *zap.Logger
}

func NewSettingsHandler(settings service.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{Settings: settings, Logger: logger}
}

type maxContactsPerPhone struct {
	Value int `json:"value"`
}

// GetMaxContactsPerPhone GET /api/v1/settings/max-contacts-per-phone
func (h *SettingsHandler) GetMaxContactsPerPhone(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, h.Logger, "get setting", err)
		return
	}
	v, err := h.Settings.GetMaxContactsPerPhone(r.Context())
	if err != nil {
		writeError(w, r, h.Logger, "get setting", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(maxContactsPerPhone{Value: v}))
}

// SetMaxContactsPerPhone PUT /api/v1/settings/max-contacts-per-phone {"value": n}
func (h *SettingsHandler) SetMaxContactsPerPhone(w http.ResponseWriter, r *http.Request) {
	p, err := requireAdmin(r)
	if err != nil {
		writeError(w, r, h.Logger, "set setting", err)
		return
	}
	var req maxContactsPerPhone
	if err := readBodyJSON(r, maxJSONBody, &req); err != nil {
		writeError(w, r, h.Logger, "set setting", err)
		return
	}
	if err := h.Settings.SetMaxContactsPerPhone(r.Context(), p, req.Value); err != nil {
		writeError(w, r, h.Logger, "set setting", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(req))
}
