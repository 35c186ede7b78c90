package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/service"
)

// UsersHandler 用户管理 API（仅 admin）
type UsersHandler struct {
	Users  service.UserService
	Logger *zap.Logger
}

func NewUsersHandler(users service.UserService, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{Users: users, Logger: logger}
}

// List GET /api/v1/users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, h.Logger, "list users", err)
		return
	}
	users, err := h.Users.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, h.Logger, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(users))
}

// Create POST /api/v1/users {"login", "password", "role"}
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := requireAdmin(r)
	if err != nil {
		writeError(w, r, h.Logger, "create user", err)
		return
	}
	var req service.CreateUserRequest
	if err := readBodyJSON(r, maxJSONBody, &req); err != nil {
		writeError(w, r, h.Logger, "create user", err)
		return
	}
	u, err := h.Users.CreateUser(r.Context(), p, req)
	if err != nil {
		writeError(w, r, h.Logger, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(u))
}

// Toggle POST /api/v1/users/{id}/toggle
func (h *UsersHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	p, err := requireAdmin(r)
	if err != nil {
		writeError(w, r, h.Logger, "toggle user", err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, "toggle user", err)
		return
	}
	u, err := h.Users.ToggleUser(r.Context(), p, id)
	if err != nil {
		writeError(w, r, h.Logger, "toggle user", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(u))
}
