package httpapi

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/service"
)

// DepartmentsHandler 部门 API
type DepartmentsHandler struct {
	Departments service.DepartmentService
	Logger      *zap.Logger
}

func NewDepartmentsHandler(departments service.DepartmentService, logger *zap.Logger) *DepartmentsHandler {
	return &DepartmentsHandler{Departments: departments, Logger: logger}
}

// Forest GET /api/v1/departments?active_only=false
// 默认只返回启用的部门；包含停用部门需 admin
func (h *DepartmentsHandler) Forest(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if v := r.URL.Query().Get("active_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid active_only"))
			return
		}
		activeOnly = b
	}
	if !activeOnly {
		if _, err := requireAdmin(r); err != nil {
			writeError(w, r, h.Logger, "department forest", err)
			return
		}
	}

	forest, err := h.Departments.Forest(r.Context(), activeOnly)
	if err != nil {
		writeError(w, r, h.Logger, "department forest", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(forest))
}

// Create POST /api/v1/departments
func (h *DepartmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := requireAdmin(r)
	if err != nil {
		writeError(w, r, h.Logger, "create department", err)
		return
	}
	var req service.CreateDepartmentRequest
	if err := readBodyJSON(r, maxJSONBody, &req); err != nil {
		writeError(w, r, h.Logger, "create department", err)
		return
	}
	dept, err := h.Departments.CreateDepartment(r.Context(), p, req)
	if err != nil {
		writeError(w, r, h.Logger, "create department", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(dept.ID))
}

// Update PUT /api/v1/departments/{id}
func (h *DepartmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := requireAdmin(r)
	if err != nil {
		writeError(w, r, h.Logger, "update department", err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, "update department", err)
		return
	}
	var req service.UpdateDepartmentRequest
	if err := readBodyJSON(r, maxJSONBody, &req); err != nil {
		writeError(w, r, h.Logger, "update department", err)
		return
	}
	req.ID = id
	if _, err := h.Departments.UpdateDepartment(r.Context(), p, req); err != nil {
		writeError(w, r, h.Logger, "update department", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(id))
}

// Deactivate POST /api/v1/departments/{id}/deactivate
func (h *DepartmentsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	p, err := requireAdmin(r)
	if err != nil {
		writeError(w, r, h.Logger, "deactivate department", err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, "deactivate department", err)
		return
	}
	if err := h.Departments.DeactivateDepartment(r.Context(), p, id); err != nil {
		writeError(w, r, h.Logger, "deactivate department", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(id))
}
