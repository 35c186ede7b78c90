package httpapi

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/service"
)

// ContactsHandler 联系人与号码 API
type ContactsHandler struct {
	Contacts     service.ContactService
	Associations service.AssociationService
	Logger       *zap.Logger
}

func NewContactsHandler(contacts service.ContactService, associations service.AssociationService, logger *zap.Logger) *ContactsHandler {
	return &ContactsHandler{Contacts: contacts, Associations: associations, Logger: logger}
}

// Search GET /api/v1/contacts?dept_id=&q=&include_archived=
// 匿名可查；include_archived 需 admin / editor
func (h *ContactsHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.SearchContactsRequest{Query: q.Get("q")}

	if v := q.Get("dept_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid dept_id"))
			return
		}
		req.DepartmentID = &id
	}
	if v := q.Get("include_archived"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid include_archived"))
			return
		}
		if b {
			if _, err := requireEditor(r); err != nil {
				writeError(w, r, h.Logger, "search contacts", err)
				return
			}
		}
		req.IncludeArchived = b
	}

	contacts, err := h.Contacts.SearchContacts(r.Context(), req)
	if err != nil {
		writeError(w, r, h.Logger, "search contacts", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(contacts))
}

// Get GET /api/v1/contacts/{id}
// 归档联系人仅 admin / editor 可见
func (h *ContactsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, "get contact", err)
		return
	}
	c, err := h.Contacts.GetContact(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Logger, "get contact", err)
		return
	}
	if c.IsArchived && !principalFromRequest(r).CanEdit() {
		writeError(w, r, h.Logger, "get contact", domain.NotFoundf("contact %d", id))
		return
	}
	writeJSON(w, http.StatusOK, Ok(c))
}

// Create POST /api/v1/contacts
func (h *ContactsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := requireEditor(r)
	if err != nil {
		writeError(w, r, h.Logger, "create contact", err)
		return
	}
	var req service.CreateContactRequest
	if err := readBodyJSON(r, maxJSONBody, &req); err != nil {
		writeError(w, r, h.Logger, "create contact", err)
		return
	}
	c, err := h.Contacts.CreateContact(r.Context(), p, req)
	if err != nil {
		writeError(w, r, h.Logger, "create contact", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(c))
}

// Archive POST /api/v1/contacts/{id}/archive
func (h *ContactsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// Restore POST /api/v1/contacts/{id}/restore
func (h *ContactsHandler) Restore(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *ContactsHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	op := "restore contact"
	if archived {
		op = "archive contact"
	}
	p, err := requireEditor(r)
	if err != nil {
		writeError(w, r, h.Logger, op, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, op, err)
		return
	}
	if archived {
		err = h.Contacts.ArchiveContact(r.Context(), p, id)
	} else {
		err = h.Contacts.RestoreContact(r.Context(), p, id)
	}
	if err != nil {
		writeError(w, r, h.Logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(id))
}

// replacePhonesRequest PUT /api/v1/contacts/{id}/phones 请求体
type replacePhonesRequest struct {
	Phones []service.PhoneInput `json:"phones"`
}

// ReplacePhones PUT /api/v1/contacts/{id}/phones
// 整体替换；超限返回 409，且不做任何修改
func (h *ContactsHandler) ReplacePhones(w http.ResponseWriter, r *http.Request) {
	p, err := requireEditor(r)
	if err != nil {
		writeError(w, r, h.Logger, "replace phones", err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.Logger, "replace phones", err)
		return
	}
	var req replacePhonesRequest
	if err := readBodyJSON(r, maxJSONBody, &req); err != nil {
		writeError(w, r, h.Logger, "replace phones", err)
		return
	}
	phones, err := h.Associations.ReplaceContactPhones(r.Context(), p, id, req.Phones)
	if err != nil {
		writeError(w, r, h.Logger, "replace phones", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(phones))
}
