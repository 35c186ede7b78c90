package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
	"github.com/limbovvv/phone-directly/internal/service"
	"github.com/limbovvv/phone-directly/internal/store"
)

func newTestHandler(t *testing.T, limit int) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	s := repository.NewMemoryStore()
	require.NoError(t, s.Repos().Settings.UpsertSetting(context.Background(), domain.SettingMaxContactsPerPhone, strconv.Itoa(limit)))

	registry := service.NewPhoneRegistry()
	limiter := service.NewLinkLimiter(1)
	audit := service.NewAuditService(s, nil, "", logger)
	departments := service.NewDepartmentService(s, store.NewMemoryKVStore(), time.Minute, audit, logger)

	router := NewRouter(logger)
	router.RegisterHealthRoutes()
	router.RegisterDepartmentRoutes(NewDepartmentsHandler(departments, logger))
	router.RegisterContactRoutes(NewContactsHandler(
		service.NewContactService(s, departments, registry, limiter, audit, service.NopNotifier{}, logger),
		service.NewAssociationService(s, registry, limiter, audit, service.NopNotifier{}, logger),
		logger,
	))
	router.RegisterSettingsRoutes(NewSettingsHandler(service.NewSettingsService(s, limiter, audit, logger), logger))
	router.RegisterBulkRoutes(NewBulkHandler(
		service.NewBulkService(s, departments, registry, limiter, audit, service.NopNotifier{}, logger),
		1<<20, logger,
	))
	router.RegisterAuditRoutes(NewAuditHandler(audit, logger))
	router.RegisterUserRoutes(NewUsersHandler(service.NewUserService(s, audit, logger), logger))
	return router.Handler()
}

type caller struct {
	id   int64
	role domain.Role
}

var (
	anonymous = caller{}
	admin     = caller{id: 1, role: domain.RoleAdmin}
	editor    = caller{id: 2, role: domain.RoleEditor}
	viewer    = caller{id: 3, role: domain.RoleViewer}
)

func doRequest(t *testing.T, h http.Handler, as caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	as.apply(req)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func (c caller) apply(req *http.Request) {
	if c.id != 0 {
		req.Header.Set(HeaderUserID, strconv.FormatInt(c.id, 10))
		req.Header.Set(HeaderUserRole, string(c.role))
	}
}

func decodeResult[T any](t *testing.T, rr *httptest.ResponseRecorder) Result[T] {
	t.Helper()
	var out Result[T]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func createDepartment(t *testing.T, h http.Handler, name string, parentID *int64) int64 {
	t.Helper()
	rr := doRequest(t, h, admin, http.MethodPost, "/api/v1/departments", map[string]any{"name": name, "parent_id": parentID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeResult[int64](t, rr).Result
}

func createContact(t *testing.T, h http.Handler, deptID int64, name string, phones ...service.PhoneInput) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(t, h, editor, http.MethodPost, "/api/v1/contacts", service.CreateContactRequest{
		DepartmentID: deptID, FullName: name, Phones: phones,
	})
}

func internal(number string) service.PhoneInput {
	return service.PhoneInput{Type: "internal", Number: number}
}

func TestHealthAndRequestID(t *testing.T) {
	h := newTestHandler(t, 1)

	rr := doRequest(t, h, anonymous, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "req-42", rr.Header().Get(HeaderRequestID))
}

func TestRoleChecks(t *testing.T) {
	h := newTestHandler(t, 1)
	dept := createDepartment(t, h, "HQ", nil)

	rr := doRequest(t, h, anonymous, http.MethodPost, "/api/v1/contacts", service.CreateContactRequest{DepartmentID: dept, FullName: "Ann"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(t, h, viewer, http.MethodPost, "/api/v1/contacts", service.CreateContactRequest{DepartmentID: dept, FullName: "Ann"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, h, editor, http.MethodPost, "/api/v1/departments", map[string]any{"name": "Ops"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, h, editor, http.MethodGet, "/api/v1/settings/max-contacts-per-phone", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, h, editor, http.MethodGet, "/api/v1/audit", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, h, anonymous, http.MethodGet, "/api/v1/departments?active_only=false", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// unknown role is treated as anonymous
	req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts?include_archived=true", nil)
	req.Header.Set(HeaderUserID, "9")
	req.Header.Set(HeaderUserRole, "root")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestContactLifecycle(t *testing.T) {
	h := newTestHandler(t, 2)
	hq := createDepartment(t, h, "HQ", nil)
	dev := createDepartment(t, h, "Dev", &hq)

	rr := createContact(t, h, dev, "Ivan Petrov", internal("101"), service.PhoneInput{Type: "city", Number: " 123-45-67 ", Label: "desk"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeResult[service.ContactView](t, rr).Result
	assert.Equal(t, "HQ / Dev", created.DepartmentPath)
	require.Len(t, created.Phones, 2)

	// public search by subtree and by number
	rr = doRequest(t, h, anonymous, http.MethodGet, "/api/v1/contacts?dept_id="+strconv.FormatInt(hq, 10), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeResult[[]service.ContactView](t, rr).Result, 1)

	rr = doRequest(t, h, anonymous, http.MethodGet, "/api/v1/contacts?q=123-45", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeResult[[]service.ContactView](t, rr).Result, 1)

	path := "/api/v1/contacts/" + strconv.FormatInt(created.ID, 10)
	rr = doRequest(t, h, editor, http.MethodPost, path+"/archive", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doRequest(t, h, anonymous, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = doRequest(t, h, editor, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeResult[service.ContactView](t, rr).Result.IsArchived)

	rr = doRequest(t, h, anonymous, http.MethodGet, "/api/v1/contacts", nil)
	assert.Empty(t, decodeResult[[]service.ContactView](t, rr).Result)
	rr = doRequest(t, h, editor, http.MethodGet, "/api/v1/contacts?include_archived=true", nil)
	assert.Len(t, decodeResult[[]service.ContactView](t, rr).Result, 1)

	rr = doRequest(t, h, editor, http.MethodPost, path+"/restore", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = doRequest(t, h, anonymous, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, h, anonymous, http.MethodGet, "/api/v1/contacts/999", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = doRequest(t, h, anonymous, http.MethodGet, "/api/v1/contacts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReplacePhones_LimitExceeded(t *testing.T) {
	h := newTestHandler(t, 2)
	dept := createDepartment(t, h, "IT", nil)

	for _, name := range []string{"A", "B"} {
		rr := createContact(t, h, dept, name, internal("101"))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	rr := createContact(t, h, dept, "C")
	require.Equal(t, http.StatusCreated, rr.Code)
	c := decodeResult[service.ContactView](t, rr).Result

	path := "/api/v1/contacts/" + strconv.FormatInt(c.ID, 10) + "/phones"
	rr = doRequest(t, h, editor, http.MethodPut, path, map[string]any{"phones": []service.PhoneInput{internal("102"), internal("101")}})
	assert.Equal(t, http.StatusConflict, rr.Code)
	res := decodeResult[any](t, rr)
	assert.Equal(t, ResultError, res.Code)
	assert.Equal(t, "limit 2 exceeded for number 101", res.Message)

	// nothing was linked
	rr = doRequest(t, h, editor, http.MethodGet, "/api/v1/contacts/"+strconv.FormatInt(c.ID, 10), nil)
	assert.Empty(t, decodeResult[service.ContactView](t, rr).Result.Phones)

	rr = doRequest(t, h, editor, http.MethodPut, path, map[string]any{"phones": []service.PhoneInput{internal("102")}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decodeResult[[]service.PhoneView](t, rr).Result, 1)

	rr = doRequest(t, h, editor, http.MethodPut, path, map[string]any{"phones": []service.PhoneInput{{Type: "fax", Number: "1"}}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDepartments(t *testing.T) {
	h := newTestHandler(t, 1)
	root := createDepartment(t, h, "Root", nil)
	child := createDepartment(t, h, "Child", &root)

	rr := doRequest(t, h, admin, http.MethodPost, "/api/v1/departments", map[string]any{"name": "Child", "parent_id": root})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, admin, http.MethodPut, "/api/v1/departments/"+strconv.FormatInt(root, 10), map[string]any{"name": "Root", "parent_id": child})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, admin, http.MethodPut, "/api/v1/departments/"+strconv.FormatInt(child, 10), map[string]any{"name": "Renamed", "parent_id": root, "sort_order": 3})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doRequest(t, h, anonymous, http.MethodGet, "/api/v1/departments", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	forest := decodeResult[[]service.DepartmentNode](t, rr).Result
	require.Len(t, forest, 1)
	require.Len(t, forest[0].Children, 1)
	assert.Equal(t, "Renamed", forest[0].Children[0].Name)

	rr = doRequest(t, h, admin, http.MethodPost, "/api/v1/departments/"+strconv.FormatInt(child, 10)+"/deactivate", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doRequest(t, h, anonymous, http.MethodGet, "/api/v1/departments", nil)
	assert.Empty(t, decodeResult[[]service.DepartmentNode](t, rr).Result[0].Children)

	rr = doRequest(t, h, admin, http.MethodGet, "/api/v1/departments?active_only=false", nil)
	assert.Len(t, decodeResult[[]service.DepartmentNode](t, rr).Result[0].Children, 1)

	rr = doRequest(t, h, admin, http.MethodPost, "/api/v1/departments/404/deactivate", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSettings(t *testing.T) {
	h := newTestHandler(t, 2)
	dept := createDepartment(t, h, "IT", nil)
	for _, name := range []string{"A", "B"} {
		require.Equal(t, http.StatusCreated, createContact(t, h, dept, name, internal("101")).Code)
	}

	rr := doRequest(t, h, admin, http.MethodGet, "/api/v1/settings/max-contacts-per-phone", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decodeResult[maxContactsPerPhone](t, rr).Result.Value)

	rr = doRequest(t, h, admin, http.MethodPut, "/api/v1/settings/max-contacts-per-phone", map[string]int{"value": 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeResult[any](t, rr).Message, "2")

	rr = doRequest(t, h, admin, http.MethodPut, "/api/v1/settings/max-contacts-per-phone", map[string]int{"value": 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, admin, http.MethodPut, "/api/v1/settings/max-contacts-per-phone", map[string]int{"value": 5})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doRequest(t, h, admin, http.MethodGet, "/api/v1/audit?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	entries := decodeResult[[]service.AuditEntryView](t, rr).Result
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntitySetting, entries[0].Entity)
	assert.Equal(t, domain.ActionUpdate, entries[0].Action)
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	admin.apply(req)
	return req
}

func TestImportAndExport(t *testing.T) {
	h := newTestHandler(t, 1)

	csvBody := strings.Join([]string{
		"DepartmentPath,FullName,PhonesCity,PhonesInternal,PhonesIP,Archived",
		"HQ / Dev,Ann,,101,,0",
		"HQ / Dev,Bob,,101,,0",
		",,,,,",
		",Carl,,102,,1",
	}, "\n")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, uploadRequest(t, "directory.csv", []byte(csvBody)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := decodeResult[service.ImportResult](t, rr).Result
	assert.Equal(t, 2, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "limit 1 exceeded for number 101")

	rr = doRequest(t, h, admin, http.MethodGet, "/api/v1/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".csv")
	rows, err := DecodeDirectoryCSV(rr.Body)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "HQ / Dev", rows[0].DepartmentPath)
	assert.Equal(t, "Ann", rows[0].FullName)
	assert.Equal(t, "Imported", rows[1].DepartmentPath)
	assert.Equal(t, "1", rows[1].Archived)

	rr = doRequest(t, h, admin, http.MethodGet, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	xrows, err := DecodeDirectoryExcel(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, rows, xrows)

	rr = doRequest(t, h, admin, http.MethodGet, "/api/v1/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestImport_FileLevelErrors(t *testing.T) {
	h := newTestHandler(t, 1)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, uploadRequest(t, "directory.txt", []byte("FullName\nAnn")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, uploadRequest(t, "directory.csv", []byte("Name,Phone\nAnn,1")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeResult[any](t, rr).Message, "FullName")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, uploadRequest(t, "directory.xlsx", []byte("not a workbook")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", strings.NewReader(""))
	admin.apply(req)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
