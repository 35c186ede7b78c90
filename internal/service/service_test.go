package service

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
	"github.com/limbovvv/phone-directly/internal/store"
)

type testEnv struct {
	store        *repository.MemoryStore
	kv           *store.MemoryKVStore
	audit        *AuditService
	departments  DepartmentService
	associations AssociationService
	contacts     ContactService
	settings     SettingsService
	bulk         BulkService
	users        UserService
	admin        *domain.Principal
}

func newTestEnv(t *testing.T, limit int) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	s := repository.NewMemoryStore()
	kv := store.NewMemoryKVStore()

	registry := NewPhoneRegistry()
	limiter := NewLinkLimiter(1)
	audit := NewAuditService(s, nil, "", logger)
	departments := NewDepartmentService(s, kv, time.Minute, audit, logger)

	env := &testEnv{
		store:        s,
		kv:           kv,
		audit:        audit,
		departments:  departments,
		associations: NewAssociationService(s, registry, limiter, audit, NopNotifier{}, logger),
		contacts:     NewContactService(s, departments, registry, limiter, audit, NopNotifier{}, logger),
		settings:     NewSettingsService(s, limiter, audit, logger),
		bulk:         NewBulkService(s, departments, registry, limiter, audit, NopNotifier{}, logger),
		users:        &userService{store: s, audit: audit, cost: bcrypt.MinCost, logger: logger},
		admin:        &domain.Principal{UserID: 1, Role: domain.RoleAdmin, IP: "127.0.0.1"},
	}
	require.NoError(t, s.Repos().Settings.UpsertSetting(context.Background(), domain.SettingMaxContactsPerPhone, strconv.Itoa(limit)))
	return env
}

func (e *testEnv) department(t *testing.T, parentID int64, name string) int64 {
	t.Helper()
	parent := sql.NullInt64{Int64: parentID, Valid: parentID != 0}
	d, _, err := e.store.Repos().Departments.EnsureDepartment(context.Background(), parent, name)
	require.NoError(t, err)
	return d.ID
}

func (e *testEnv) contact(t *testing.T, deptID int64, name string) int64 {
	t.Helper()
	v, err := e.contacts.CreateContact(context.Background(), e.admin, CreateContactRequest{DepartmentID: deptID, FullName: name})
	require.NoError(t, err)
	return v.ID
}

func (e *testEnv) setPhones(contactID int64, numbers ...string) error {
	inputs := make([]PhoneInput, 0, len(numbers))
	for _, n := range numbers {
		inputs = append(inputs, PhoneInput{Type: "internal", Number: n})
	}
	_, err := e.associations.ReplaceContactPhones(context.Background(), e.admin, contactID, inputs)
	return err
}

func (e *testEnv) numbers(t *testing.T, contactID int64) []string {
	t.Helper()
	links, err := e.store.Repos().Links.ListLinksByContact(context.Background(), contactID)
	require.NoError(t, err)
	out := []string{}
	for _, lp := range links {
		out = append(out, lp.Phone.Number)
	}
	return out
}

func (e *testEnv) usage(t *testing.T, phoneType domain.PhoneType, number string) int {
	t.Helper()
	repos := e.store.Repos()
	p, err := repos.Phones.GetPhoneByKey(context.Background(), phoneType, number)
	require.NoError(t, err)
	n, err := repos.Links.CountActiveLinks(context.Background(), p.ID)
	require.NoError(t, err)
	return n
}
