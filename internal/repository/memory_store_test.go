package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limbovvv/phone-directly/internal/domain"
)

func seedMemory(t *testing.T, s *MemoryStore) (deptID, contactID, phoneID int64) {
	t.Helper()
	ctx := context.Background()
	r := s.Repos()

	d, _, err := r.Departments.EnsureDepartment(ctx, sql.NullInt64{}, "HQ")
	require.NoError(t, err)
	contactID, err = r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: d.ID, FullName: "Ivanov"})
	require.NoError(t, err)
	phoneID, _, err = r.Phones.InsertPhoneIfAbsent(ctx, domain.PhoneTypeInternal, "101")
	require.NoError(t, err)
	_, err = r.Links.InsertLink(ctx, &domain.ContactPhone{ContactID: contactID, PhoneID: phoneID})
	require.NoError(t, err)
	return d.ID, contactID, phoneID
}

func TestMemoryStore_RollbackDiscardsWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	deptID, contactID, phoneID := seedMemory(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(r Repos) error {
		_, err := r.Links.DeleteLinksByContact(ctx, contactID)
		require.NoError(t, err)
		_, err = r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: deptID, FullName: "Petrov"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := s.Repos().Links.CountActiveLinks(ctx, phoneID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	contacts, err := s.Repos().Contacts.ListContacts(ctx, ContactFilter{})
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestMemoryStore_CommitAndCancel(t *testing.T) {
	s := NewMemoryStore()
	_, contactID, phoneID := seedMemory(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.WithTx(ctx, func(r Repos) error {
		cancel()
		return r.Contacts.SetContactArchived(context.Background(), contactID, true)
	})
	assert.ErrorIs(t, err, context.Canceled)

	n, _ := s.Repos().Links.CountActiveLinks(context.Background(), phoneID)
	assert.Equal(t, 1, n)

	err = s.WithTx(context.Background(), func(r Repos) error {
		return r.Contacts.SetContactArchived(context.Background(), contactID, true)
	})
	require.NoError(t, err)

	n, _ = s.Repos().Links.CountActiveLinks(context.Background(), phoneID)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_UniqueKeys(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	deptID, contactID, phoneID := seedMemory(t, s)
	r := s.Repos()

	_, inserted, err := r.Phones.InsertPhoneIfAbsent(ctx, domain.PhoneTypeInternal, "101")
	require.NoError(t, err)
	assert.False(t, inserted)

	// 同号码不同类型是另一条记录
	_, inserted, err = r.Phones.InsertPhoneIfAbsent(ctx, domain.PhoneTypeIP, "101")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = r.Links.InsertLink(ctx, &domain.ContactPhone{ContactID: contactID, PhoneID: phoneID})
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = r.Departments.CreateDepartment(ctx, &domain.Department{Name: "HQ", IsActive: true})
	assert.ErrorIs(t, err, domain.ErrValidation)

	child, created, err := r.Departments.EnsureDepartment(ctx, sql.NullInt64{Int64: deptID, Valid: true}, "HQ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, deptID, child.ParentID.Int64)

	// 同部门重名联系人
	_, err = r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: deptID, FullName: "Ivanov"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: child.ID, FullName: "Ivanov"})
	assert.NoError(t, err)

	// users(login)
	_, err = r.Users.CreateUser(ctx, &domain.User{Login: "admin", Role: domain.RoleAdmin, IsActive: true})
	require.NoError(t, err)
	_, err = r.Users.CreateUser(ctx, &domain.User{Login: "admin", Role: domain.RoleEditor, IsActive: true})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMemoryStore_ListOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	r := s.Repos()

	root, _, _ := r.Departments.EnsureDepartment(ctx, sql.NullInt64{}, "Root")
	for _, name := range []string{"Zeta", "Alpha", "Alpha"} {
		_, err := r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: root.ID, FullName: name})
		require.NoError(t, err)
	}
	items, err := r.Contacts.ListContacts(ctx, ContactFilter{Query: "ALP"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Less(t, items[0].ID, items[1].ID)

	_, err = r.Contacts.FindContact(ctx, "Nobody", root.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_MaxActiveUsage(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	deptID, _, _ := seedMemory(t, s)
	r := s.Repos()

	other, err := r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: deptID, FullName: "Petrov"})
	require.NoError(t, err)
	phone, err := r.Phones.GetPhoneByKey(ctx, domain.PhoneTypeInternal, "101")
	require.NoError(t, err)
	_, err = r.Links.InsertLink(ctx, &domain.ContactPhone{ContactID: other, PhoneID: phone.ID})
	require.NoError(t, err)

	number, n, err := r.Links.MaxActiveUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "101", number)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_SnapshotIsStable(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	deptID, _, _ := seedMemory(t, s)

	err := s.Snapshot(ctx, func(r Repos) error {
		before, err := r.Contacts.ListContacts(ctx, ContactFilter{IncludeArchived: true})
		require.NoError(t, err)
		require.Len(t, before, 1)

		// 快照期间其他事务提交
		require.NoError(t, s.WithTx(ctx, func(w Repos) error {
			_, err := w.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: deptID, FullName: "Petrov"})
			return err
		}))

		after, err := r.Contacts.ListContacts(ctx, ContactFilter{IncludeArchived: true})
		require.NoError(t, err)
		assert.Len(t, after, 1)

		_, err = r.Contacts.CreateContact(ctx, &domain.Contact{DepartmentID: deptID, FullName: "Sidorov"})
		return err
	})
	require.NoError(t, err)

	all, err := s.Repos().Contacts.ListContacts(ctx, ContactFilter{IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	names := []string{all[0].FullName, all[1].FullName}
	assert.ElementsMatch(t, []string{"Ivanov", "Petrov"}, names)
}
