package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limbovvv/phone-directly/internal/domain"
)

func TestReplaceContactPhones_LimitScenario(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	hq := env.department(t, 0, "HQ")

	a := env.contact(t, hq, "A")
	b := env.contact(t, hq, "B")
	c := env.contact(t, hq, "C")
	require.NoError(t, env.setPhones(a, "101"))
	require.NoError(t, env.setPhones(b, "101"))

	err := env.setPhones(c, "101")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Equal(t, "limit 2 exceeded for number 101", err.Error())
	assert.Empty(t, env.numbers(t, c))

	require.NoError(t, env.contacts.ArchiveContact(ctx, env.admin, a))
	require.NoError(t, env.setPhones(c, "101"))
	assert.Equal(t, []string{"101"}, env.numbers(t, c))
	assert.Equal(t, 2, env.usage(t, domain.PhoneTypeInternal, "101"))
}

func TestReplaceContactPhones_Atomic(t *testing.T) {
	env := newTestEnv(t, 1)
	hq := env.department(t, 0, "HQ")

	a := env.contact(t, hq, "A")
	c := env.contact(t, hq, "C")
	require.NoError(t, env.setPhones(a, "101"))
	require.NoError(t, env.setPhones(c, "200", "201"))

	err := env.setPhones(c, "300", "101", "301")
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)
	assert.Equal(t, []string{"200", "201"}, env.numbers(t, c))

	// 失败事务中创建的号码也被回滚
	_, err = env.store.Repos().Phones.GetPhoneByKey(context.Background(), domain.PhoneTypeInternal, "300")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReplaceContactPhones_ResaveAtCapacity(t *testing.T) {
	env := newTestEnv(t, 1)
	hq := env.department(t, 0, "HQ")
	a := env.contact(t, hq, "A")

	require.NoError(t, env.setPhones(a, "101"))
	require.NoError(t, env.setPhones(a, "101", "102"))
	assert.Equal(t, []string{"101", "102"}, env.numbers(t, a))
	assert.Equal(t, 1, env.usage(t, domain.PhoneTypeInternal, "101"))
}

func TestReplaceContactPhones_DuplicatesCollapse(t *testing.T) {
	env := newTestEnv(t, 1)
	hq := env.department(t, 0, "HQ")
	a := env.contact(t, hq, "A")

	views, err := env.associations.ReplaceContactPhones(context.Background(), env.admin, a, []PhoneInput{
		{Type: "city", Number: " 555 ", Label: "desk"},
		{Type: "CITY", Number: "555"},
		{Type: "ip", Number: "555"},
	})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, domain.PhoneTypeCity, views[0].Type)
	assert.Equal(t, "desk", views[0].Label)
	assert.Equal(t, domain.PhoneTypeIP, views[1].Type)
}

func TestReplaceContactPhones_ArchivedContactTakesNoCapacity(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	hq := env.department(t, 0, "HQ")
	a := env.contact(t, hq, "A")
	b := env.contact(t, hq, "B")

	require.NoError(t, env.setPhones(a, "101"))
	require.NoError(t, env.contacts.ArchiveContact(ctx, env.admin, b))
	require.NoError(t, env.setPhones(b, "101"))
	assert.Equal(t, 1, env.usage(t, domain.PhoneTypeInternal, "101"))

	err := env.contacts.RestoreContact(ctx, env.admin, b)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)

	v, err := env.contacts.GetContact(ctx, b)
	require.NoError(t, err)
	assert.True(t, v.IsArchived)
}

func TestReplaceContactPhones_Errors(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	hq := env.department(t, 0, "HQ")
	a := env.contact(t, hq, "A")

	_, err := env.associations.ReplaceContactPhones(ctx, env.admin, 999, []PhoneInput{{Type: "city", Number: "1"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.associations.ReplaceContactPhones(ctx, env.admin, a, []PhoneInput{{Type: "fax", Number: "1"}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.associations.ReplaceContactPhones(ctx, env.admin, a, []PhoneInput{{Type: "city", Number: "  "}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.associations.ReplaceContactPhones(ctx, env.admin, a, []PhoneInput{{Type: "city", Number: "101;102"}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.associations.ReplaceContactPhones(ctx, env.admin, a, []PhoneInput{{Type: "city", Number: strings.Repeat("1", domain.MaxPhoneNumberLength+1)}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.associations.ReplaceContactPhones(ctx, env.admin, a, []PhoneInput{{Type: "city", Number: "1", Label: strings.Repeat("l", domain.MaxPhoneLabelLength+1)}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	views, err := env.associations.ReplaceContactPhones(ctx, env.admin, a, nil)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestReplaceContactPhones_WritesAudit(t *testing.T) {
	env := newTestEnv(t, 1)
	hq := env.department(t, 0, "HQ")
	a := env.contact(t, hq, "A")
	require.NoError(t, env.setPhones(a, "101"))

	entries, err := env.audit.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionUpdatePhones, entries[0].Action)
	assert.Equal(t, domain.EntityContact, entries[0].Entity)
	assert.Equal(t, a, *entries[0].EntityID)
	assert.Contains(t, entries[0].Diff, `"number":"101"`)
}

func TestLinkLimiter_RequireReason(t *testing.T) {
	env := newTestEnv(t, 1)
	hq := env.department(t, 0, "HQ")
	a := env.contact(t, hq, "A")
	require.NoError(t, env.setPhones(a, "101"))

	limiter := NewLinkLimiter(1)
	repos := env.store.Repos()
	phone, err := repos.Phones.GetPhoneByKey(context.Background(), domain.PhoneTypeInternal, "101")
	require.NoError(t, err)

	err = limiter.Require(context.Background(), repos, phone, 1)
	var le *domain.LimitExceededError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 1, le.Limit)
	assert.Equal(t, "limit 1 exceeded for number 101", err.Error())

	assert.NoError(t, limiter.Require(context.Background(), repos, phone, 0))
}
