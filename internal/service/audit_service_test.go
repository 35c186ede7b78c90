package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
)

func TestAuditService_MirrorToStream(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	s := repository.NewMemoryStore()
	audit := NewAuditService(s, client, "phone-directory:audit", zap.NewNop())
	p := &domain.Principal{UserID: 7, Role: domain.RoleAdmin, IP: "10.0.0.9"}

	var entry *domain.AuditLog
	require.NoError(t, s.WithTx(ctx, func(r repository.Repos) error {
		var err error
		entry, err = audit.Record(ctx, r, p, domain.ActionImport, domain.EntityContacts, 0, "created=1,updated=0,errors=0")
		return err
	}))
	audit.Mirror(ctx, entry, nil)

	msgs, err := client.XRangeN(ctx, "phone-directory:audit", "-", "+", 10).Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var view AuditEntryView
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &view))
	assert.Equal(t, domain.ActionImport, view.Action)
	assert.Equal(t, int64(7), *view.UserID)
	assert.Equal(t, "10.0.0.9", view.IP)
	assert.Equal(t, "created=1,updated=0,errors=0", view.Diff)
}

func TestAuditService_RecordRolledBackWithTx(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()
	audit := NewAuditService(s, nil, "", zap.NewNop())

	_ = s.WithTx(ctx, func(r repository.Repos) error {
		_, err := audit.Record(ctx, r, nil, domain.ActionCreate, domain.EntityContact, 1, map[string]string{"a": "b"})
		require.NoError(t, err)
		return domain.Validationf("abort")
	})

	items, err := audit.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}
