package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
	"github.com/limbovvv/phone-directly/internal/store"
)

func newRedisDepartmentService(t *testing.T) (*miniredis.Miniredis, DepartmentService, BulkService) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	s := repository.NewMemoryStore()
	audit := NewAuditService(s, nil, "", logger)
	departments := NewDepartmentService(s, store.NewRedisKVStore(client), time.Minute, audit, logger)
	bulk := NewBulkService(s, departments, NewPhoneRegistry(), NewLinkLimiter(1), audit, NopNotifier{}, logger)
	return mr, departments, bulk
}

func TestForest_CachedAndInvalidated(t *testing.T) {
	mr, departments, bulk := newRedisDepartmentService(t)
	ctx := context.Background()
	admin := &domain.Principal{UserID: 1, Role: domain.RoleAdmin}

	hq, err := departments.CreateDepartment(ctx, admin, CreateDepartmentRequest{Name: "HQ"})
	require.NoError(t, err)

	forest, err := departments.Forest(ctx, true)
	require.NoError(t, err)
	require.Len(t, forest, 1)
	assert.True(t, mr.Exists(forestCacheKeyActive))

	// 缓存命中：直接返回缓存内容
	mr.Set(forestCacheKeyActive, `[{"id":77,"name":"Cached","children":[]}]`)
	forest, err = departments.Forest(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "Cached", forest[0].Name)

	_, err = departments.CreateDepartment(ctx, admin, CreateDepartmentRequest{Name: "Dev", ParentID: &hq.ID})
	require.NoError(t, err)
	assert.False(t, mr.Exists(forestCacheKeyActive))

	forest, err = departments.Forest(ctx, true)
	require.NoError(t, err)
	require.Len(t, forest, 1)
	require.Len(t, forest[0].Children, 1)
	assert.Equal(t, "Dev", forest[0].Children[0].Name)

	_, err = bulk.ImportRows(ctx, admin, []Row{{DepartmentPath: "HQ / Ops", FullName: "A"}})
	require.NoError(t, err)
	assert.False(t, mr.Exists(forestCacheKeyActive))
}

func TestForest_MalformedCacheFallsBack(t *testing.T) {
	mr, departments, _ := newRedisDepartmentService(t)
	ctx := context.Background()
	admin := &domain.Principal{UserID: 1, Role: domain.RoleAdmin}

	_, err := departments.CreateDepartment(ctx, admin, CreateDepartmentRequest{Name: "HQ"})
	require.NoError(t, err)
	mr.Set(forestCacheKeyAll, "not json")

	forest, err := departments.Forest(ctx, false)
	require.NoError(t, err)
	require.Len(t, forest, 1)
	assert.Equal(t, "HQ", forest[0].Name)
}

func TestUpdateDepartment_RejectsCycles(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	hq := env.department(t, 0, "HQ")
	dev := env.department(t, hq, "Dev")
	backend := env.department(t, dev, "Backend")

	_, err := env.departments.UpdateDepartment(ctx, env.admin, UpdateDepartmentRequest{ID: hq, Name: "HQ", ParentID: &backend})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.departments.UpdateDepartment(ctx, env.admin, UpdateDepartmentRequest{ID: hq, Name: "HQ", ParentID: &hq})
	assert.ErrorIs(t, err, domain.ErrValidation)

	moved, err := env.departments.UpdateDepartment(ctx, env.admin, UpdateDepartmentRequest{ID: backend, Name: "Backend Team", SortOrder: 3})
	require.NoError(t, err)
	assert.False(t, moved.ParentID.Valid)
	assert.Equal(t, "Backend Team", moved.Name)

	paths, err := env.departments.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Backend Team", paths[backend])
	assert.Equal(t, "HQ / Dev", paths[dev])
}

func TestCreateDepartment_Validation(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	hq := env.department(t, 0, "HQ")

	_, err := env.departments.CreateDepartment(ctx, env.admin, CreateDepartmentRequest{Name: " "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	missing := int64(404)
	_, err = env.departments.CreateDepartment(ctx, env.admin, CreateDepartmentRequest{Name: "X", ParentID: &missing})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.departments.CreateDepartment(ctx, env.admin, CreateDepartmentRequest{Name: "HQ"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.departments.CreateDepartment(ctx, env.admin, CreateDepartmentRequest{Name: "HQ", ParentID: &hq})
	require.NoError(t, err)
}

func TestDeactivateDepartment(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	hq := env.department(t, 0, "HQ")
	env.department(t, hq, "Dev")

	require.NoError(t, env.departments.DeactivateDepartment(ctx, env.admin, hq))

	active, err := env.departments.Forest(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := env.departments.Forest(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)

	assert.ErrorIs(t, env.departments.DeactivateDepartment(ctx, env.admin, 999), domain.ErrNotFound)
}
