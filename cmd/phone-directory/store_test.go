package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/config"
	"github.com/limbovvv/phone-directly/internal/repository"
)

func TestOpenStore_DBDisabledUsesMemory(t *testing.T) {
	cfg := &config.Config{DBEnabled: false}

	st, closeStore, err := openStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &repository.MemoryStore{}, st)
}

func TestOpenStore_DBUnreachableFails(t *testing.T) {
	cfg := &config.Config{DBEnabled: true}
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.Port = 1
	cfg.Database.User = "postgres"
	cfg.Database.Database = "phone_directory"
	cfg.Database.SSLMode = "disable"
	cfg.Database.ConnectTimeout = time.Second

	st, closeStore, err := openStore(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB enabled but connection failed")
	assert.Nil(t, st)
	assert.Nil(t, closeStore)
}
