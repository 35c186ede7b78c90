package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_GetDSN_WithTimeouts(t *testing.T) {
	cfg := DatabaseConfig{
		Host:             "db",
		Port:             5432,
		User:             "app",
		Password:         "secret",
		Database:         "phone_directly",
		SSLMode:          "disable",
		ConnectTimeout:   500 * time.Millisecond,
		StatementTimeout: 10 * time.Second,
		LockTimeout:      3 * time.Second,
	}

	dsn := cfg.GetDSN()
	assert.Contains(t, dsn, "host=db port=5432 user=app password=secret dbname=phone_directly sslmode=disable")
	assert.Contains(t, dsn, "connect_timeout=1")
	assert.Contains(t, dsn, "statement_timeout=10000")
	assert.Contains(t, dsn, "lock_timeout=3000")
}

func TestDatabaseConfig_GetDSN_NoTimeouts(t *testing.T) {
	cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=localhost port=5432 user=u password=p dbname=d sslmode=disable", cfg.GetDSN())
}

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "pg.local")
	t.Setenv("TEST_DB_PORT", "6543")
	t.Setenv("TEST_DB_STATEMENT_TIMEOUT", "2s")

	cfg := DatabaseConfig{Host: "localhost", Port: 5432}
	cfg.LoadFromEnv("TEST_DB")

	assert.Equal(t, "pg.local", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.StatementTimeout)
}
