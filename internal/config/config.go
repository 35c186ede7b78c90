package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "github.com/limbovvv/phone-directly/common/config"
)

// Config phone-directory（HTTP API）配置
type Config struct {
	HTTP          commoncfg.HTTPConfig
	DBEnabled     bool
	DBAutoMigrate bool
	Database      commoncfg.DatabaseConfig
	Redis         RedisConfig
	MQTT          MQTTConfig
	Log           struct {
		Level  string
		Format string
	}
	Directory DirectoryConfig
}

// RedisConfig Redis（部门树缓存 + 审计 stream），默认禁用
type RedisConfig struct {
	Enabled        bool
	commoncfg.RedisConfig
	ForestCacheTTL time.Duration
	AuditStream    string
}

// MQTTConfig 变更通知，默认禁用
type MQTTConfig struct {
	Enabled bool
	commoncfg.MQTTConfig
	Topic string
}

// DirectoryConfig 业务参数
type DirectoryConfig struct {
	MaxContactsPerPhoneDefault int   // settings 表缺少配置时的上限
	ImportMaxBytes             int64 // 上传文件大小上限
	SeedDemo                   bool

	// users 表为空时创建的初始 admin（任一为空则跳过）
	AdminLogin    string
	AdminPassword string
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.ReadHeaderTimeout = parseDuration(getEnv("HTTP_READ_HEADER_TIMEOUT", "5s"), 5*time.Second)
	cfg.HTTP.ReadTimeout = parseDuration(getEnv("HTTP_READ_TIMEOUT", "60s"), 60*time.Second)
	cfg.HTTP.WriteTimeout = parseDuration(getEnv("HTTP_WRITE_TIMEOUT", "120s"), 120*time.Second)
	cfg.HTTP.IdleTimeout = parseDuration(getEnv("HTTP_IDLE_TIMEOUT", "120s"), 120*time.Second)
	cfg.HTTP.ShutdownTimeout = parseDuration(getEnv("HTTP_SHUTDOWN_TIMEOUT", "5s"), 5*time.Second)

	// DB_ENABLED=false 时使用内存 Store（本地联调）
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.DBAutoMigrate = getEnv("DB_AUTO_MIGRATE", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "phone_directory")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "25"), 25)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)
	cfg.Database.ConnectTimeout = parseDuration(getEnv("DB_CONNECT_TIMEOUT", "5s"), 5*time.Second)
	cfg.Database.StatementTimeout = parseDuration(getEnv("DB_STATEMENT_TIMEOUT", "10s"), 10*time.Second)
	cfg.Database.LockTimeout = parseDuration(getEnv("DB_LOCK_TIMEOUT", "5s"), 5*time.Second)

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Redis.PoolSize = parseInt(getEnv("REDIS_POOL_SIZE", "10"), 10)
	cfg.Redis.DialTimeout = parseDuration(getEnv("REDIS_DIAL_TIMEOUT", "2s"), 2*time.Second)
	cfg.Redis.ReadTimeout = parseDuration(getEnv("REDIS_READ_TIMEOUT", "1s"), time.Second)
	cfg.Redis.WriteTimeout = parseDuration(getEnv("REDIS_WRITE_TIMEOUT", "1s"), time.Second)
	cfg.Redis.ForestCacheTTL = parseDuration(getEnv("FOREST_CACHE_TTL", "60s"), 60*time.Second)
	cfg.Redis.AuditStream = getEnv("AUDIT_STREAM", "phone-directory:audit")

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "phone-directory")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "phone-directory/changes")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Directory.MaxContactsPerPhoneDefault = parseInt(getEnv("MAX_CONTACTS_PER_PHONE_DEFAULT", "1"), 1)
	if cfg.Directory.MaxContactsPerPhoneDefault < 1 {
		cfg.Directory.MaxContactsPerPhoneDefault = 1
	}
	cfg.Directory.ImportMaxBytes = int64(parseInt(getEnv("IMPORT_MAX_BYTES", "10485760"), 10<<20))
	cfg.Directory.SeedDemo = getEnv("SEED_DEMO", "false") == "true"
	cfg.Directory.AdminLogin = getEnv("ADMIN_LOGIN", "")
	cfg.Directory.AdminPassword = getEnv("ADMIN_PASSWORD", "")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
