package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int

	// 超时（0 表示不设置）
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int // 0 使用 go-redis 默认值

	// 超时（0 使用 go-redis 默认值）
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr string

	// 超时（0 表示不限制）
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// GetDSN 获取数据库连接字符串
// statement_timeout / lock_timeout 由 lib/pq 作为运行时参数传给服务端
func (c *DatabaseConfig) GetDSN() string {
	parts := []string{
		fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode),
	}
	if c.ConnectTimeout > 0 {
		// connect_timeout 单位为秒，最小 1 秒
		secs := int(c.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", secs))
	}
	if c.StatementTimeout > 0 {
		parts = append(parts, fmt.Sprintf("statement_timeout=%d", c.StatementTimeout.Milliseconds()))
	}
	if c.LockTimeout > 0 {
		parts = append(parts, fmt.Sprintf("lock_timeout=%d", c.LockTimeout.Milliseconds()))
	}
	return strings.Join(parts, " ")
}

// LoadFromEnv 从环境变量加载配置
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	if host := os.Getenv(prefix + "_HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv(prefix + "_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Port)
	}
	if user := os.Getenv(prefix + "_USER"); user != "" {
		c.User = user
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if database := os.Getenv(prefix + "_NAME"); database != "" {
		c.Database = database
	}
	if sslMode := os.Getenv(prefix + "_SSLMODE"); sslMode != "" {
		c.SSLMode = sslMode
	}
	if d, err := time.ParseDuration(os.Getenv(prefix + "_CONNECT_TIMEOUT")); err == nil {
		c.ConnectTimeout = d
	}
	if d, err := time.ParseDuration(os.Getenv(prefix + "_STATEMENT_TIMEOUT")); err == nil {
		c.StatementTimeout = d
	}
	if d, err := time.ParseDuration(os.Getenv(prefix + "_LOCK_TIMEOUT")); err == nil {
		c.LockTimeout = d
	}
}
