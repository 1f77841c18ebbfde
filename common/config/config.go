package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig Postgres connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT broker settings
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// TelegramConfig Telegram Bot API settings
type TelegramConfig struct {
	BotToken    string
	APIURL      string // e.g. "https://api.telegram.org"
	Timeout     time.Duration
	RetryCount  int
	GroupChatID string // main workforce group, used for member counts
}

// GetDSN returns the lib/pq connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LoadFromEnv overrides fields from <prefix>_HOST, <prefix>_PORT, ...
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	if host := os.Getenv(prefix + "_HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv(prefix + "_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Port = p
		}
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
	if maxConns := os.Getenv(prefix + "_MAX_CONNS"); maxConns != "" {
		if n, err := strconv.Atoi(maxConns); err == nil {
			c.MaxConns = n
		}
	}
}

// LoadFromEnv overrides Redis fields from <prefix>_ADDR, <prefix>_PASSWORD, <prefix>_DB
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.DB = n
		}
	}
}

// LoadFromEnv overrides MQTT fields from <prefix>_BROKER, <prefix>_CLIENT_ID, ...
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	if broker := os.Getenv(prefix + "_BROKER"); broker != "" {
		c.Broker = broker
	}
	if clientID := os.Getenv(prefix + "_CLIENT_ID"); clientID != "" {
		c.ClientID = clientID
	}
	if username := os.Getenv(prefix + "_USERNAME"); username != "" {
		c.Username = username
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
}

// LoadFromEnv overrides Telegram fields from <prefix>_BOT_TOKEN, <prefix>_API_URL, ...
func (c *TelegramConfig) LoadFromEnv(prefix string) {
	if token := os.Getenv(prefix + "_BOT_TOKEN"); token != "" {
		c.BotToken = token
	}
	if apiURL := os.Getenv(prefix + "_API_URL"); apiURL != "" {
		c.APIURL = apiURL
	}
	if timeout := os.Getenv(prefix + "_TIMEOUT_SECONDS"); timeout != "" {
		if n, err := strconv.Atoi(timeout); err == nil && n > 0 {
			c.Timeout = time.Duration(n) * time.Second
		}
	}
	if retries := os.Getenv(prefix + "_RETRY_COUNT"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil && n >= 0 {
			c.RetryCount = n
		}
	}
	if groupChatID := os.Getenv(prefix + "_GROUP_CHAT_ID"); groupChatID != "" {
		c.GroupChatID = groupChatID
	}
}
