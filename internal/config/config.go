package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	commoncfg "github.com/laraveldev/tg-bot/common/config"
	"github.com/laraveldev/tg-bot/internal/domain"
)

// Config tg-bot lunch service configuration
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled    bool
	Database     commoncfg.DatabaseConfig
	RedisEnabled bool
	Redis        commoncfg.RedisConfig
	MQTT         MQTTConfig
	Telegram     commoncfg.TelegramConfig
	Lunch        LunchConfig
	Log          struct {
		Level  string
		Format string
	}
}

// MQTTConfig event publishing over MQTT (disabled by default)
type MQTTConfig struct {
	commoncfg.MQTTConfig
	Enabled bool
	Topic   string // e.g. "lunch/events"
}

// LunchConfig scheduling and sweep settings
type LunchConfig struct {
	Timezone          string // IANA name, e.g. "Asia/Tashkent"
	Location          *time.Location
	SweepInterval     time.Duration
	DailyBuildAt      string // "HH:MM" local time of the daily schedule build
	AdminCheckTimeout time.Duration
	SweepLockTTL      time.Duration
	EventsStream      string
	EventsStreamLen   int64
}

// Load reads configuration from the environment with defaults
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// DB disabled runs on in-memory repositories
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "tg_bot")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "tg-bot-lunch")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "lunch/events")

	cfg.Telegram.APIURL = "https://api.telegram.org"
	cfg.Telegram.Timeout = 10 * time.Second
	cfg.Telegram.RetryCount = 2
	cfg.Telegram.LoadFromEnv("TELEGRAM")

	cfg.Lunch.Timezone = getEnv("LUNCH_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(cfg.Lunch.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid LUNCH_TIMEZONE %q: %w", cfg.Lunch.Timezone, err)
	}
	cfg.Lunch.Location = loc
	cfg.Lunch.SweepInterval = time.Duration(parseInt(getEnv("LUNCH_SWEEP_INTERVAL_SECONDS", "60"), 60)) * time.Second
	cfg.Lunch.DailyBuildAt = getEnv("LUNCH_DAILY_BUILD_AT", "08:00")
	cfg.Lunch.AdminCheckTimeout = time.Duration(parseInt(getEnv("LUNCH_ADMIN_CHECK_TIMEOUT_SECONDS", "10"), 10)) * time.Second
	cfg.Lunch.SweepLockTTL = time.Duration(parseInt(getEnv("LUNCH_SWEEP_LOCK_TTL_SECONDS", "55"), 55)) * time.Second
	cfg.Lunch.EventsStream = getEnv("LUNCH_EVENTS_STREAM", "lunch:events")
	cfg.Lunch.EventsStreamLen = int64(parseInt(getEnv("LUNCH_EVENTS_STREAM_LEN", "10000"), 10000))

	if _, err := domain.ParseClockTime(cfg.Lunch.DailyBuildAt); err != nil {
		return nil, fmt.Errorf("invalid LUNCH_DAILY_BUILD_AT: %w", err)
	}
	if cfg.Lunch.SweepInterval <= 0 {
		return nil, fmt.Errorf("LUNCH_SWEEP_INTERVAL_SECONDS must be positive")
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
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
