// internal/config/config.go
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jason-s-yu/memorygame/internal/cache"
	"github.com/jason-s-yu/memorygame/internal/game"
	"github.com/jason-s-yu/memorygame/internal/notify"
)

// Config is read from the environment once at startup. A .env file is loaded by
// godotenv/autoload in each main package before Load runs.
type Config struct {
	Port     string
	LogLevel string

	PostgresUser     string
	PostgresPassword string
	PGHost           string
	PGPort           string
	PGDatabase       string

	RedisAddr string
	RedisDB   int

	// Notifier selects the completion channel: "redis", "nats" or "local".
	// "local" runs without Redis, which also disables the action log.
	Notifier      string
	NATSURL       string
	NotifyChannel string

	TokenExpire time.Duration // 0 means tokens never expire

	Pacing game.Pacing

	// GameIdleTimeout drops sessions with no socket attached after this long without play.
	GameIdleTimeout time.Duration

	HistorianQueue     string
	HistorianBatchSize int
	HistorianFlush     time.Duration
}

// Load reads every setting, falling back to defaults for unset keys.
func Load() (Config, error) {
	cfg := Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PGHost:           getEnv("PG_HOST", "localhost"),
		PGPort:           getEnv("PG_PORT", "5432"),
		PGDatabase:       getEnv("PG_DATABASE", "memorygame"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		Notifier:      getEnv("NOTIFIER", "redis"),
		NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		NotifyChannel: getEnv("NOTIFY_CHANNEL", notify.DefaultChannel),

		HistorianQueue:     getEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName),
		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
	}

	switch cfg.Notifier {
	case "redis", "nats", "local":
	default:
		return cfg, fmt.Errorf("unknown NOTIFIER %q (want redis, nats or local)", cfg.Notifier)
	}

	expire := os.Getenv("TOKEN_EXPIRE_TIME")
	if expire != "" && expire != "never" && expire != "0" {
		d, err := time.ParseDuration(expire)
		if err != nil {
			return cfg, fmt.Errorf("failed to parse TOKEN_EXPIRE_TIME: %w", err)
		}
		cfg.TokenExpire = d
	}

	pacing := game.DefaultPacing()
	var err error
	if pacing.RevealDelay, err = getEnvDuration("REVEAL_DELAY", pacing.RevealDelay); err != nil {
		return cfg, err
	}
	if pacing.WinDelay, err = getEnvDuration("WIN_DELAY", pacing.WinDelay); err != nil {
		return cfg, err
	}
	if pacing.TickInterval, err = getEnvDuration("TICK_INTERVAL", pacing.TickInterval); err != nil {
		return cfg, err
	}
	if pacing.TickInterval <= 0 {
		return cfg, fmt.Errorf("TICK_INTERVAL must be positive")
	}
	cfg.Pacing = pacing

	if cfg.GameIdleTimeout, err = getEnvDuration("GAME_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.GameIdleTimeout <= 0 {
		return cfg, fmt.Errorf("GAME_IDLE_TIMEOUT must be positive")
	}

	return cfg, nil
}

// PostgresURL builds the pgx connection string. Credentials are escaped.
func (c Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   net.JoinHostPort(c.PGHost, c.PGPort),
		Path:   "/" + c.PGDatabase,
	}
	return u.String()
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}
