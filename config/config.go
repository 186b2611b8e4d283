package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings for the postulaciones tooling.
type Config struct {
	DatabaseURL   string
	LogLevel      string
	DBMaxConns    int32
	DBMinConns    int32
	DBMaxConnIdle time.Duration
	TxMaxElapsed  time.Duration
	RedisURL      string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	NotifyTimeout time.Duration
	JWTSecret     string
	SiteURL       string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Config{
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		DBMaxConns:    int32(intOr("DB_MAX_CONNS", 10)),
		DBMinConns:    int32(intOr("DB_MIN_CONNS", 1)),
		DBMaxConnIdle: durationOr("DB_MAX_CONN_IDLE", 5*time.Minute),
		TxMaxElapsed:  durationOr("TX_MAX_ELAPSED", 5*time.Second),
		RedisURL:      os.Getenv("REDIS_URL"),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      intOr("SMTP_PORT", 587),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:      envOr("SMTP_FROM", "no-reply@localhost"),
		NotifyTimeout: durationOr("NOTIFY_TIMEOUT", 10*time.Second),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SiteURL:       strings.TrimRight(envOr("SITE_URL", "http://localhost:3000"), "/"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("config: DATABASE_URL is required")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("config: DB_MAX_CONNS must be positive, got %d", cfg.DBMaxConns)
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		cfg.DBMinConns = 0
	}

	return cfg, nil
}

// SMTPEnabled reports whether outbound email is configured.
func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
