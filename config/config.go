package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Feed      FeedConfig
	Dashboard DashboardConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
	LogLevel           string
}

// DatabaseConfig holds the record store connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/roots?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// FeedConfig names the Redis keys the dashboard consumes.
type FeedConfig struct {
	EnrollmentQueue   string
	DeadLetterQueue   string
	PresenceKey       string
	PresenceChannel   string
	VendorKey         string
	VendorPollSeconds int
	ReplayOnStart     bool
}

// DashboardConfig tunes how the dashboard is pushed to viewers.
type DashboardConfig struct {
	DebounceMillis         int // 0 keeps the default, negative pushes every change
	RecentDays             int
	PresenceRefreshSeconds int
}

// Debounce returns DebounceMillis as a duration.
func (c DashboardConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

// PresenceRefresh returns PresenceRefreshSeconds as a duration.
func (c DashboardConfig) PresenceRefresh() time.Duration {
	return time.Duration(c.PresenceRefreshSeconds) * time.Second
}

// VendorPoll returns VendorPollSeconds as a duration.
func (c FeedConfig) VendorPoll() time.Duration {
	return time.Duration(c.VendorPollSeconds) * time.Second
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
			LogLevel:           getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "roots"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 0),
		},
		Feed: FeedConfig{
			EnrollmentQueue:   getEnv("FEED_ENROLLMENT_QUEUE", "feed:enrollments"),
			DeadLetterQueue:   getEnv("FEED_DEAD_LETTER_QUEUE", "feed:enrollments:dlq"),
			PresenceKey:       getEnv("FEED_PRESENCE_KEY", "presence:sessions"),
			PresenceChannel:   getEnv("FEED_PRESENCE_CHANNEL", "presence:updates"),
			VendorKey:         getEnv("FEED_VENDOR_KEY", "roles:vendor"),
			VendorPollSeconds: getEnvInt("FEED_VENDOR_POLL_SEC", 30),
			ReplayOnStart:     getEnvBool("FEED_REPLAY_ON_START", true),
		},
		Dashboard: DashboardConfig{
			DebounceMillis:         getEnvInt("DASHBOARD_DEBOUNCE_MS", 150),
			RecentDays:             getEnvInt("DASHBOARD_RECENT_DAYS", 7),
			PresenceRefreshSeconds: getEnvInt("DASHBOARD_PRESENCE_REFRESH_SEC", 15),
		},
	}
	if cfg.Dashboard.RecentDays <= 0 {
		return nil, fmt.Errorf("DASHBOARD_RECENT_DAYS must be positive, got %d", cfg.Dashboard.RecentDays)
	}
	return cfg, nil
}

// AllowedOrigins splits CORSAllowedOrigins.
func (c ServerConfig) AllowedOrigins() []string {
	return splitTrim(c.CORSAllowedOrigins, ",")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
