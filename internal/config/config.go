package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Platform PlatformConfig
	Provider ProviderConfig
	Cache    CacheConfig
	Queue    QueueConfig
	Ops      OpsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// PlatformConfig describes the downstream conversation platform API.
type PlatformConfig struct {
	BaseURL                  string
	AccountID                int
	InboxID                  int
	AccessToken              string
	RequestTimeoutSeconds    int
	MaxAttempts              int
	BackoffBaseSeconds       int
	RateLimitCooldownSeconds int
}

// ProviderConfig describes the outbound messaging provider API.
type ProviderConfig struct {
	BaseURL               string
	APIKey                string
	SessionName           string
	RequestTimeoutSeconds int
}

// CacheConfig controls identity cache behavior.
type CacheConfig struct {
	Namespace string
	TTLDays   int
}

// QueueConfig controls delivery queue behavior.
type QueueConfig struct {
	Namespace           string
	MessageConcurrency  int
	StatusConcurrency   int
	OutboundConcurrency int
	MaxAttempts         int
	BackoffBaseSeconds  int
	StatusDelaySeconds  int
	RetentionSize       int
	PollIntervalMillis  int
	DrainTimeoutSeconds int
	VisibilitySeconds   int
}

// OpsConfig guards webhook intake and the operational endpoints.
type OpsConfig struct {
	JWTSecret          string
	TokenTTLMinutes    int
	WebhookSharedToken string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	accountID, err := strconv.Atoi(getEnv("PLATFORM_ACCOUNT_ID", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_ACCOUNT_ID: %w", err)
	}
	inboxID, err := strconv.Atoi(getEnv("PLATFORM_INBOX_ID", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_INBOX_ID: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "chat-relay"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Platform: PlatformConfig{
			BaseURL:                  getEnv("PLATFORM_BASE_URL", "http://127.0.0.1:3000"),
			AccountID:                accountID,
			InboxID:                  inboxID,
			AccessToken:              os.Getenv("PLATFORM_ACCESS_TOKEN"),
			RequestTimeoutSeconds:    getEnvAsInt("PLATFORM_REQUEST_TIMEOUT_SECONDS", 15),
			MaxAttempts:              getEnvAsInt("PLATFORM_MAX_ATTEMPTS", 3),
			BackoffBaseSeconds:       getEnvAsInt("PLATFORM_BACKOFF_BASE_SECONDS", 1),
			RateLimitCooldownSeconds: getEnvAsInt("PLATFORM_RATE_LIMIT_COOLDOWN_SECONDS", 5),
		},
		Provider: ProviderConfig{
			BaseURL:               getEnv("PROVIDER_BASE_URL", "http://127.0.0.1:3001"),
			APIKey:                os.Getenv("PROVIDER_API_KEY"),
			SessionName:           getEnv("PROVIDER_SESSION", "default"),
			RequestTimeoutSeconds: getEnvAsInt("PROVIDER_REQUEST_TIMEOUT_SECONDS", 15),
		},
		Cache: CacheConfig{
			Namespace: getEnv("IDENTITY_CACHE_NAMESPACE", "identity"),
			TTLDays:   getEnvAsInt("IDENTITY_CACHE_TTL_DAYS", 7),
		},
		Queue: QueueConfig{
			Namespace:           getEnv("QUEUE_NAMESPACE", "relay"),
			MessageConcurrency:  getEnvAsInt("QUEUE_MESSAGE_CONCURRENCY", 8),
			StatusConcurrency:   getEnvAsInt("QUEUE_STATUS_CONCURRENCY", 2),
			OutboundConcurrency: getEnvAsInt("QUEUE_OUTBOUND_CONCURRENCY", 4),
			MaxAttempts:         getEnvAsInt("QUEUE_MAX_ATTEMPTS", 3),
			BackoffBaseSeconds:  getEnvAsInt("QUEUE_BACKOFF_BASE_SECONDS", 2),
			StatusDelaySeconds:  getEnvAsInt("QUEUE_STATUS_DELAY_SECONDS", 5),
			RetentionSize:       getEnvAsInt("QUEUE_RETENTION_SIZE", 200),
			PollIntervalMillis:  getEnvAsInt("QUEUE_POLL_INTERVAL_MS", 250),
			DrainTimeoutSeconds: getEnvAsInt("QUEUE_DRAIN_TIMEOUT_SECONDS", 20),
			VisibilitySeconds:   getEnvAsInt("QUEUE_VISIBILITY_TIMEOUT_SECONDS", 60),
		},
		Ops: OpsConfig{
			JWTSecret:          getEnv("OPS_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes:    getEnvAsInt("OPS_TOKEN_TTL_MINUTES", 60),
			WebhookSharedToken: os.Getenv("WEBHOOK_SHARED_TOKEN"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TTL returns the identity cache expiry duration.
func (c CacheConfig) TTL() time.Duration {
	days := c.TTLDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// RequestTimeout returns the platform HTTP timeout.
func (p PlatformConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// BackoffBase returns the platform retry backoff base.
func (p PlatformConfig) BackoffBase() time.Duration {
	return time.Duration(p.BackoffBaseSeconds) * time.Second
}

// RateLimitCooldown returns the pause applied after an HTTP 429.
func (p PlatformConfig) RateLimitCooldown() time.Duration {
	return time.Duration(p.RateLimitCooldownSeconds) * time.Second
}

// BackoffBase returns the queue retry backoff base.
func (q QueueConfig) BackoffBase() time.Duration {
	return time.Duration(q.BackoffBaseSeconds) * time.Second
}

// StatusDelay returns the fixed delay applied to status jobs.
func (q QueueConfig) StatusDelay() time.Duration {
	return time.Duration(q.StatusDelaySeconds) * time.Second
}

// PollInterval returns how often idle workers poll for work.
func (q QueueConfig) PollInterval() time.Duration {
	if q.PollIntervalMillis <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(q.PollIntervalMillis) * time.Millisecond
}

// DrainTimeout returns the shutdown grace period for in-flight jobs.
func (q QueueConfig) DrainTimeout() time.Duration {
	return time.Duration(q.DrainTimeoutSeconds) * time.Second
}

// VisibilityTimeout returns how long a claimed job may stay unfinished before
// the reaper returns it to its ready set.
func (q QueueConfig) VisibilityTimeout() time.Duration {
	if q.VisibilitySeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(q.VisibilitySeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
