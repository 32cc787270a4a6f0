// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides settings for Redis (locks, view cache, job queue).
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the background job worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetRunRetention() time.Duration
	GetRunCleanupInterval() time.Duration
}

// CRMConfig provides settings for the CRM client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAccessToken() string
}

// OrdersConfig provides settings for the order-system client.
type OrdersConfig interface {
	GetOrdersBaseURL() string
	GetOrdersAccessToken() string
}

// FreightConfig provides settings for the freight-rate client.
type FreightConfig interface {
	GetFreightBaseURL() string
	GetFreightAPIKey() string
}

// CopywriterConfig provides settings for the text-generation client.
type CopywriterConfig interface {
	GetGenAIAPIKey() string
	GetCopywriterModel() string
}

// StorageConfig provides settings for MinIO S3-compatible storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetSchematicBucket() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Config implementation
// =============================================================================

// Config holds all application settings, loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	JWTAccessSecret string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	RedisURL         string
	RedisTLSInsecure bool

	AsynqQueueName     string
	AsynqConcurrency   int
	RunRetention       time.Duration
	RunCleanupInterval time.Duration

	CRMBaseURL     string
	CRMAccessToken string

	OrdersBaseURL     string
	OrdersAccessToken string

	FreightBaseURL string
	FreightAPIKey  string

	GenAIAPIKey     string
	CopywriterModel string

	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOUseSSL     bool
	SchematicBucket string
}

// Load reads configuration from the environment, optionally seeded by a .env
// file in development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTAccessSecret: os.Getenv("JWT_ACCESS_SECRET"),

		CORSAllowAll:   getEnvBool("CORS_ALLOW_ALL", false),
		CORSOrigins:    splitAndTrim(os.Getenv("CORS_ORIGINS")),
		CORSAllowCreds: getEnvBool("CORS_ALLOW_CREDENTIALS", true),

		RedisURL:         os.Getenv("REDIS_URL"),
		RedisTLSInsecure: getEnvBool("REDIS_TLS_INSECURE", false),

		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:   getEnvInt("ASYNQ_CONCURRENCY", 10),
		RunRetention:       getEnvDuration("SAGA_RUN_RETENTION", 30*24*time.Hour),
		RunCleanupInterval: getEnvDuration("SAGA_RUN_CLEANUP_INTERVAL", time.Hour),

		CRMBaseURL:     getEnv("CRM_BASE_URL", "https://api.hubapi.com"),
		CRMAccessToken: os.Getenv("CRM_ACCESS_TOKEN"),

		OrdersBaseURL:     os.Getenv("ORDERS_BASE_URL"),
		OrdersAccessToken: os.Getenv("ORDERS_ACCESS_TOKEN"),

		FreightBaseURL: getEnv("FREIGHT_BASE_URL", "https://api.freightview.com"),
		FreightAPIKey:  os.Getenv("FREIGHT_API_KEY"),

		GenAIAPIKey:     os.Getenv("GENAI_API_KEY"),
		CopywriterModel: getEnv("COPYWRITER_MODEL", "gemini-2.0-flash"),

		MinIOEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		SchematicBucket: getEnv("MINIO_BUCKET_SCHEMATICS", "schematic-assets"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" && !strings.EqualFold(cfg.Env, "development") {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required outside development")
	}

	return cfg, nil
}

// Interface implementations.

func (c *Config) GetDatabaseURL() string    { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string       { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool     { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string  { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool   { return c.CORSAllowCreds }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

func (c *Config) GetAsynqQueueName() string          { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int           { return c.AsynqConcurrency }
func (c *Config) GetRunRetention() time.Duration     { return c.RunRetention }
func (c *Config) GetRunCleanupInterval() time.Duration { return c.RunCleanupInterval }

func (c *Config) GetCRMBaseURL() string     { return c.CRMBaseURL }
func (c *Config) GetCRMAccessToken() string { return c.CRMAccessToken }

func (c *Config) GetOrdersBaseURL() string     { return c.OrdersBaseURL }
func (c *Config) GetOrdersAccessToken() string { return c.OrdersAccessToken }

func (c *Config) GetFreightBaseURL() string { return c.FreightBaseURL }
func (c *Config) GetFreightAPIKey() string  { return c.FreightAPIKey }

func (c *Config) GetGenAIAPIKey() string     { return c.GenAIAPIKey }
func (c *Config) GetCopywriterModel() string { return c.CopywriterModel }

func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetSchematicBucket() string { return c.SchematicBucket }
func (c *Config) IsMinIOEnabled() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

// Helpers.

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitAndTrim(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
