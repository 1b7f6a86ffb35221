// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Policy        PolicyConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

// RedisConfig holds the optional permission cache backend settings.
type RedisConfig struct {
	Addr     string
	Password string
	CacheTTL time.Duration
}

// PolicyConfig holds the operation policy file settings.
type PolicyConfig struct {
	// File is an optional YAML file overriding the built-in operation
	// policy table. When set, the file is watched and hot-reloaded.
	File string

	// DefaultRole, when non-empty, is assigned to newly created users.
	DefaultRole string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	// SessionPurgeSchedule is a cron expression for the expired-session
	// purge job. Empty disables the job.
	SessionPurgeSchedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
			Port:            getEnv("GATEHOUSE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("GATEHOUSE_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("GATEHOUSE_POSTGRES_URL", ""),
			MaxConns:    getEnvInt("GATEHOUSE_DB_MAX_CONNS", 25),
			MinConns:    getEnvInt("GATEHOUSE_DB_MIN_CONNS", 5),
			MaxLifetime: getEnvDuration("GATEHOUSE_DB_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("GATEHOUSE_DB_MAX_IDLE_TIME", 5*time.Minute),
			PingTimeout: getEnvDuration("GATEHOUSE_DB_PING_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("GATEHOUSE_REDIS_ADDR", ""),
			Password: getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
			CacheTTL: getEnvDuration("GATEHOUSE_PERMISSION_CACHE_TTL", 5*time.Minute),
		},
		Policy: PolicyConfig{
			File:        getEnv("GATEHOUSE_POLICY_FILE", ""),
			DefaultRole: getEnv("GATEHOUSE_DEFAULT_ROLE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:             observability.ParseLogLevel(getEnv("GATEHOUSE_LOG_LEVEL", "info")),
			MetricsEnabled:       getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
			SessionPurgeSchedule: getEnv("GATEHOUSE_SESSION_PURGE_SCHEDULE", "*/15 * * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("GATEHOUSE_POSTGRES_URL is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("GATEHOUSE_DB_MAX_CONNS must be at least 1")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("GATEHOUSE_DB_MIN_CONNS cannot exceed GATEHOUSE_DB_MAX_CONNS")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("GATEHOUSE_PORT and GATEHOUSE_HEALTH_PORT must differ")
	}
	if c.Policy.File != "" {
		if _, err := os.Stat(c.Policy.File); err != nil {
			return fmt.Errorf("policy file %s not readable: %w", c.Policy.File, err)
		}
	}
	return nil
}

// getEnv returns an environment variable or a default value
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns an integer environment variable or a default value
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// getEnvBool returns a boolean environment variable or a default value
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// getEnvDuration returns a duration environment variable or a default value
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
