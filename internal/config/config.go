// Package config loads the server configuration from environment
// variables. Every knob has a default that works for a local, loopback
// deployment; validation catches the values that would only fail later
// at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Config struct {
	Host        string // TANDEM_HOST
	Port        int    // TANDEM_PORT
	Environment string // TANDEM_ENV: development | production
	LogLevel    string // TANDEM_LOG_LEVEL: debug | info | warn | error
	LogDir      string // TANDEM_LOG_DIR; empty = stderr only

	// AuthToken is the static bearer token. Empty means the server
	// generates one at startup and prints it once. JWKSURL switches
	// verification to a remote identity provider instead.
	AuthToken string // TANDEM_AUTH_TOKEN
	JWKSURL   string // TANDEM_JWKS_URL

	CORSOrigins string // TANDEM_CORS_ORIGINS, comma-separated

	// DatabaseURL selects the durable store. Empty runs on the
	// in-memory stores.
	DatabaseURL string // TANDEM_DATABASE_URL
	TablePrefix string // TANDEM_TABLE_PREFIX

	// Event fan-out tuning.
	RingSize       int // TANDEM_RING_SIZE, replay events retained per agent
	QueueCapacity  int // TANDEM_QUEUE_CAP, SSE subscriber queue
	EvictThreshold int // TANDEM_EVICT_THRESHOLD, consecutive drops before eviction

	Heartbeat      time.Duration // TANDEM_HEARTBEAT, SSE ping interval
	ConfirmTimeout time.Duration // TANDEM_CONFIRM_TIMEOUT, approval prompt expiry

	MaxConns     int   // TANDEM_MAX_CONNS, concurrent non-SSE requests
	MaxBodyBytes int64 // TANDEM_MAX_BODY_BYTES, RPC request body cap

	// IdleTimeout shuts the server down after this much inactivity with
	// no live subscribers. Zero disables idle shutdown.
	IdleTimeout   time.Duration // TANDEM_IDLE_TIMEOUT
	ShutdownGrace time.Duration // TANDEM_SHUTDOWN_GRACE

	DefaultEngine string // TANDEM_DEFAULT_ENGINE
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Host:        getEnv("TANDEM_HOST", "127.0.0.1"),
		Port:        getEnvInt("TANDEM_PORT", 8377),
		Environment: getEnv("TANDEM_ENV", "development"),
		LogLevel:    getEnv("TANDEM_LOG_LEVEL", "info"),
		LogDir:      getEnv("TANDEM_LOG_DIR", ""),

		AuthToken: getEnv("TANDEM_AUTH_TOKEN", ""),
		JWKSURL:   getEnv("TANDEM_JWKS_URL", ""),

		CORSOrigins: getEnv("TANDEM_CORS_ORIGINS", "*"),

		DatabaseURL: getEnv("TANDEM_DATABASE_URL", ""),
		TablePrefix: getEnv("TANDEM_TABLE_PREFIX", "tandem_"),

		RingSize:       getEnvInt("TANDEM_RING_SIZE", 100),
		QueueCapacity:  getEnvInt("TANDEM_QUEUE_CAP", 100),
		EvictThreshold: getEnvInt("TANDEM_EVICT_THRESHOLD", 10),

		Heartbeat:      getEnvDuration("TANDEM_HEARTBEAT", 15*time.Second),
		ConfirmTimeout: getEnvDuration("TANDEM_CONFIRM_TIMEOUT", 120*time.Second),

		MaxConns:     getEnvInt("TANDEM_MAX_CONNS", 64),
		MaxBodyBytes: int64(getEnvInt("TANDEM_MAX_BODY_BYTES", 1<<20)),

		IdleTimeout:   getEnvDuration("TANDEM_IDLE_TIMEOUT", 0),
		ShutdownGrace: getEnvDuration("TANDEM_SHUTDOWN_GRACE", 10*time.Second),

		DefaultEngine: getEnv("TANDEM_DEFAULT_ENGINE", "lorem"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside the
// server, with no hint of which variable caused it.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Environment, validation.Required, validation.In("development", "production")),
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.RingSize, validation.Min(1)),
		validation.Field(&c.QueueCapacity, validation.Min(1)),
		validation.Field(&c.EvictThreshold, validation.Min(1)),
		validation.Field(&c.Heartbeat, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ConfirmTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxConns, validation.Min(1)),
		validation.Field(&c.MaxBodyBytes, validation.Min(int64(1024))),
		validation.Field(&c.DefaultEngine, validation.Required),
	)
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go duration syntax ("15s", "2m") or a bare
// number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
