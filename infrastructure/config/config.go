package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// PolicyDefaults holds the default GetPolicy parameters applied when a
// caller does not override them, validated against the same bounds the
// domain/policy package enforces at construction time.
type PolicyDefaults struct {
	HardSec          int `validate:"required,min=1"`
	SoftSec          int `validate:"min=0"`
	Tier4PauseMs     int `validate:"min=1"`
	Tier4MaxAttempts int `validate:"min=1"`
	LockTTLSec       int `validate:"required,min=1,max=300"`
	JitterPercent    int `validate:"min=0,max=100"`
}

// Config holds all process configuration for a cache worker or embedding
// host application.
type Config struct {
	// Environment selects dev/staging/production behavior.
	Environment string `validate:"required,oneof=development staging production"`

	// AWS/store configuration.
	AWSRegion     string `validate:"required"`
	DynamoDBTable string `validate:"required"`
	EventBusName  string

	// EventBusMode selects "eventbridge" or "workerpool" for the EventBus
	// implementation wired at startup.
	EventBusMode string `validate:"required,oneof=eventbridge workerpool"`

	// WorkerPoolQueueDepth/Workers configure the in-process EventBus when
	// EventBusMode is "workerpool".
	WorkerPoolQueueDepth int `validate:"min=1"`
	WorkerPoolWorkers    int `validate:"min=1"`

	// Logging.
	LogLevel string `validate:"required,oneof=debug info warn error"`

	// Feature flags.
	EnableMetrics       bool
	EnableTracing       bool
	EnableCircuitBreaker bool

	// Policy defaults applied by engines that don't specify their own.
	Policy PolicyDefaults
}

var validate = validator.New()

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("CACHE_TABLE_NAME", getEnv("DYNAMODB_TABLE", "cachecore")),
		EventBusName:  getEnv("EVENT_BUS_NAME", "cachecore-events"),
		EventBusMode:  getEnv("EVENT_BUS_MODE", "workerpool"),

		WorkerPoolQueueDepth: getEnvInt("WORKERPOOL_QUEUE_DEPTH", 256),
		WorkerPoolWorkers:    getEnvInt("WORKERPOOL_WORKERS", 4),

		LogLevel:             getEnv("LOG_LEVEL", "info"),
		EnableMetrics:        getEnvBool("ENABLE_METRICS", true),
		EnableTracing:        getEnvBool("ENABLE_TRACING", false),
		EnableCircuitBreaker: getEnvBool("ENABLE_CIRCUIT_BREAKER", true),

		Policy: PolicyDefaults{
			HardSec:          getEnvInt("CACHE_HARD_TTL_SEC", 300),
			SoftSec:          getEnvInt("CACHE_SOFT_TTL_SEC", 240),
			Tier4PauseMs:     getEnvInt("CACHE_TIER4_PAUSE_MS", 150),
			Tier4MaxAttempts: getEnvInt("CACHE_TIER4_MAX_ATTEMPTS", 6),
			LockTTLSec:       getEnvInt("CACHE_LOCK_TTL_SEC", 30),
			JitterPercent:    getEnvInt("CACHE_JITTER_PERCENT", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig.
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks struct tags via go-playground/validator and a few
// cross-field rules the tag language can't express on its own.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Policy.SoftSec > c.Policy.HardSec {
		return fmt.Errorf("CACHE_SOFT_TTL_SEC (%d) must not exceed CACHE_HARD_TTL_SEC (%d)", c.Policy.SoftSec, c.Policy.HardSec)
	}
	if c.Environment == "production" && c.DynamoDBTable == "" {
		return fmt.Errorf("CACHE_TABLE_NAME is required in production")
	}
	return nil
}

// IsDevelopment reports whether Environment is "development".
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether Environment is "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
