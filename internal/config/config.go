package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Gateway  GatewayConfig
	Session  SessionConfig
	Redis    RedisConfig
	Tables   TableConfig
	Limits   LimitConfig
	Approval ApprovalConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string // debug, info, warn, error
}

// GatewayConfig authenticates the telco gateway in front of the USSD callback.
type GatewayConfig struct {
	SharedSecret string   // value expected in the X-Gateway-Secret header
	AllowedIPs   []string // optional source-IP allow-list; empty disables the check
	AdminToken   string   // bearer token for the admin approve/reject routes
}

// SessionConfig controls session lifetime and navigation limits.
type SessionConfig struct {
	Timeout        time.Duration // sliding window refreshed on every turn
	MaxFailedTries int           // unmatched inputs before the session errors out
	TurnLockTTL    time.Duration // upper bound on how long one turn may hold the lock
}

// RedisConfig holds the session store connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TableConfig names the DynamoDB tables and the approval queue.
type TableConfig struct {
	Transactions    string
	TurnIdempotency string
	ApprovalQueue   string // SQS queue URL
	TTLWindow       time.Duration
}

// LimitConfig holds amount caps. All amounts are in minor units (pesewas).
type LimitConfig struct {
	Currency          string
	MinAmount         int64
	MaxAmount         int64
	DailyCap          int64
	MonthlyCap        int64
	ComplianceFailOpen bool // allow transactions when the compliance check itself fails
}

// ApprovalConfig controls the human-review branch.
type ApprovalConfig struct {
	Threshold int64 // transfer-class amounts above this need approval, minor units
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", "15s"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Gateway: GatewayConfig{
			SharedSecret: os.Getenv("GATEWAY_SHARED_SECRET"),
			AllowedIPs:   splitNonEmpty(os.Getenv("GATEWAY_ALLOWED_IPS")),
			AdminToken:   os.Getenv("ADMIN_TOKEN"),
		},
		Session: SessionConfig{
			Timeout:        getEnvAsDuration("SESSION_TIMEOUT", "180s"),
			MaxFailedTries: getEnvAsInt("SESSION_MAX_FAILED_TRIES", 3),
			TurnLockTTL:    getEnvAsDuration("SESSION_TURN_LOCK_TTL", "30s"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Tables: TableConfig{
			Transactions:    getEnv("TRANSACTIONS_TABLE", "sikaflow-transactions"),
			TurnIdempotency: getEnv("TURN_IDEMPOTENCY_TABLE", "sikaflow-turns"),
			ApprovalQueue:   os.Getenv("APPROVAL_QUEUE_URL"),
			TTLWindow:       getEnvAsDuration("IDEMPOTENCY_TTL", "48h"),
		},
		Limits: LimitConfig{
			Currency:           getEnv("CURRENCY", "GHS"),
			MinAmount:          getEnvAsInt64("MIN_AMOUNT_MINOR", 100),         // GHS 1.00
			MaxAmount:          getEnvAsInt64("MAX_AMOUNT_MINOR", 500000),      // GHS 5,000.00
			DailyCap:           getEnvAsInt64("DAILY_CAP_MINOR", 2000000),      // GHS 20,000.00
			MonthlyCap:         getEnvAsInt64("MONTHLY_CAP_MINOR", 20000000),   // GHS 200,000.00
			ComplianceFailOpen: getEnvAsBool("COMPLIANCE_FAIL_OPEN", false),
		},
		Approval: ApprovalConfig{
			Threshold: getEnvAsInt64("APPROVAL_THRESHOLD_MINOR", 100000), // GHS 1,000.00
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants between settings.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}
	if c.Session.MaxFailedTries < 1 {
		return fmt.Errorf("max failed tries must be at least 1, got %d", c.Session.MaxFailedTries)
	}

	if c.Limits.MinAmount < 0 || c.Limits.MaxAmount <= 0 {
		return fmt.Errorf("amount bounds must be positive")
	}
	if c.Limits.MaxAmount < c.Limits.MinAmount {
		return fmt.Errorf("max amount (%d) must be >= min amount (%d)", c.Limits.MaxAmount, c.Limits.MinAmount)
	}
	if c.Limits.DailyCap <= 0 || c.Limits.MonthlyCap <= 0 {
		return fmt.Errorf("spend caps must be positive")
	}
	if c.Limits.MonthlyCap < c.Limits.DailyCap {
		return fmt.Errorf("monthly cap (%d) must be >= daily cap (%d)", c.Limits.MonthlyCap, c.Limits.DailyCap)
	}

	if c.Approval.Threshold <= 0 {
		return fmt.Errorf("approval threshold must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, err = time.ParseDuration(defaultValue)
		if err != nil {
			return 0
		}
	}
	return duration
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
