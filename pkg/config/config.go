package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Strategy sandbox
	Sandbox SandboxConfig

	// Backtest defaults
	Backtest BacktestConfig

	// Maintenance scheduler
	Scheduler SchedulerConfig

	// API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// SandboxConfig bounds every strategy load and invocation.
type SandboxConfig struct {
	LoadTimeout   time.Duration // compile + instantiate budget
	InvokeTimeout time.Duration // per strategy method call
	MaxSignals    int           // cap on codes/signals a call may return
	AuditBuffer   int           // in-memory audit ring size
}

// BacktestConfig holds simulation defaults; each run may override them.
type BacktestConfig struct {
	InitialCapital float64
	Commission     float64 // e.g. 0.0003 for 0.03%
	StampDuty      float64 // sell side only
	Slippage       float64
	MaxConcurrent  int // parallel grid workers
}

// SchedulerConfig holds maintenance job settings.
type SchedulerConfig struct {
	Enabled            bool
	RevalidateSpec     string // cron spec for pending-strategy revalidation
	RetentionSpec      string // cron spec for audit retention sweep
	AuditRetentionDays int
}

// APIConfig holds HTTP-layer settings.
type APIConfig struct {
	RateLimitPerSec float64 // backtest submission rate limit
	RateLimitBurst  int
	CacheTTL        time.Duration // redis response cache TTL
}

// Load reads configuration from environment variables. Only this function
// calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8086"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// Sandbox
		Sandbox: SandboxConfig{
			LoadTimeout:   getEnvAsDuration("SANDBOX_LOAD_TIMEOUT", "5s"),
			InvokeTimeout: getEnvAsDuration("SANDBOX_INVOKE_TIMEOUT", "2s"),
			MaxSignals:    getEnvAsInt("SANDBOX_MAX_SIGNALS", 1000),
			AuditBuffer:   getEnvAsInt("SANDBOX_AUDIT_BUFFER", 10000),
		},

		// Backtest
		Backtest: BacktestConfig{
			InitialCapital: getEnvAsFloat("BACKTEST_INITIAL_CAPITAL", 1_000_000),
			Commission:     getEnvAsFloat("BACKTEST_COMMISSION", 0.0003),
			StampDuty:      getEnvAsFloat("BACKTEST_STAMP_DUTY", 0.0005),
			Slippage:       getEnvAsFloat("BACKTEST_SLIPPAGE", 0.001),
			MaxConcurrent:  getEnvAsInt("BACKTEST_MAX_CONCURRENT", 4),
		},

		// Scheduler
		Scheduler: SchedulerConfig{
			Enabled:            getEnvAsBool("SCHEDULER_ENABLED", true),
			RevalidateSpec:     getEnv("SCHEDULER_REVALIDATE_SPEC", "0 */10 * * * *"),
			RetentionSpec:      getEnv("SCHEDULER_RETENTION_SPEC", "0 0 3 * * *"),
			AuditRetentionDays: getEnvAsInt("SCHEDULER_AUDIT_RETENTION_DAYS", 90),
		},

		// API
		API: APIConfig{
			RateLimitPerSec: getEnvAsFloat("API_RATE_LIMIT_PER_SEC", 2),
			RateLimitBurst:  getEnvAsInt("API_RATE_LIMIT_BURST", 5),
			CacheTTL:        getEnvAsDuration("API_CACHE_TTL", "1m"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Sandbox.InvokeTimeout <= 0 {
		return fmt.Errorf("SANDBOX_INVOKE_TIMEOUT must be positive")
	}

	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("BACKTEST_INITIAL_CAPITAL must be positive")
	}

	return nil
}

// RequireDatabase fails when no DATABASE_URL is configured. Commands that
// run purely in-memory do not call this.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
