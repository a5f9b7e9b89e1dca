package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"logMirrorBot/internal/adapters/logger" // Import the logger package for LogLevel
	"logMirrorBot/internal/app"
)

// Actuator modes.
const (
	ActuatorDryRun = "dryrun"
	ActuatorMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	// Log source (JoinQuant)
	BaseURL      string
	Cookies      string
	QueryID      string
	FetchTimeout time.Duration

	// Polling
	PollInterval         time.Duration
	RetryInterval        time.Duration // next poll delay after a failed fetch
	SessionCheckInterval time.Duration // 0 disables the session health loop

	// Trading window
	Location       *time.Location
	Sessions       []app.Session
	BoundaryMargin time.Duration

	// Extraction
	InstrumentCodeLength int

	// Execution
	ActuatorMode        string
	MinSignalDelay      time.Duration
	BoundarySettleDelay time.Duration
	ConfirmWindow       time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string

	// Observability
	MetricsAddr    string // empty disables the /metrics server
	TracingEnabled bool
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Log source
	cfg.BaseURL = getEnv("JQ_BASE_URL", "https://www.joinquant.com")
	cfg.Cookies = getEnv("JQ_COOKIES", "")
	if cfg.Cookies == "" {
		errs = append(errs, "JQ_COOKIES must be set")
	}
	cfg.QueryID = getEnv("JQ_QUERY_ID", "")
	if cfg.QueryID == "" {
		errs = append(errs, "JQ_QUERY_ID must be set")
	}

	fetchTimeoutSeconds, err := getEnvAsIntRequired("FETCH_TIMEOUT_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FETCH_TIMEOUT_SECONDS: %v", err))
	} else if fetchTimeoutSeconds <= 0 {
		errs = append(errs, "FETCH_TIMEOUT_SECONDS must be positive")
	}
	cfg.FetchTimeout = time.Duration(fetchTimeoutSeconds) * time.Second

	// Polling
	pollSeconds, err := getEnvAsIntRequired("POLL_INTERVAL_SECONDS", 300)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid POLL_INTERVAL_SECONDS: %v", err))
	} else if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	retrySeconds, err := getEnvAsIntRequired("RETRY_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RETRY_INTERVAL_SECONDS: %v", err))
	} else if retrySeconds <= 0 {
		errs = append(errs, "RETRY_INTERVAL_SECONDS must be positive")
	}
	cfg.RetryInterval = time.Duration(retrySeconds) * time.Second

	sessionCheckSeconds := getEnvAsInt("SESSION_CHECK_INTERVAL_SECONDS", 600)
	if sessionCheckSeconds < 0 {
		errs = append(errs, "SESSION_CHECK_INTERVAL_SECONDS cannot be negative")
	}
	cfg.SessionCheckInterval = time.Duration(sessionCheckSeconds) * time.Second

	// Trading window
	tz := getEnv("TRADING_TIMEZONE", "Asia/Shanghai")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADING_TIMEZONE %q: %v", tz, err))
	}

	cfg.Sessions, err = app.ParseSessions(getEnv("TRADING_SESSIONS", app.DefaultSessions))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADING_SESSIONS: %v", err))
	}

	marginSeconds := getEnvAsInt("BOUNDARY_MARGIN_SECONDS", 60)
	if marginSeconds < 0 {
		errs = append(errs, "BOUNDARY_MARGIN_SECONDS cannot be negative")
	}
	cfg.BoundaryMargin = time.Duration(marginSeconds) * time.Second

	// Extraction
	cfg.InstrumentCodeLength, err = getEnvAsIntRequired("INSTRUMENT_CODE_LENGTH", 6)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INSTRUMENT_CODE_LENGTH: %v", err))
	} else if cfg.InstrumentCodeLength <= 0 {
		errs = append(errs, "INSTRUMENT_CODE_LENGTH must be positive")
	}

	// Execution
	cfg.ActuatorMode = strings.ToLower(getEnv("ACTUATOR_MODE", ActuatorDryRun))
	if cfg.ActuatorMode != ActuatorDryRun && cfg.ActuatorMode != ActuatorMemory {
		errs = append(errs, fmt.Sprintf("ACTUATOR_MODE must be %q or %q", ActuatorDryRun, ActuatorMemory))
	}

	minDelayMs := getEnvAsInt("MIN_SIGNAL_DELAY_MS", 1000)
	settleDelayMs := getEnvAsInt("BOUNDARY_SETTLE_DELAY_MS", 2000)
	confirmWindowMs := getEnvAsInt("CONFIRM_WINDOW_MS", 1500)
	if minDelayMs < 0 || settleDelayMs < 0 || confirmWindowMs < 0 {
		errs = append(errs, "execution delays (MIN_SIGNAL_DELAY_MS, BOUNDARY_SETTLE_DELAY_MS, CONFIRM_WINDOW_MS) cannot be negative")
	}
	cfg.MinSignalDelay = time.Duration(minDelayMs) * time.Millisecond
	cfg.BoundarySettleDelay = time.Duration(settleDelayMs) * time.Millisecond
	cfg.ConfirmWindow = time.Duration(confirmWindowMs) * time.Millisecond

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/log_mirror.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", logger.FormatJSON))
	if cfg.LogFormat != logger.FormatJSON && cfg.LogFormat != logger.FormatConsole {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be %q or %q", logger.FormatJSON, logger.FormatConsole))
	}

	// Observability
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")
	cfg.TracingEnabled = getEnvAsBool("TRACING_ENABLED", false)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
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
