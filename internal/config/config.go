// Package config provides configuration management for stobixd.
// It handles loading configuration from environment variables (and an optional .env file)
// with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultExcludedTasks are task ids that are never claimed automatically
var DefaultExcludedTasks = []string{
	"create_dual",
	"create_futures_btc",
	"create_futures_eth",
	"create_futures_sol",
	"create_dual_100",
	"publish_video",
	"create_futures",
}

// Config holds the global configuration for stobixd
type Config struct {
	// Service identification
	ServiceName string
	Version     string

	// Remote service
	APIBaseURL    string
	AppOrigin     string
	InviteBaseURL string
	IPLookupURL   string
	ChainID       int

	// Inputs
	AccountsFile string
	ProxyFile    string
	UseProxy     bool

	// Requests
	RequestTimeout   time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMultiplier  float64

	// Scheduling
	CycleInterval time.Duration
	ExcludedTasks []string

	// Registration pacing
	RegisterMinDelay time.Duration
	RegisterMaxDelay time.Duration

	// Kafka configuration, disabled when no brokers are set
	KafkaBrokers []string
	KafkaTopic   string
	EventFormat  string

	// InfluxDB configuration, disabled when InfluxURL is empty
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Redis cycle lease, disabled when RedisURL is empty
	RedisURL string
	LeaseKey string
	LeaseTTL time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and loads configuration from environment variables
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv paths. Missing files are ignored;
// variables already present in the environment win.
func LoadFiles(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := &Config{
		// Service defaults
		ServiceName: getEnv("SERVICE_NAME", "stobixd"),
		Version:     getEnv("VERSION", "dev"),

		// Remote service defaults
		APIBaseURL:    strings.TrimRight(getEnv("API_BASE_URL", "https://api.stobix.com"), "/"),
		AppOrigin:     strings.TrimRight(getEnv("APP_ORIGIN", "https://app.stobix.com"), "/"),
		InviteBaseURL: strings.TrimRight(getEnv("INVITE_BASE_URL", "https://stobix.com/invite"), "/"),
		IPLookupURL:   getEnv("IP_LOOKUP_URL", "https://api.ipify.org?format=json"),
		ChainID:       getEnvInt("CHAIN_ID", 8453),

		// Input defaults
		AccountsFile: getEnv("ACCOUNTS_FILE", "accounts.json"),
		ProxyFile:    getEnv("PROXY_FILE", "proxy.txt"),
		UseProxy:     getEnvBool("USE_PROXY", false),

		// Request defaults
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryMultiplier:  getEnvFloat("RETRY_MULTIPLIER", 1.5),

		// Scheduling defaults
		CycleInterval: getEnvDuration("CYCLE_INTERVAL", 8*time.Hour),
		ExcludedTasks: getEnvSlice("EXCLUDED_TASKS", DefaultExcludedTasks),

		RegisterMinDelay: getEnvDuration("REGISTER_MIN_DELAY", 30*time.Second),
		RegisterMaxDelay: getEnvDuration("REGISTER_MAX_DELAY", 60*time.Second),

		// Kafka defaults
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "stobix.account_results"),
		EventFormat:  strings.ToLower(getEnv("EVENT_FORMAT", "json")),

		// InfluxDB defaults
		InfluxURL:    getEnv("INFLUX_URL", ""),
		InfluxToken:  getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:    getEnv("INFLUX_ORG", "stobix"),
		InfluxBucket: getEnv("INFLUX_BUCKET", "points"),

		// Redis defaults
		RedisURL: getEnv("REDIS_URL", ""),
		LeaseKey: getEnv("LEASE_KEY", "stobixd:cycle"),
		LeaseTTL: getEnvDuration("LEASE_TTL", time.Hour),

		// Logging defaults
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate performs basic validation of configuration values
func (c *Config) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("SERVICE_NAME cannot be empty")
	}

	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL cannot be empty")
	}

	if c.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive")
	}

	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("RETRY_BASE_DELAY cannot be negative")
	}

	if c.RetryMultiplier < 1 {
		return fmt.Errorf("RETRY_MULTIPLIER must be at least 1")
	}

	if c.CycleInterval <= 0 {
		return fmt.Errorf("CYCLE_INTERVAL must be positive")
	}

	if c.RegisterMinDelay < 0 || c.RegisterMaxDelay < c.RegisterMinDelay {
		return fmt.Errorf("REGISTER_MAX_DELAY must be at least REGISTER_MIN_DELAY")
	}

	switch c.EventFormat {
	case "json", "proto":
	default:
		return fmt.Errorf("EVENT_FORMAT must be json or proto, got %q", c.EventFormat)
	}

	if c.RedisURL != "" && c.LeaseTTL <= 0 {
		return fmt.Errorf("LEASE_TTL must be positive")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
