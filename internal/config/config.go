// Package config provides configuration loading and management for the venue.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// HTTP server port
	Port string

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// API keys for the external enrichment providers, keyed by provider
	// name (crunchbase, pitchbook, newsapi, alphavantage)
	APIKeys map[string]string

	// Enrichment cache/refresh tuning
	RequestTimeout time.Duration
	CacheTTL       time.Duration
	RefreshWindow  time.Duration
	FailureBackoff time.Duration

	// AdvanceInterval is how often the server tries to advance the oracle
	// state; finer than the oracle step so catch-up is prompt
	AdvanceInterval time.Duration

	// RateLimit is the per-second request budget for the HTTP API
	RateLimit float64
	RateBurst int

	// Pool tuning overrides, all optional
	PoolMinLiquidityEth     float64
	PoolInitialLiquidityEth float64

	// SigningKeyHex is the venue signing key; empty means an ephemeral
	// key is generated at startup
	SigningKeyHex string

	// Snapshot export webhook
	ExportEnabled   bool
	ExportURL       string
	ExportAPIKey    string
	ExportBatchSize int
	ExportInterval  time.Duration
}

// Load creates a new Config from environment variables.
func Load() Config {
	apiKeys := map[string]string{}
	if raw := os.Getenv("API_KEYS"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &apiKeys)
	}
	// Per-provider variables override the JSON blob.
	for env, name := range map[string]string{
		"CRUNCHBASE_API_KEY":    "crunchbase",
		"PITCHBOOK_API_KEY":     "pitchbook",
		"NEWSAPI_API_KEY":       "newsapi",
		"ALPHA_VANTAGE_API_KEY": "alphavantage",
	} {
		if value, exists := GetEnv(env); exists {
			apiKeys[name] = value
		}
	}

	return Config{
		Port:                    GetEnvOrDefault("PORT", "8080"),
		OtelEndpoint:            GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		APIKeys:                 apiKeys,
		RequestTimeout:          GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		CacheTTL:                GetEnvAsDuration("METRICS_CACHE_TTL", 12*time.Hour),
		RefreshWindow:           GetEnvAsDuration("METRICS_REFRESH_WINDOW", time.Hour),
		FailureBackoff:          GetEnvAsDuration("METRICS_FAILURE_BACKOFF", 10*time.Minute),
		AdvanceInterval:         GetEnvAsDuration("ADVANCE_INTERVAL", time.Minute),
		RateLimit:               GetEnvAsFloat("RATE_LIMIT", 20),
		RateBurst:               GetEnvAsInt("RATE_BURST", 40),
		PoolMinLiquidityEth:     GetEnvAsFloat("POOL_MIN_LIQUIDITY_ETH", 0),
		PoolInitialLiquidityEth: GetEnvAsFloat("POOL_INITIAL_LIQUIDITY_ETH", 0),
		SigningKeyHex:           GetEnvOrDefault("SIGNING_KEY_HEX", ""),
		ExportEnabled:           GetEnvAsBool("EXPORT_ENABLED", false),
		ExportURL:               GetEnvOrDefault("EXPORT_WEBHOOK_URL", ""),
		ExportAPIKey:            GetEnvOrDefault("EXPORT_WEBHOOK_API_KEY", ""),
		ExportBatchSize:         GetEnvAsInt("EXPORT_BATCH_SIZE", 50),
		ExportInterval:          GetEnvAsDuration("EXPORT_INTERVAL", time.Minute),
	}
}

// GetEnv retrieves an environment variable and whether it exists.
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set.
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value.
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value.
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value.
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
