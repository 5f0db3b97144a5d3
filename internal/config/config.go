// Package config provides configuration for the optimizer service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// LLM service settings
	LLMBaseURL string
	LLMAPIKey  string
	LLMTimeout time.Duration

	// Client-side rate limit for outbound LLM calls
	LLMRequestsPerSecond int
	LLMBurst             int

	// Delay between chained autopilot actions
	PacingDelay time.Duration

	// Optional path to a rego file overriding the default automation policy
	PolicyPath string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:          getEnv("DATABASE_URL", "file:opro.db?cache=shared&mode=rwc"),
		LLMBaseURL:           getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:            getEnv("LLM_API_KEY", ""),
		LLMTimeout:           time.Duration(getEnvInt("LLM_TIMEOUT_MS", 60000)) * time.Millisecond,
		LLMRequestsPerSecond: getEnvInt("LLM_RPS", 5),
		LLMBurst:             getEnvInt("LLM_BURST", 10),
		PacingDelay:          time.Duration(getEnvInt("AUTOPILOT_PACING_MS", 1000)) * time.Millisecond,
		PolicyPath:           getEnv("AUTOMATION_POLICY_PATH", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
