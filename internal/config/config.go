// Package config provides configuration management for Loreline.
// It loads settings from environment variables with the LORELINE_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration settings for the Loreline application.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Security SecurityConfig
	Features FeaturesConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6565)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory (default: ./data)
	PostgresURL   string // Postgres connection string (used when engine is postgres)
}

// LLMConfig contains model provider configuration. The client speaks the
// OpenAI chat-completions wire format against any compatible base URL.
type LLMConfig struct {
	BaseURL        string // API base URL (default: http://localhost:11434/v1)
	Model          string // Model name (default: qwen2.5:7b)
	APIKey         string // Bearer token, empty for local providers
	TimeoutSeconds int    // Request timeout in seconds (default: 120)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token
}

// FeaturesConfig contains feature flags.
type FeaturesConfig struct {
	SnapshotMode  bool // Global snapshot-mode default for queued tasks (default: true)
	AutoAssign    bool // Auto-assign parsed results to variables (default: true)
	NotifyEnabled bool // Write cross-process analysis-complete event files (default: true)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the LORELINE_ prefix.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("LORELINE_PORT", 6565),
			Host: getEnv("LORELINE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("LORELINE_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("LORELINE_DATA_PATH", "./data"),
			PostgresURL:   getEnv("LORELINE_POSTGRES_URL", ""),
		},
		LLM: LLMConfig{
			BaseURL:        getEnv("LORELINE_LLM_BASE_URL", "http://localhost:11434/v1"),
			Model:          getEnv("LORELINE_LLM_MODEL", "qwen2.5:7b"),
			APIKey:         getEnv("LORELINE_LLM_API_KEY", ""),
			TimeoutSeconds: getEnvInt("LORELINE_LLM_TIMEOUT", 120),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("LORELINE_SECURITY_MODE", "development"),
			APIToken:     getEnv("LORELINE_API_TOKEN", ""),
		},
		Features: FeaturesConfig{
			SnapshotMode:  getEnvBool("LORELINE_SNAPSHOT_MODE", true),
			AutoAssign:    getEnvBool("LORELINE_AUTO_ASSIGN", true),
			NotifyEnabled: getEnvBool("LORELINE_NOTIFY_ENABLED", true),
		},
	}, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no" as
// false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
