package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6565, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "qwen2.5:7b", cfg.LLM.Model)
	assert.Equal(t, 120, cfg.LLM.TimeoutSeconds)
	assert.Equal(t, "development", cfg.Security.SecurityMode)
	assert.True(t, cfg.Features.SnapshotMode)
	assert.True(t, cfg.Features.AutoAssign)
	assert.True(t, cfg.Features.NotifyEnabled)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("LORELINE_PORT", "8080")
	t.Setenv("LORELINE_HOST", "0.0.0.0")
	t.Setenv("LORELINE_STORAGE_ENGINE", "postgres")
	t.Setenv("LORELINE_POSTGRES_URL", "postgres://localhost/loreline")
	t.Setenv("LORELINE_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("LORELINE_SECURITY_MODE", "production")
	t.Setenv("LORELINE_API_TOKEN", "secret")
	t.Setenv("LORELINE_SNAPSHOT_MODE", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "postgres", cfg.Storage.StorageEngine)
	assert.Equal(t, "postgres://localhost/loreline", cfg.Storage.PostgresURL)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "production", cfg.Security.SecurityMode)
	assert.Equal(t, "secret", cfg.Security.APIToken)
	assert.False(t, cfg.Features.SnapshotMode)
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("LORELINE_TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("LORELINE_TEST_INT", 7))

	t.Setenv("LORELINE_TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("LORELINE_TEST_INT", 7))

	assert.Equal(t, 7, getEnvInt("LORELINE_TEST_INT_UNSET", 7))
}

func TestGetEnvBool(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "TRUE"} {
		t.Setenv("LORELINE_TEST_BOOL", v)
		assert.True(t, getEnvBool("LORELINE_TEST_BOOL", false), "value %q", v)
	}
	for _, v := range []string{"false", "0", "no", "FALSE"} {
		t.Setenv("LORELINE_TEST_BOOL", v)
		assert.False(t, getEnvBool("LORELINE_TEST_BOOL", true), "value %q", v)
	}

	t.Setenv("LORELINE_TEST_BOOL", "maybe")
	assert.True(t, getEnvBool("LORELINE_TEST_BOOL", true))
}
