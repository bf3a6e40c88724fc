package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"SONATE_LOG_LEVEL", "SONATE_DATABASE_URL", "SONATE_SQLITE_PATH",
		"SONATE_KEY_ENDPOINT", "SONATE_KEY_VERSION", "SONATE_SIGNING_SEED",
		"SONATE_OTLP_ENDPOINT", "SONATE_POLICY_FILE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "sonate.db", cfg.SQLitePath)
	assert.Equal(t, "v1", cfg.KeyVersion)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.SigningSeed)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SONATE_LOG_LEVEL", "DEBUG")
	t.Setenv("SONATE_DATABASE_URL", "postgres://localhost/sonate")
	t.Setenv("SONATE_KEY_VERSION", "v3")

	cfg := Load()
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/sonate", cfg.DatabaseURL)
	assert.Equal(t, "v3", cfg.KeyVersion)
}
