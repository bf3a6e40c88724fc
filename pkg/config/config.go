// Package config loads runtime configuration from the environment.
package config

import "os"

// Config holds process configuration for the receipt pipeline.
type Config struct {
	LogLevel     string
	DatabaseURL  string // lib/pq DSN; empty selects SQLite
	SQLitePath   string
	KeyEndpoint  string // public-key distribution URL
	KeyVersion   string // active signing key version
	SigningSeed  string // 32-byte hex seed; empty generates an ephemeral key
	OTLPEndpoint string
	PolicyFile   string
}

// Load reads configuration from environment variables with local defaults.
func Load() *Config {
	return &Config{
		LogLevel:     getenv("SONATE_LOG_LEVEL", "INFO"),
		DatabaseURL:  os.Getenv("SONATE_DATABASE_URL"),
		SQLitePath:   getenv("SONATE_SQLITE_PATH", "sonate.db"),
		KeyEndpoint:  getenv("SONATE_KEY_ENDPOINT", "http://localhost:8080/api/v1/trust/key"),
		KeyVersion:   getenv("SONATE_KEY_VERSION", "v1"),
		SigningSeed:  os.Getenv("SONATE_SIGNING_SEED"),
		OTLPEndpoint: getenv("SONATE_OTLP_ENDPOINT", "localhost:4317"),
		PolicyFile:   os.Getenv("SONATE_POLICY_FILE"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
