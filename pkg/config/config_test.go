package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.Auth.StaticToken = "secret"
	return cfg
}

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultConfig_MatchesRelayDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 2, cfg.Rooms.Capacity)
	assert.Equal(t, time.Hour, cfg.Rooms.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Rooms.CleanupInterval)
	assert.Equal(t, 30*time.Second, cfg.Signal.PingInterval)
	assert.Equal(t, 100, cfg.RateLimiting.WebSocket.MessagesPerWindow)
	assert.Equal(t, 1000, cfg.Rooms.MaxChatLength)
	assert.Equal(t, int64(10*1024*1024), cfg.Signal.MaxPayloadBytes)
	assert.Empty(t, cfg.Auth.StaticToken)
	assert.Empty(t, cfg.Auth.JWTSecret)
}

func TestValidate_NoAuthIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	assert.True(t, errors.Is(err, ErrNoAuthConfigured))

	cfg.Auth.JWTSecret = "k"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"capacity must be > 0", func(c *Config) { c.Rooms.Capacity = 0 }},
		{"ttl must be > 0", func(c *Config) { c.Rooms.TTL = 0 }},
		{"cleanup interval must be > 0", func(c *Config) { c.Rooms.CleanupInterval = 0 }},
		{"ping interval must be > 0", func(c *Config) { c.Signal.PingInterval = 0 }},
		{"payload must be > 0", func(c *Config) { c.Signal.MaxPayloadBytes = 0 }},
		{"path must be absolute", func(c *Config) { c.Signal.Path = "ws" }},
		{"rate limit must be > 0", func(c *Config) { c.RateLimiting.WebSocket.MessagesPerWindow = 0 }},
		{"burst needed with connection limit", func(c *Config) { c.RateLimiting.WebSocket.Burst = 0 }},
		{"max concurrent must be >= 0", func(c *Config) { c.RateLimiting.WebSocket.MaxConcurrent = -1 }},
		{"redis address", func(c *Config) { c.Redis.Enabled = true; c.Redis.Address = "" }},
		{"tracing sample rate", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SampleRate = 2 }},
		{"log level", func(c *Config) { c.Logging.Level = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnvOverrides(envFrom(map[string]string{
		"PORT":                "9000",
		"MAX_PAYLOAD_MB":      "2",
		"JWT_SECRET":          "jwt",
		"RELAY_STATIC_TOKEN":  "static",
		"RELAY_ROOM_CAPACITY": "4",
		"RELAY_RATE_LIMIT":    "50",
		"RELAY_PING_INTERVAL": "5s",
		"RELAY_ROOM_TTL":      "2m",
		"RELAY_LOG_LEVEL":     "debug",
		"RELAY_REDIS_ADDRESS": "redis:6379",
	}))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address)
	assert.Equal(t, int64(2*1024*1024), cfg.Signal.MaxPayloadBytes)
	assert.Equal(t, "jwt", cfg.Auth.JWTSecret)
	assert.Equal(t, "static", cfg.Auth.StaticToken)
	assert.Equal(t, 4, cfg.Rooms.Capacity)
	assert.Equal(t, 50, cfg.RateLimiting.WebSocket.MessagesPerWindow)
	assert.Equal(t, 5*time.Second, cfg.Signal.PingInterval)
	assert.Equal(t, 2*time.Minute, cfg.Rooms.TTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
}

func TestApplyEnvOverrides_PayloadBytesWinsOverMB(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.applyEnvOverrides(envFrom(map[string]string{
		"RELAY_MAX_PAYLOAD_BYTES": "4096",
		"MAX_PAYLOAD_MB":          "2",
	})))
	assert.Equal(t, int64(4096), cfg.Signal.MaxPayloadBytes)
}

func TestApplyEnvOverrides_RejectsGarbage(t *testing.T) {
	for _, env := range []map[string]string{
		{"PORT": "http"},
		{"RELAY_ROOM_CAPACITY": "two"},
		{"RELAY_ROOM_TTL": "forever"},
		{"MAX_PAYLOAD_MB": "lots"},
	} {
		cfg := DefaultConfig()
		assert.Error(t, cfg.applyEnvOverrides(envFrom(env)), "%v", env)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlData := `
auth:
  static_token: "yaml-secret"
rooms:
  capacity: 3
  ttl: 30m
signal:
  ping_interval: 15s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml-secret", cfg.Auth.StaticToken)
	assert.Equal(t, 3, cfg.Rooms.Capacity)
	assert.Equal(t, 30*time.Minute, cfg.Rooms.TTL)
	assert.Equal(t, 15*time.Second, cfg.Signal.PingInterval)
	// untouched values keep their defaults
	assert.Equal(t, 100, cfg.RateLimiting.WebSocket.MessagesPerWindow)
}

func TestLoad_MissingAuthFails(t *testing.T) {
	for _, k := range []string{"RELAY_STATIC_TOKEN", "RELAY_JWT_SECRET", "JWT_SECRET"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rooms:\n  capacity: 2\n"), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrNoAuthConfigured)
}

func TestLoadFirst_PicksExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: k\n"), 0o600))

	cfg, used, err := LoadFirst(filepath.Join(dir, "missing.yaml"), path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "k", cfg.Auth.JWTSecret)
}
