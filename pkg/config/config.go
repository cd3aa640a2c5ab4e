package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"roomrelay/pkg/validation"

	"gopkg.in/yaml.v2"
)

// ErrNoAuthConfigured is returned when neither a static token nor a JWT
// secret is configured. The relay refuses to start in that case.
var ErrNoAuthConfigured = errors.New("no authentication configured: set auth.static_token or auth.jwt_secret")

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Path            string        `yaml:"path"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		MaxPayloadBytes int64         `yaml:"max_payload_bytes"`
		SendBufferSize  int           `yaml:"send_buffer_size"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"signal"`

	Rooms struct {
		Capacity        int           `yaml:"capacity"`
		TTL             time.Duration `yaml:"ttl"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
		MaxChatLength   int           `yaml:"max_chat_length"`
	} `yaml:"rooms"`

	Monitoring struct {
		PrometheusEnabled  bool          `yaml:"prometheus_enabled"`
		StatsFlushInterval time.Duration `yaml:"stats_flush_interval"`
		StatsBatchSize     int           `yaml:"stats_batch_size"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		StaticToken    string        `yaml:"static_token"`
		JWTSecret      string        `yaml:"jwt_secret"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
		VerifyCacheTTL time.Duration `yaml:"verify_cache_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	RateLimiting struct {
		WebSocket struct {
			MessagesPerWindow    int `yaml:"messages_per_window"`
			ConnectionsPerMinute int `yaml:"connections_per_minute"`
			Burst                int `yaml:"burst"`
			MaxConcurrent        int `yaml:"max_concurrent_connections"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Auth comes first: a relay nobody can log into must not start.
	if c.Auth.StaticToken == "" && c.Auth.JWTSecret == "" {
		return ErrNoAuthConfigured
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}
	if c.Auth.VerifyCacheTTL < 0 {
		return fmt.Errorf("auth.verify_cache_ttl must be >= 0")
	}
	for _, origin := range c.Auth.AllowedOrigins {
		if err := validation.ValidateOrigin(origin); err != nil {
			return fmt.Errorf("auth.allowed_origins: %w", err)
		}
	}

	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if !strings.HasPrefix(c.Signal.Path, "/") {
		return fmt.Errorf("signal.path must start with '/'")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.MaxPayloadBytes <= 0 {
		return fmt.Errorf("signal.max_payload_bytes must be > 0")
	}
	if c.Signal.SendBufferSize <= 0 {
		return fmt.Errorf("signal.send_buffer_size must be > 0")
	}
	if c.Signal.ShutdownTimeout <= 0 {
		return fmt.Errorf("signal.shutdown_timeout must be > 0")
	}

	// Rooms
	if c.Rooms.Capacity <= 0 {
		return fmt.Errorf("rooms.capacity must be > 0")
	}
	if c.Rooms.TTL <= 0 {
		return fmt.Errorf("rooms.ttl must be > 0")
	}
	if c.Rooms.CleanupInterval <= 0 {
		return fmt.Errorf("rooms.cleanup_interval must be > 0")
	}
	if c.Rooms.MaxChatLength <= 0 {
		return fmt.Errorf("rooms.max_chat_length must be > 0")
	}

	// Monitoring
	if c.Monitoring.StatsFlushInterval <= 0 {
		return fmt.Errorf("monitoring.stats_flush_interval must be > 0")
	}
	if c.Monitoring.StatsBatchSize <= 0 {
		return fmt.Errorf("monitoring.stats_batch_size must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Rate limiting
	ws := c.RateLimiting.WebSocket
	if ws.MessagesPerWindow <= 0 {
		return fmt.Errorf("rate_limiting.websocket.messages_per_window must be > 0")
	}
	if ws.ConnectionsPerMinute < 0 {
		return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be >= 0")
	}
	if ws.ConnectionsPerMinute > 0 && ws.Burst <= 0 {
		return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when connections_per_minute is set")
	}
	if ws.MaxConcurrent < 0 {
		return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults, env overrides
// and validates the result. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(os.Getenv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFirst loads the first existing file of paths, or defaults plus
// environment when none exists. It returns the path actually used.
func LoadFirst(paths ...string) (*Config, string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}
	cfg, err := Load("")
	return cfg, "", err
}

// DefaultConfig returns configuration with sane defaults. Authentication is
// deliberately left empty.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8808"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.Path = "/ws"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.MaxPayloadBytes = 10 * 1024 * 1024
	cfg.Signal.SendBufferSize = 64
	cfg.Signal.ShutdownTimeout = 10 * time.Second

	cfg.Rooms.Capacity = 2
	cfg.Rooms.TTL = time.Hour
	cfg.Rooms.CleanupInterval = 10 * time.Minute
	cfg.Rooms.MaxChatLength = 1000

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.StatsFlushInterval = 5 * time.Second
	cfg.Monitoring.StatsBatchSize = 256

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Auth.VerifyCacheTTL = time.Minute
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.RateLimiting.WebSocket.MessagesPerWindow = 100
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 120
	cfg.RateLimiting.WebSocket.Burst = 20
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides(getenv func(string) string) error {
	lookup := func(keys ...string) string {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				return v
			}
		}
		return ""
	}

	if addr := lookup("RELAY_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	} else if port := lookup("RELAY_PORT", "PORT"); port != "" {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("PORT %q: %w", port, err)
		}
		c.Server.Address = "0.0.0.0:" + port
	}

	if v := lookup("RELAY_MAX_PAYLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("RELAY_MAX_PAYLOAD_BYTES %q: %w", v, err)
		}
		c.Signal.MaxPayloadBytes = n
	} else if v := lookup("MAX_PAYLOAD_MB"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_PAYLOAD_MB %q: %w", v, err)
		}
		c.Signal.MaxPayloadBytes = n * 1024 * 1024
	}

	if v := lookup("RELAY_STATIC_TOKEN"); v != "" {
		c.Auth.StaticToken = v
	}
	if v := lookup("RELAY_JWT_SECRET", "JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := lookup("RELAY_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.Auth.AllowedOrigins = origins
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"RELAY_ROOM_CAPACITY", &c.Rooms.Capacity},
		{"RELAY_RATE_LIMIT", &c.RateLimiting.WebSocket.MessagesPerWindow},
		{"RELAY_MAX_CONNECTIONS", &c.RateLimiting.WebSocket.MaxConcurrent},
	}
	for _, o := range ints {
		if v := lookup(o.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s %q: %w", o.key, v, err)
			}
			*o.dst = n
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"RELAY_PING_INTERVAL", &c.Signal.PingInterval},
		{"RELAY_ROOM_TTL", &c.Rooms.TTL},
		{"RELAY_CLEANUP_INTERVAL", &c.Rooms.CleanupInterval},
	}
	for _, o := range durations {
		if v := lookup(o.key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s %q: %w", o.key, v, err)
			}
			*o.dst = d
		}
	}

	if level := lookup("RELAY_LOG_LEVEL", "LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := lookup("RELAY_REDIS_ADDRESS"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Address = addr
	}
	return nil
}
