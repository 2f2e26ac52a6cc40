// Package config defines the top-level configuration for the betting engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PARIMUTUEL_* environment
// variables.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Feed      FeedConfig      `toml:"feed"`
	Engine    EngineConfig    `toml:"engine"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	LogLevel  string          `toml:"log_level"`
}

// StoreConfig selects the ledger backend.
type StoreConfig struct {
	// Backend is "postgres" or "memory".
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for history
// archival. Disabled by default.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// APIKey guards the admin routes. Plaintext or a bcrypt hash
	// (recognized by its "$2" prefix). Empty disables authentication.
	APIKey string `toml:"api_key"`

	// RateLimit requests per RateWindow per client IP; zero disables.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// FeedConfig holds the upstream price tick WebSocket parameters.
type FeedConfig struct {
	Enabled bool   `toml:"enabled"`
	WsURL   string `toml:"ws_url"`
}

// FeeRecipientConfig is one fee recipient's share in basis points.
type FeeRecipientConfig struct {
	Account  string `toml:"account"`
	RatioBps uint64 `toml:"ratio_bps"`
}

// EngineConfig seeds the engine on first start. Once the ledger holds
// parameters, the admin API is the only way to change them.
type EngineConfig struct {
	MinStake         uint64               `toml:"min_stake"`
	FeeRateBps       uint64               `toml:"fee_rate_bps"`
	Token            string               `toml:"token"`
	RoundDuration    duration             `toml:"round_duration"`
	MaxStaleness     duration             `toml:"max_staleness"`
	ExpPerUnitStaked uint64               `toml:"exp_per_unit_staked"`
	ExpPerUnitWon    uint64               `toml:"exp_per_unit_won"`
	FeeRecipients    []FeeRecipientConfig `toml:"fee_recipients"`

	Admin      string            `toml:"admin"`
	Assets     []string          `toml:"assets"`
	PriceFeeds map[string]string `toml:"price_feeds"`
}

// SchedulerConfig drives the background Advance loop.
type SchedulerConfig struct {
	Enabled bool `toml:"enabled"`

	// TickInterval is how often Advance is attempted.
	TickInterval duration `toml:"tick_interval"`

	// LockTTL bounds how long one replica may hold the advance lock.
	LockTTL duration `toml:"lock_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			Backend: "postgres",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "parimutuel",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "parimutuel-history",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Feed: FeedConfig{
			Enabled: true,
		},
		Engine: EngineConfig{
			MinStake:         1,
			FeeRateBps:       300,
			Token:            "uusd",
			RoundDuration:    duration{5 * time.Minute},
			MaxStaleness:     duration{time.Minute},
			ExpPerUnitStaked: 1,
			ExpPerUnitWon:    2,
			PriceFeeds:       map[string]string{},
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			TickInterval: duration{5 * time.Second},
			LockTTL:      duration{30 * time.Second},
		},
		LogLevel: "info",
	}
}

// validBackends enumerates the accepted values for StoreConfig.Backend.
var validBackends = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validBackends[strings.ToLower(c.Store.Backend)] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: postgres, memory)", c.Store.Backend))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.ToLower(c.Store.Backend) == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	if c.Feed.Enabled && c.Feed.WsURL == "" {
		errs = append(errs, "feed: ws_url must not be empty when enabled")
	}

	if c.Engine.Token == "" {
		errs = append(errs, "engine: token must not be empty")
	}
	if c.Engine.RoundDuration.Duration <= 0 {
		errs = append(errs, "engine: round_duration must be positive")
	}
	if c.Engine.MaxStaleness.Duration <= 0 {
		errs = append(errs, "engine: max_staleness must be positive")
	}
	if c.Engine.Admin == "" {
		errs = append(errs, "engine: admin must not be empty")
	}
	if len(c.Engine.Assets) == 0 {
		errs = append(errs, "engine: assets must not be empty")
	}
	for _, asset := range c.Engine.Assets {
		if c.Engine.PriceFeeds[asset] == "" {
			errs = append(errs, fmt.Sprintf("engine: asset %q has no price_feeds entry", asset))
		}
	}
	if len(c.Engine.FeeRecipients) > 0 {
		var sum uint64
		for _, r := range c.Engine.FeeRecipients {
			sum += r.RatioBps
		}
		if sum != 10_000 {
			errs = append(errs, fmt.Sprintf("engine: fee_recipients ratio_bps must sum to 10000, got %d", sum))
		}
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.TickInterval.Duration <= 0 {
			errs = append(errs, "scheduler: tick_interval must be positive")
		}
		if c.Scheduler.LockTTL.Duration <= 0 {
			errs = append(errs, "scheduler: lock_ttl must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
