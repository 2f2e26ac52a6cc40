package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration in layers: built-in defaults, then the TOML file
// at path (skipped when path is empty or the file does not exist), then a
// .env file if present, then PARIMUTUEL_* environment variables. The result
// is validated before being returned.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	// A .env file is optional; ignore the error when it is absent.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays PARIMUTUEL_* environment variables onto cfg.
// Only variables that are set and parse cleanly take effect.
func applyEnvOverrides(cfg *Config) {
	setStr("PARIMUTUEL_STORE_BACKEND", &cfg.Store.Backend)
	setStr("PARIMUTUEL_LOG_LEVEL", &cfg.LogLevel)

	setStr("PARIMUTUEL_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("PARIMUTUEL_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("PARIMUTUEL_POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("PARIMUTUEL_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("PARIMUTUEL_POSTGRES_USER", &cfg.Postgres.User)
	setStr("PARIMUTUEL_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("PARIMUTUEL_POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	setInt("PARIMUTUEL_POSTGRES_POOL_MAX_CONNS", &cfg.Postgres.PoolMaxConns)
	setInt("PARIMUTUEL_POSTGRES_POOL_MIN_CONNS", &cfg.Postgres.PoolMinConns)
	setBool("PARIMUTUEL_POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	setStr("PARIMUTUEL_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("PARIMUTUEL_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("PARIMUTUEL_REDIS_DB", &cfg.Redis.DB)
	setInt("PARIMUTUEL_REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	setBool("PARIMUTUEL_REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)

	setBool("PARIMUTUEL_S3_ENABLED", &cfg.S3.Enabled)
	setStr("PARIMUTUEL_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("PARIMUTUEL_S3_REGION", &cfg.S3.Region)
	setStr("PARIMUTUEL_S3_BUCKET", &cfg.S3.Bucket)
	setStr("PARIMUTUEL_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("PARIMUTUEL_S3_SECRET_KEY", &cfg.S3.SecretKey)
	setBool("PARIMUTUEL_S3_USE_SSL", &cfg.S3.UseSSL)
	setBool("PARIMUTUEL_S3_FORCE_PATH_STYLE", &cfg.S3.ForcePathStyle)

	setInt("PARIMUTUEL_SERVER_PORT", &cfg.Server.Port)
	setStringSlice("PARIMUTUEL_SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	setStr("PARIMUTUEL_SERVER_API_KEY", &cfg.Server.APIKey)
	setInt("PARIMUTUEL_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	setDuration("PARIMUTUEL_SERVER_RATE_WINDOW", &cfg.Server.RateWindow)

	setBool("PARIMUTUEL_FEED_ENABLED", &cfg.Feed.Enabled)
	setStr("PARIMUTUEL_FEED_WS_URL", &cfg.Feed.WsURL)

	setUint64("PARIMUTUEL_ENGINE_MIN_STAKE", &cfg.Engine.MinStake)
	setUint64("PARIMUTUEL_ENGINE_FEE_RATE_BPS", &cfg.Engine.FeeRateBps)
	setStr("PARIMUTUEL_ENGINE_TOKEN", &cfg.Engine.Token)
	setDuration("PARIMUTUEL_ENGINE_ROUND_DURATION", &cfg.Engine.RoundDuration)
	setDuration("PARIMUTUEL_ENGINE_MAX_STALENESS", &cfg.Engine.MaxStaleness)
	setStr("PARIMUTUEL_ENGINE_ADMIN", &cfg.Engine.Admin)
	setStringSlice("PARIMUTUEL_ENGINE_ASSETS", &cfg.Engine.Assets)

	setBool("PARIMUTUEL_SCHEDULER_ENABLED", &cfg.Scheduler.Enabled)
	setDuration("PARIMUTUEL_SCHEDULER_TICK_INTERVAL", &cfg.Scheduler.TickInterval)
	setDuration("PARIMUTUEL_SCHEDULER_LOCK_TTL", &cfg.Scheduler.LockTTL)
}

func setStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(key string, dst *uint64) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = duration{d}
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
