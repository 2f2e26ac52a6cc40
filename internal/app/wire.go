package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/oddsworks/parimutuel/internal/blob/s3"
	"github.com/oddsworks/parimutuel/internal/cache/redis"
	"github.com/oddsworks/parimutuel/internal/config"
	"github.com/oddsworks/parimutuel/internal/domain"
	"github.com/oddsworks/parimutuel/internal/engine"
	"github.com/oddsworks/parimutuel/internal/feed"
	"github.com/oddsworks/parimutuel/internal/store/memory"
	"github.com/oddsworks/parimutuel/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ledger domain.Ledger

	Prices      *redis.PriceCache
	Bus         *redis.SignalBus
	Locks       *redis.LockManager
	RateLimiter *redis.RateLimiter

	Engine *engine.Engine
	Feeder *feed.TickerFeed

	// Archiver and ArchiveReader are nil when object storage is disabled.
	Archiver      *s3blob.Archiver
	ArchiveReader *s3blob.Reader

	// Health check functions keyed by dependency name.
	Checks map[string]func(ctx context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Checks: make(map[string]func(ctx context.Context) error),
	}

	// --- Ledger backend ---
	switch cfg.Store.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Ledger = postgres.NewLedger(pgClient)
		deps.Checks["postgres"] = pgClient.Pool().Ping
	case "memory":
		deps.Ledger = memory.NewLedger()
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown store backend %q", cfg.Store.Backend)
	}

	// --- Redis: prices, event bus, locks, rate limiting ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Prices = redis.NewPriceCache(redisClient)
	deps.Bus = redis.NewSignalBus(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Checks["redis"] = redisClient.Ping

	// --- S3 object storage for history archival (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Ledger, logger)
		deps.ArchiveReader = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Engine ---
	deps.Engine = engine.New(deps.Ledger, deps.Prices, deps.Bus, nil, logger)

	if err := deps.Engine.Bootstrap(ctx, bootstrapState(cfg.Engine)); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: bootstrap: %w", err)
	}

	// --- Price feeder ---
	if cfg.Feed.Enabled {
		deps.Feeder = feed.NewTickerFeed(cfg.Feed.WsURL, feedIDs(cfg.Engine.PriceFeeds), deps.Prices, logger)
	}

	return deps, cleanup, nil
}

// bootstrapState converts the engine config section into the initial ledger
// state. It only takes effect on an empty ledger.
func bootstrapState(ec config.EngineConfig) engine.BootstrapState {
	recipients := make([]domain.FeeRecipient, 0, len(ec.FeeRecipients))
	for _, r := range ec.FeeRecipients {
		recipients = append(recipients, domain.FeeRecipient{
			Account:  r.Account,
			RatioBps: r.RatioBps,
		})
	}

	return engine.BootstrapState{
		Params: domain.Params{
			MinStake:         ec.MinStake,
			FeeRateBps:       ec.FeeRateBps,
			Token:            ec.Token,
			RoundDuration:    ec.RoundDuration.Duration,
			MaxStaleness:     ec.MaxStaleness.Duration,
			ExpPerUnitStaked: ec.ExpPerUnitStaked,
			ExpPerUnitWon:    ec.ExpPerUnitWon,
			FeeRecipients:    recipients,
		},
		Admin:      ec.Admin,
		Assets:     ec.Assets,
		PriceFeeds: ec.PriceFeeds,
	}
}

// feedIDs returns the distinct upstream feed identifiers from the asset to
// feed mapping.
func feedIDs(priceFeeds map[string]string) []string {
	seen := make(map[string]bool, len(priceFeeds))
	out := make([]string, 0, len(priceFeeds))
	for _, feed := range priceFeeds {
		if feed != "" && !seen[feed] {
			seen[feed] = true
			out = append(out, feed)
		}
	}
	return out
}
