package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oddsworks/parimutuel/internal/cache/redis"
	"github.com/oddsworks/parimutuel/internal/domain"
	"github.com/oddsworks/parimutuel/internal/server"
	"github.com/oddsworks/parimutuel/internal/server/handler"
	"github.com/oddsworks/parimutuel/internal/server/middleware"
	"github.com/oddsworks/parimutuel/internal/server/ws"
)

// advanceLockKey guards the round scheduler so only one replica drives the
// timeline at a time.
const advanceLockKey = "engine:advance"

// shutdownTimeout bounds how long in-flight HTTP requests may run after the
// context is cancelled.
const shutdownTimeout = 10 * time.Second

// serve builds the HTTP surface on top of the wired dependencies and runs
// every long-lived component until the context is cancelled or one of them
// fails.
func (a *App) serve(ctx context.Context, deps *Dependencies) error {
	eng := deps.Engine

	checks := make(map[string]handler.CheckFunc, len(deps.Checks))
	for name, fn := range deps.Checks {
		checks[name] = fn
	}

	var archive handler.ArchiveService
	var browser handler.ArchiveBrowser
	if deps.Archiver != nil {
		archive = deps.Archiver
	}
	if deps.ArchiveReader != nil {
		browser = deps.ArchiveReader
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(checks, a.logger),
		Status:   handler.NewStatusHandler(eng, a.logger),
		Rounds:   handler.NewRoundHandler(eng, a.logger),
		Stakes:   handler.NewStakeHandler(eng, a.logger),
		Accounts: handler.NewAccountHandler(eng, a.logger),
		Props:    handler.NewPropHandler(eng, a.logger),
		Admin:    handler.NewAdminHandler(eng, archive, browser, a.logger),
	}

	hub := ws.NewHub(deps.Bus, a.logger)

	var limiter middleware.Limiter
	if deps.RateLimiter != nil {
		limiter = deps.RateLimiter
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, limiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if deps.Feeder != nil {
		g.Go(func() error {
			err := deps.Feeder.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if a.cfg.Scheduler.Enabled {
		g.Go(func() error {
			a.runScheduler(ctx, deps)
			return nil
		})
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runScheduler ticks the round timeline. Each tick takes a distributed lock
// so that in a multi-replica deployment only one process calls Advance; a
// held lock means another replica is already on it and the tick is skipped.
func (a *App) runScheduler(ctx context.Context, deps *Dependencies) {
	logger := a.logger.With(slog.String("component", "scheduler"))
	ticker := time.NewTicker(a.cfg.Scheduler.TickInterval.Duration)
	defer ticker.Stop()

	logger.Info("scheduler started",
		slog.Duration("tick_interval", a.cfg.Scheduler.TickInterval.Duration),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			a.tick(ctx, deps, logger)
		}
	}
}

// tick runs one lock-guarded Advance. Expected conditions (halted engine,
// stale price, lock held elsewhere) are logged and swallowed; the next tick
// retries.
func (a *App) tick(ctx context.Context, deps *Dependencies, logger *slog.Logger) {
	unlock, err := deps.Locks.Acquire(ctx, advanceLockKey, a.cfg.Scheduler.LockTTL.Duration)
	if err != nil {
		if errors.Is(err, redis.ErrLockHeld) {
			return
		}
		logger.Warn("advance lock", slog.String("error", err.Error()))
		return
	}
	defer unlock()

	if err := deps.Engine.Advance(ctx); err != nil {
		var stale *domain.StalePriceError
		switch {
		case errors.Is(err, domain.ErrHalted):
			logger.Debug("advance skipped: halted")
		case errors.As(err, &stale):
			logger.Warn("advance skipped: stale price", slog.String("error", err.Error()))
		case errors.Is(err, context.Canceled):
		default:
			logger.Error("advance failed", slog.String("error", err.Error()))
		}
	}
}
