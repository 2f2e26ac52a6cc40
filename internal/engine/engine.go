// Package engine implements the round lifecycle state machine and the
// pari-mutuel settlement core: scheduling, staking, settlement, claims, and
// the administrative surface, for both the binary price book and the
// multi-option propositions book.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// Engine executes every ledger operation inside a single transaction,
// serialized by a mutex: one operation fully applies before the next begins,
// mirroring the hosting ledger's one-transaction-at-a-time delivery.
type Engine struct {
	mu     sync.Mutex
	ledger domain.Ledger
	prices domain.PriceSource
	bus    domain.SignalBus
	clock  domain.Clock
	logger *slog.Logger
}

// New creates an Engine. bus may be nil to disable event publishing.
func New(ledger domain.Ledger, prices domain.PriceSource, bus domain.SignalBus, clock domain.Clock, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = domain.WallClock()
	}
	return &Engine{
		ledger: ledger,
		prices: prices,
		bus:    bus,
		clock:  clock,
		logger: logger.With(slog.String("component", "engine")),
	}
}

// BootstrapState is the initial ledger state seeded on first start.
type BootstrapState struct {
	Params     domain.Params
	Admin      string
	Assets     []string
	PriceFeeds map[string]string
}

// Bootstrap seeds params, the admin set, price feeds, and the asset rotation
// list if the ledger is empty. Safe to call on every start.
func (e *Engine) Bootstrap(ctx context.Context, init BootstrapState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := init.Params.Validate(); err != nil {
		return err
	}
	admin, err := domain.NormalizeAccount(init.Admin)
	if err != nil {
		return err
	}
	if len(init.Assets) == 0 {
		return domain.ErrEmptyAssetList
	}

	return e.ledger.Tx(ctx, func(s domain.Stores) error {
		if _, err := s.Params.Get(ctx); err == nil {
			return nil // already seeded
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		for asset, feed := range init.PriceFeeds {
			if err := s.State.SetPriceFeed(ctx, asset, feed); err != nil {
				return err
			}
		}
		for _, asset := range init.Assets {
			if _, err := s.State.PriceFeed(ctx, asset); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return &domain.AssetNotRegisteredError{Asset: asset}
				}
				return err
			}
		}

		if err := s.Params.Put(ctx, init.Params); err != nil {
			return err
		}
		if err := s.State.SetAdmins(ctx, []string{admin}); err != nil {
			return err
		}
		if err := s.State.SetAssets(ctx, init.Assets); err != nil {
			return err
		}
		if err := s.State.SetHalted(ctx, false); err != nil {
			return err
		}
		if err := s.Rounds.SetNextID(ctx, 1); err != nil {
			return err
		}
		return s.Props.SetNextID(ctx, 1)
	})
}

// event is published to the signal bus after a successful commit.
type event struct {
	channel string
	payload map[string]any
}

// publish sends queued events. Best-effort: failures are logged and never
// propagated, since the transaction has already committed.
func (e *Engine) publish(ctx context.Context, events []event) {
	if e.bus == nil {
		return
	}
	for _, ev := range events {
		data, err := json.Marshal(ev.payload)
		if err != nil {
			continue
		}
		if err := e.bus.Publish(ctx, ev.channel, data); err != nil {
			e.logger.WarnContext(ctx, "event publish failed",
				slog.String("channel", ev.channel),
				slog.String("error", err.Error()),
			)
		}
	}
}

// assertNotHalted rejects the operation wholesale while staking is halted.
func assertNotHalted(ctx context.Context, s domain.Stores) error {
	halted, err := s.State.Halted(ctx)
	if err != nil {
		return err
	}
	if halted {
		return domain.ErrHalted
	}
	return nil
}

// assertAdmin verifies the actor is in the admin set.
func assertAdmin(ctx context.Context, s domain.Stores, actor string) error {
	admins, err := s.State.Admins(ctx)
	if err != nil {
		return err
	}
	for _, a := range admins {
		if a == actor {
			return nil
		}
	}
	return domain.ErrUnauthorized
}

// observe fetches the current observation for an asset and enforces the
// staleness bound against now. A stale reading fails the whole operation so
// the round stays where it is until a fresher one is available.
func (e *Engine) observe(ctx context.Context, s domain.Stores, asset string, now time.Time, maxStale time.Duration) (domain.Observation, error) {
	feed, err := s.State.PriceFeed(ctx, asset)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Observation{}, &domain.AssetNotRegisteredError{Asset: asset}
		}
		return domain.Observation{}, err
	}
	obs, err := e.prices.Observe(ctx, feed)
	if err != nil {
		return domain.Observation{}, err
	}
	if now.Sub(obs.ObservedAt) > maxStale {
		return domain.Observation{}, &domain.StalePriceError{
			Asset:      asset,
			ObservedAt: obs.ObservedAt,
			Now:        now,
			Max:        maxStale,
		}
	}
	return obs, nil
}
