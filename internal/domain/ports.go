package domain

import (
	"context"
	"time"
)

// PriceSource is the price observation port. Observe returns the most recent
// signed price for a registered feed, normalized to PriceScale. Staleness is
// enforced by the caller, not the source.
type PriceSource interface {
	Observe(ctx context.Context, feed string) (Observation, error)
	// Publish records a fresh observation. Used by the feeder, not the engine.
	Publish(ctx context.Context, feed string, obs Observation) error
}

// SignalBus publishes engine events (round transitions, stakes, claims) to
// interested consumers after commit. Delivery is best-effort; failures are
// logged, never propagated.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Clock abstracts "now" so the scheduler can be driven deterministically in
// tests. Production uses the wall clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// WallClock returns UTC wall-clock time.
func WallClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}
