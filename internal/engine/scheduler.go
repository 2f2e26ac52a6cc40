package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// Advance drives the round timeline. It is permissionless and safe to call
// redundantly: each of the two transitions fires only when its timestamp
// gate is met, and both may fire in one call (a live round closing and the
// bidding round going live in the same invocation).
func (e *Engine) Advance(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	var events []event

	err := e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertNotHalted(ctx, s); err != nil {
			return err
		}
		params, err := s.Params.Get(ctx)
		if err != nil {
			return err
		}

		// Step 1: resolve the live round if its close time has passed.
		live, err := s.Rounds.Live(ctx)
		switch {
		case err == nil:
			if !now.Before(live.CloseTime) {
				finished, err := e.closeRound(ctx, s, live, now, params)
				if err != nil {
					return err
				}
				events = append(events, event{"rounds", map[string]any{
					"event":       "round_finished",
					"round_id":    finished.ID,
					"close_price": *finished.ClosePrice,
					"winner":      winnerLabel(finished.Winner),
				}})
			}
		case errors.Is(err, domain.ErrNotFound):
		default:
			return err
		}

		// Step 2: promote the bidding round. The live slot is re-read
		// here because step 1 may have just emptied it.
		bidding, err := s.Rounds.Bidding(ctx)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			created, err := e.newBiddingRound(ctx, s, now, params)
			if err != nil {
				return err
			}
			events = append(events, event{"rounds", map[string]any{
				"event":    "round_created",
				"round_id": created.ID,
				"asset":    created.Asset,
			}})
		case err != nil:
			return err
		default:
			if _, liveErr := s.Rounds.Live(ctx); !errors.Is(liveErr, domain.ErrNotFound) {
				if liveErr != nil {
					return liveErr
				}
				return nil // wait for the other round to close first
			}
			if now.Before(bidding.OpenTime) {
				return nil
			}
			promoted, err := e.openRound(ctx, s, bidding, now, params)
			if err != nil {
				return err
			}
			events = append(events, event{"rounds", map[string]any{
				"event":      "round_live",
				"round_id":   promoted.ID,
				"open_price": *promoted.OpenPrice,
				"bull_total": promoted.Pools[domain.SideBull],
				"bear_total": promoted.Pools[domain.SideBear],
			}})
			created, err := e.newBiddingRound(ctx, s, now, params)
			if err != nil {
				return err
			}
			events = append(events, event{"rounds", map[string]any{
				"event":    "round_created",
				"round_id": created.ID,
				"asset":    created.Asset,
			}})
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.publish(ctx, events)
	return nil
}

// closeRound resolves a live round against its closing observation and moves
// it to the finished archive, emptying the live slot.
func (e *Engine) closeRound(ctx context.Context, s domain.Stores, live domain.Round, now time.Time, params domain.Params) (domain.Round, error) {
	obs, err := e.observe(ctx, s, live.Asset, now, params.MaxStaleness)
	if err != nil {
		return domain.Round{}, err
	}

	finished := live
	finished.Phase = domain.PhaseFinished
	finished.ClosePrice = &obs.Price
	finished.Winner = resolveWinner(*live.OpenPrice, obs.Price)

	if err := s.Rounds.SaveFinished(ctx, finished); err != nil {
		return domain.Round{}, err
	}
	if err := s.Rounds.ClearLive(ctx); err != nil {
		return domain.Round{}, err
	}

	e.logger.InfoContext(ctx, "round finished",
		slog.Uint64("round_id", finished.ID),
		slog.Int64("close_price", obs.Price),
		slog.String("winner", winnerLabel(finished.Winner)),
	)
	return finished, nil
}

// openRound promotes a bidding round to live, carrying its pools forward,
// and empties the bidding slot.
func (e *Engine) openRound(ctx context.Context, s domain.Stores, bidding domain.Round, now time.Time, params domain.Params) (domain.Round, error) {
	obs, err := e.observe(ctx, s, bidding.Asset, now, params.MaxStaleness)
	if err != nil {
		return domain.Round{}, err
	}

	live := bidding
	live.Phase = domain.PhaseLive
	live.OpenTime = now
	live.CloseTime = now.Add(params.RoundDuration)
	live.OpenPrice = &obs.Price

	if err := s.Rounds.SaveLive(ctx, live); err != nil {
		return domain.Round{}, err
	}
	if err := s.Rounds.ClearBidding(ctx); err != nil {
		return domain.Round{}, err
	}

	e.logger.InfoContext(ctx, "round live",
		slog.Uint64("round_id", live.ID),
		slog.Int64("open_price", obs.Price),
	)
	return live, nil
}

// newBiddingRound creates the next bidding round with the next sequential id.
// Its open time chains onto the live round's close time when one exists, so
// scheduling is gapless; on a cold start it opens one duration from now. The
// reference asset rotates by round id.
func (e *Engine) newBiddingRound(ctx context.Context, s domain.Stores, now time.Time, params domain.Params) (domain.Round, error) {
	id, err := s.Rounds.NextID(ctx)
	if err != nil {
		return domain.Round{}, err
	}
	assets, err := s.State.Assets(ctx)
	if err != nil {
		return domain.Round{}, err
	}
	if len(assets) == 0 {
		return domain.Round{}, domain.ErrEmptyAssetList
	}

	openTime := now.Add(params.RoundDuration)
	if live, err := s.Rounds.Live(ctx); err == nil {
		openTime = live.CloseTime
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Round{}, err
	}

	round := domain.Round{
		ID:        id,
		Asset:     assets[id%uint64(len(assets))],
		BidTime:   now,
		OpenTime:  openTime,
		CloseTime: openTime.Add(params.RoundDuration),
		Pools: map[string]uint64{
			domain.SideBull: 0,
			domain.SideBear: 0,
		},
		Phase: domain.PhaseBidding,
	}

	if err := s.Rounds.SaveBidding(ctx, round); err != nil {
		return domain.Round{}, err
	}
	if err := s.Rounds.SetNextID(ctx, id+1); err != nil {
		return domain.Round{}, err
	}

	e.logger.InfoContext(ctx, "bidding round created",
		slog.Uint64("round_id", round.ID),
		slog.String("asset", round.Asset),
		slog.Time("open_time", round.OpenTime),
	)
	return round, nil
}

// resolveWinner compares the closing observation against the opening one:
// strictly greater means bulls win, strictly less means bears win, equal
// means nobody does and every stake is refunded at claim time.
func resolveWinner(openPrice, closePrice int64) *string {
	var winner string
	switch {
	case closePrice > openPrice:
		winner = domain.SideBull
	case closePrice < openPrice:
		winner = domain.SideBear
	default:
		return nil
	}
	return &winner
}

func winnerLabel(w *string) string {
	if w == nil {
		return "everybody"
	}
	return *w
}
