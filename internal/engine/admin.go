package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// UpdateParams replaces the engine parameters. Validation runs before the
// transaction so a bad set never reaches the ledger.
func (e *Engine) UpdateParams(ctx context.Context, actor string, params domain.Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}
		return s.Params.Put(ctx, params)
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "params updated",
		slog.String("actor", account),
		slog.Uint64("fee_rate_bps", params.FeeRateBps),
		slog.Uint64("min_stake", params.MinStake),
	)
	return nil
}

// Halt stops staking and round advancement. Claims and reads stay available.
func (e *Engine) Halt(ctx context.Context, actor string) error {
	return e.setHalted(ctx, actor, true)
}

// Resume lifts a halt.
func (e *Engine) Resume(ctx context.Context, actor string) error {
	return e.setHalted(ctx, actor, false)
}

func (e *Engine) setHalted(ctx context.Context, actor string, halted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return err
	}

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}
		return s.State.SetHalted(ctx, halted)
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "halt flag changed",
		slog.String("actor", account),
		slog.Bool("halted", halted),
	)
	return nil
}

// AddAdmin grants admin rights to an account. Adding an existing admin is a
// no-op rather than an error.
func (e *Engine) AddAdmin(ctx context.Context, actor, admin string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return err
	}
	grantee, err := domain.NormalizeAccount(admin)
	if err != nil {
		return err
	}

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}
		admins, err := s.State.Admins(ctx)
		if err != nil {
			return err
		}
		for _, a := range admins {
			if a == grantee {
				return nil
			}
		}
		return s.State.SetAdmins(ctx, append(admins, grantee))
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "admin added",
		slog.String("actor", account),
		slog.String("admin", grantee),
	)
	return nil
}

// RemoveAdmin revokes admin rights. The set can never go empty: removing the
// last admin fails with ErrNeedOneAdmin. Admins may remove themselves as long
// as another admin remains.
func (e *Engine) RemoveAdmin(ctx context.Context, actor, admin string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return err
	}
	revokee, err := domain.NormalizeAccount(admin)
	if err != nil {
		return err
	}

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}
		admins, err := s.State.Admins(ctx)
		if err != nil {
			return err
		}
		kept := make([]string, 0, len(admins))
		for _, a := range admins {
			if a != revokee {
				kept = append(kept, a)
			}
		}
		if len(kept) == len(admins) {
			return domain.ErrNotFound
		}
		if len(kept) == 0 {
			return domain.ErrNeedOneAdmin
		}
		return s.State.SetAdmins(ctx, kept)
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "admin removed",
		slog.String("actor", account),
		slog.String("admin", revokee),
	)
	return nil
}

// SetAssets replaces the asset rotation list. Every asset must already have
// a registered price feed; the rotation takes effect when the next bidding
// round is created.
func (e *Engine) SetAssets(ctx context.Context, actor string, assets []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		return domain.ErrEmptyAssetList
	}

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}
		for _, asset := range assets {
			if _, err := s.State.PriceFeed(ctx, asset); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return &domain.AssetNotRegisteredError{Asset: asset}
				}
				return err
			}
		}
		return s.State.SetAssets(ctx, assets)
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "asset rotation updated",
		slog.String("actor", account),
		slog.Int("assets", len(assets)),
	)
	return nil
}

// RegisterPriceFeed maps an asset to a price feed key. Re-registering an
// asset overwrites its mapping.
func (e *Engine) RegisterPriceFeed(ctx context.Context, actor, asset, feed string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return err
	}
	if asset == "" || feed == "" {
		return domain.ErrBadParams
	}

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}
		return s.State.SetPriceFeed(ctx, asset, feed)
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "price feed registered",
		slog.String("actor", account),
		slog.String("asset", asset),
		slog.String("feed", feed),
	)
	return nil
}

// CancelRound voids the current bidding or live round, moving it to the
// finished archive with the cancelled flag set so every position in it
// settles as a full, fee-free refund. Intended for feed outages and other
// rounds that cannot be resolved fairly.
func (e *Engine) CancelRound(ctx context.Context, actor string, roundID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(actor)
	if err != nil {
		return err
	}

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertAdmin(ctx, s, account); err != nil {
			return err
		}

		cancel := func(round domain.Round, clear func(context.Context) error) error {
			round.Phase = domain.PhaseFinished
			round.Cancelled = true
			if err := s.Rounds.SaveFinished(ctx, round); err != nil {
				return err
			}
			return clear(ctx)
		}

		if live, err := s.Rounds.Live(ctx); err == nil && live.ID == roundID {
			return cancel(live, s.Rounds.ClearLive)
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if bidding, err := s.Rounds.Bidding(ctx); err == nil && bidding.ID == roundID {
			return cancel(bidding, s.Rounds.ClearBidding)
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return domain.ErrNotFound
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "round cancelled",
		slog.String("actor", account),
		slog.Uint64("round_id", roundID),
	)
	e.publish(ctx, []event{{"rounds", map[string]any{
		"event":    "round_cancelled",
		"round_id": roundID,
	}}})
	return nil
}
