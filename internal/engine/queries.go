package engine

import (
	"context"
	"errors"
	"time"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// Status is a point-in-time snapshot of the round timeline.
type Status struct {
	Now     time.Time
	Bidding *domain.Round
	Live    *domain.Round
	Halted  bool
}

// Status reports the current bidding and live rounds, if any, along with the
// halt flag and the clock reading the snapshot was taken at.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	st := Status{Now: e.clock.Now()}
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		halted, err := s.State.Halted(ctx)
		if err != nil {
			return err
		}
		st.Halted = halted

		if bidding, err := s.Rounds.Bidding(ctx); err == nil {
			st.Bidding = &bidding
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if live, err := s.Rounds.Live(ctx); err == nil {
			st.Live = &live
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return Status{}, err
	}
	return st, nil
}

// FinishedRound returns one round from the finished archive.
func (e *Engine) FinishedRound(ctx context.Context, id uint64) (domain.Round, error) {
	var round domain.Round
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		round, err = s.Rounds.Finished(ctx, id)
		return err
	})
	return round, err
}

// ListFinishedRounds pages through the finished archive newest first.
// beforeID == 0 starts from the most recent round.
func (e *Engine) ListFinishedRounds(ctx context.Context, beforeID uint64, limit int) ([]domain.Round, error) {
	var rounds []domain.Round
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		rounds, err = s.Rounds.ListFinishedBefore(ctx, beforeID, domain.ClampLimit(limit))
		return err
	})
	return rounds, err
}

// UserPositions pages through a user's open positions by round id ascending.
func (e *Engine) UserPositions(ctx context.Context, user string, afterRound *uint64, limit int) ([]domain.Position, error) {
	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return nil, err
	}
	var positions []domain.Position
	err = e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		positions, err = s.Positions.ListByUser(ctx, account, afterRound, domain.ClampLimit(limit))
		return err
	})
	return positions, err
}

// RoundPositions pages through the positions of one round by user ascending.
func (e *Engine) RoundPositions(ctx context.Context, roundID uint64, afterUser string, limit int) ([]domain.Position, error) {
	var positions []domain.Position
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		positions, err = s.Positions.ListByRound(ctx, roundID, afterUser, domain.ClampLimit(limit))
		return err
	})
	return positions, err
}

// CurrentPosition returns the user's position in the round currently open
// for bidding, or ErrNotFound when they have none (or no round is bidding).
func (e *Engine) CurrentPosition(ctx context.Context, user string) (domain.Position, error) {
	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return domain.Position{}, err
	}
	var pos domain.Position
	err = e.ledger.View(ctx, func(s domain.Stores) error {
		bidding, err := s.Rounds.Bidding(ctx)
		if err != nil {
			return err
		}
		pos, err = s.Positions.Get(ctx, bidding.ID, account)
		return err
	})
	return pos, err
}

// PendingReward totals what ClaimAll would currently pay the user, gross of
// fees. Positions in unresolved rounds contribute nothing.
func (e *Engine) PendingReward(ctx context.Context, user string) (uint64, error) {
	rounds, err := e.PendingRewardRounds(ctx, user)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, r := range rounds {
		total, err = domain.CheckedAdd(total, r.Amount)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// PendingRewardRounds lists the per-round gross payouts the user could claim
// right now. Settlement here is a dry run: nothing is deleted or recorded.
func (e *Engine) PendingRewardRounds(ctx context.Context, user string) ([]domain.RoundPayout, error) {
	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return nil, err
	}
	var payouts []domain.RoundPayout
	err = e.ledger.View(ctx, func(s domain.Stores) error {
		positions, err := s.Positions.AllByUser(ctx, account)
		if err != nil {
			return err
		}
		resolve := roundResolver(ctx, s)
		for _, pos := range positions {
			resolved, ok, err := resolve(ctx, pos.RoundID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			st, err := settle(resolved.Pools, resolved.Winner, resolved.Cancelled, pos)
			if err != nil {
				return err
			}
			if st.Payout > 0 {
				payouts = append(payouts, domain.RoundPayout{RoundID: pos.RoundID, Amount: st.Payout})
			}
		}
		return nil
	})
	return payouts, err
}

// PendingRewardRound is the dry-run payout for one round. Returns
// RoundNotResolvedError while the round is still bidding or live.
func (e *Engine) PendingRewardRound(ctx context.Context, user string, roundID uint64) (uint64, error) {
	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return 0, err
	}
	var payout uint64
	err = e.ledger.View(ctx, func(s domain.Stores) error {
		pos, err := s.Positions.Get(ctx, roundID, account)
		if err != nil {
			return err
		}
		resolved, ok, err := roundResolver(ctx, s)(ctx, roundID)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.RoundNotResolvedError{RoundID: roundID}
		}
		st, err := settle(resolved.Pools, resolved.Winner, resolved.Cancelled, pos)
		if err != nil {
			return err
		}
		payout = st.Payout
		return nil
	})
	return payout, err
}

// TotalSpent returns the user's lifetime staked total across both books.
func (e *Engine) TotalSpent(ctx context.Context, user string) (uint64, error) {
	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return 0, err
	}
	var total uint64
	err = e.ledger.View(ctx, func(s domain.Stores) error {
		rounds, err := s.Spend.Total(ctx, account)
		if err != nil {
			return err
		}
		props, err := s.PropSpend.Total(ctx, account)
		if err != nil {
			return err
		}
		total, err = domain.CheckedAdd(rounds, props)
		return err
	})
	return total, err
}

// ClaimsByUser pages through a user's claim history on the binary book.
func (e *Engine) ClaimsByUser(ctx context.Context, user string, afterRound *uint64, limit int) ([]domain.ClaimRecord, error) {
	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return nil, err
	}
	var records []domain.ClaimRecord
	err = e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		records, err = s.Claims.ListByUser(ctx, account, afterRound, domain.ClampLimit(limit))
		return err
	})
	return records, err
}

// ClaimsByRound pages through the claims settled against one finished round.
func (e *Engine) ClaimsByRound(ctx context.Context, roundID uint64, afterUser string, limit int) ([]domain.ClaimRecord, error) {
	var records []domain.ClaimRecord
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		records, err = s.Claims.ListByRound(ctx, roundID, afterUser, domain.ClampLimit(limit))
		return err
	})
	return records, err
}

// Params returns the current engine parameters.
func (e *Engine) Params(ctx context.Context) (domain.Params, error) {
	var params domain.Params
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		params, err = s.Params.Get(ctx)
		return err
	})
	return params, err
}

// Admins returns the current admin set.
func (e *Engine) Admins(ctx context.Context) ([]string, error) {
	var admins []string
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		admins, err = s.State.Admins(ctx)
		return err
	})
	return admins, err
}

// Assets returns the asset rotation list.
func (e *Engine) Assets(ctx context.Context) ([]string, error) {
	var assets []string
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		assets, err = s.State.Assets(ctx)
		return err
	})
	return assets, err
}

// PriceFeeds returns the asset-to-feed registry.
func (e *Engine) PriceFeeds(ctx context.Context) (map[string]string, error) {
	var feeds map[string]string
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		feeds, err = s.State.PriceFeeds(ctx)
		return err
	})
	return feeds, err
}
