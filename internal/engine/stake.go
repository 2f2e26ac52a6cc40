package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// StakeRequest is a request to stake on the current bidding round. Token is
// the denomination the stake was paid in; it must match the configured
// settlement token exactly.
type StakeRequest struct {
	User    string
	RoundID uint64
	Outcome string
	Amount  uint64
	Token   string
}

// PlaceStake records a stake on the round currently open for bidding. The
// first stake by a user in a round creates their position; later stakes grow
// it, and must be on the same outcome. Rejected wholesale while halted, for
// a round id other than the current bidding round, for the wrong token, for
// amounts under the minimum, or after the round's open time has passed.
func (e *Engine) PlaceStake(ctx context.Context, req StakeRequest) (domain.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	user, err := domain.NormalizeAccount(req.User)
	if err != nil {
		return domain.Position{}, err
	}
	if req.Outcome != domain.SideBull && req.Outcome != domain.SideBear {
		return domain.Position{}, domain.ErrUnknownOutcome
	}

	now := e.clock.Now()
	var pos domain.Position

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		if err := assertNotHalted(ctx, s); err != nil {
			return err
		}
		params, err := s.Params.Get(ctx)
		if err != nil {
			return err
		}
		if req.Token != params.Token {
			return domain.ErrWrongDenom
		}
		if req.Amount < params.MinStake {
			return domain.ErrBelowMinimum
		}

		bidding, err := s.Rounds.Bidding(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.NotCurrentRoundError{Requested: req.RoundID}
			}
			return err
		}
		if req.RoundID != bidding.ID {
			return &domain.NotCurrentRoundError{Requested: req.RoundID, Current: bidding.ID}
		}
		if now.After(bidding.OpenTime) {
			return domain.ErrStakingClosed
		}

		pos, err = upsertPosition(ctx, s.Positions, bidding.ID, user, req.Outcome, req.Amount, now)
		if err != nil {
			return err
		}

		bidding.Pools[req.Outcome], err = domain.CheckedAdd(bidding.Pools[req.Outcome], req.Amount)
		if err != nil {
			return err
		}
		if err := s.Rounds.SaveBidding(ctx, bidding); err != nil {
			return err
		}
		if err := s.Spend.Add(ctx, user, req.Amount); err != nil {
			return err
		}

		exp, err := mulDiv(req.Amount, params.ExpPerUnitStaked, 1)
		if err != nil {
			return err
		}
		if exp > 0 {
			if err := s.Outbox.AddReputation(ctx, domain.NewReputationCredit(user, exp, "stake", now)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Position{}, err
	}

	e.logger.InfoContext(ctx, "stake placed",
		slog.Uint64("round_id", req.RoundID),
		slog.String("user", user),
		slog.String("outcome", req.Outcome),
		slog.Uint64("amount", req.Amount),
	)
	e.publish(ctx, []event{{"stakes", map[string]any{
		"event":    "stake_placed",
		"round_id": req.RoundID,
		"user":     user,
		"outcome":  req.Outcome,
		"amount":   req.Amount,
	}}})
	return pos, nil
}

// upsertPosition creates the user's position in a round or grows an existing
// one. Switching outcomes is rejected: there is no averaging across sides.
func upsertPosition(ctx context.Context, positions domain.PositionStore, roundID uint64, user, outcome string, amount uint64, now time.Time) (domain.Position, error) {
	pos, err := positions.Get(ctx, roundID, user)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		pos = domain.Position{
			RoundID:   roundID,
			User:      user,
			Outcome:   outcome,
			Amount:    amount,
			PlacedAt:  now,
			UpdatedAt: now,
		}
	case err != nil:
		return domain.Position{}, err
	default:
		if pos.Outcome != outcome {
			return domain.Position{}, domain.ErrOutcomeMismatch
		}
		pos.Amount, err = domain.CheckedAdd(pos.Amount, amount)
		if err != nil {
			return domain.Position{}, err
		}
		pos.UpdatedAt = now
	}
	if err := positions.Put(ctx, pos); err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}
