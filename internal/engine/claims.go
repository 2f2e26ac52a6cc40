package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// ClaimResult summarizes a successful claim transaction: the net amount paid
// to the claimant, the protocol fee taken, and the per-round breakdown.
type ClaimResult struct {
	Paid   uint64
	Fee    uint64
	Rounds []domain.RoundPayout
}

// resolvedRound is the settled state a claim settles against, regardless of
// which book it came from.
type resolvedRound struct {
	Pools     map[string]uint64
	Winner    *string
	Cancelled bool
}

// resolver looks up the resolved state of a round/proposition id. ok=false
// means the id is not resolved yet (still bidding/live/open) and the
// position must be skipped, not failed.
type resolver func(ctx context.Context, id uint64) (resolvedRound, bool, error)

// ClaimAll settles every resolved position the user holds on the binary
// book, aggregating the payouts into one transfer and one fee distribution.
// Fails with ErrNothingToClaim when nothing is payable; the failure rolls
// back every deletion, so the positions remain claimable later.
func (e *Engine) ClaimAll(ctx context.Context, user string) (ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return ClaimResult{}, err
	}

	now := e.clock.Now()
	var result ClaimResult

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		params, err := s.Params.Get(ctx)
		if err != nil {
			return err
		}
		positions, err := s.Positions.AllByUser(ctx, account)
		if err != nil {
			return err
		}
		result, err = settleAndPay(ctx, s, settleBatch{
			positions: positions,
			store:     s.Positions,
			claims:    s.Claims,
			resolve:   roundResolver(ctx, s),
			user:      account,
			params:    params,
			now:       now,
		})
		return err
	})
	if err != nil {
		return ClaimResult{}, err
	}

	e.logClaim(ctx, account, result)
	return result, nil
}

// ClaimRound settles the user's position in one specific round. Fails when
// no position exists, when the round is not resolved yet, or when the
// payout is zero.
func (e *Engine) ClaimRound(ctx context.Context, user string, roundID uint64) (ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, err := domain.NormalizeAccount(user)
	if err != nil {
		return ClaimResult{}, err
	}

	now := e.clock.Now()
	var result ClaimResult

	err = e.ledger.Tx(ctx, func(s domain.Stores) error {
		params, err := s.Params.Get(ctx)
		if err != nil {
			return err
		}
		pos, err := s.Positions.Get(ctx, roundID, account)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNothingToClaim
			}
			return err
		}
		resolve := roundResolver(ctx, s)
		if _, ok, err := resolve(ctx, roundID); err != nil {
			return err
		} else if !ok {
			return &domain.RoundNotResolvedError{RoundID: roundID}
		}
		result, err = settleAndPay(ctx, s, settleBatch{
			positions: []domain.Position{pos},
			store:     s.Positions,
			claims:    s.Claims,
			resolve:   resolve,
			user:      account,
			params:    params,
			now:       now,
		})
		return err
	})
	if err != nil {
		return ClaimResult{}, err
	}

	e.logClaim(ctx, account, result)
	return result, nil
}

// settleBatch carries everything settleAndPay needs for one claim
// transaction against one book.
type settleBatch struct {
	positions []domain.Position
	store     domain.PositionStore
	claims    domain.ClaimStore
	resolve   resolver
	user      string
	params    domain.Params
	now       time.Time
}

// settleAndPay is the claim core shared by both books: it settles each
// resolved position, deletes it (the sole double-claim guard — deletion
// commits atomically with the transfer instructions), appends claim records,
// computes the fee over the commissionable total, and writes the outbox
// instructions for the fee split, the reputation credit, and the claimant's
// net payout.
func settleAndPay(ctx context.Context, s domain.Stores, b settleBatch) (ClaimResult, error) {
	var (
		total          uint64
		commissionable uint64
		rounds         []domain.RoundPayout
		err            error
	)

	for _, pos := range b.positions {
		resolved, ok, rerr := b.resolve(ctx, pos.RoundID)
		if rerr != nil {
			return ClaimResult{}, rerr
		}
		if !ok {
			continue // still bidding/live; not claimable yet
		}

		st, serr := settle(resolved.Pools, resolved.Winner, resolved.Cancelled, pos)
		if serr != nil {
			return ClaimResult{}, serr
		}

		if derr := b.store.Delete(ctx, pos.RoundID, pos.User); derr != nil {
			return ClaimResult{}, derr
		}

		if st.Payout > 0 {
			if cerr := b.claims.Put(ctx, domain.ClaimRecord{
				RoundID:   pos.RoundID,
				User:      pos.User,
				Amount:    st.Payout,
				ClaimedAt: b.now,
			}); cerr != nil {
				return ClaimResult{}, cerr
			}
			rounds = append(rounds, domain.RoundPayout{RoundID: pos.RoundID, Amount: st.Payout})
		}

		total, err = domain.CheckedAdd(total, st.Payout)
		if err != nil {
			return ClaimResult{}, err
		}
		if st.Commissionable {
			commissionable, err = domain.CheckedAdd(commissionable, st.Payout)
			if err != nil {
				return ClaimResult{}, err
			}
		}
	}

	if total == 0 {
		return ClaimResult{}, domain.ErrNothingToClaim
	}

	var fee uint64
	if commissionable > 0 {
		fee, err = gamingFee(b.params.FeeRateBps, commissionable)
		if err != nil {
			return ClaimResult{}, err
		}
		shares, err := splitFee(fee, b.params.FeeRecipients)
		if err != nil {
			return ClaimResult{}, err
		}
		for _, share := range shares {
			t := domain.NewTransfer(share.Account, share.Amount, b.params.Token, "gaming-fee", b.now)
			if err := s.Outbox.AddTransfer(ctx, t); err != nil {
				return ClaimResult{}, err
			}
		}

		exp, err := mulDiv(commissionable, b.params.ExpPerUnitWon, 1)
		if err != nil {
			return ClaimResult{}, err
		}
		if exp > 0 {
			if err := s.Outbox.AddReputation(ctx, domain.NewReputationCredit(b.user, exp, "win", b.now)); err != nil {
				return ClaimResult{}, err
			}
		}
	}

	paid := total - fee
	payout := domain.NewTransfer(b.user, paid, b.params.Token, "winnings", b.now)
	if err := s.Outbox.AddTransfer(ctx, payout); err != nil {
		return ClaimResult{}, err
	}

	return ClaimResult{Paid: paid, Fee: fee, Rounds: rounds}, nil
}

// roundResolver resolves binary-book rounds from the finished archive.
func roundResolver(ctx context.Context, s domain.Stores) resolver {
	return func(ctx context.Context, id uint64) (resolvedRound, bool, error) {
		round, err := s.Rounds.Finished(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return resolvedRound{}, false, nil
			}
			return resolvedRound{}, false, err
		}
		return resolvedRound{
			Pools:     round.Pools,
			Winner:    round.Winner,
			Cancelled: round.Cancelled,
		}, true, nil
	}
}

func (e *Engine) logClaim(ctx context.Context, user string, result ClaimResult) {
	e.logger.InfoContext(ctx, "claim settled",
		slog.String("user", user),
		slog.Uint64("paid", result.Paid),
		slog.Uint64("fee", result.Fee),
		slog.Int("rounds", len(result.Rounds)),
	)
	e.publish(ctx, []event{{"claims", map[string]any{
		"event": "claim_settled",
		"user":  user,
		"paid":  result.Paid,
		"fee":   result.Fee,
	}}})
}
