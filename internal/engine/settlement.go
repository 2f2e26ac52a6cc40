package engine

import (
	"math/big"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// settlement is the outcome of settling one position against its resolved
// round: the gross payout and whether the protocol fee applies to it.
// Refunds (cancellation, tie, unmatched pool) are never commissionable.
type settlement struct {
	Payout         uint64
	Commissionable bool
}

// settle computes the payout for a position given the final state of its
// round: the per-outcome pools, the winning outcome key (nil for a tie), and
// the cancellation flag. Pure; callers are responsible for deleting the
// position exactly once.
func settle(pools map[string]uint64, winner *string, cancelled bool, pos domain.Position) (settlement, error) {
	if cancelled {
		return settlement{Payout: pos.Amount}, nil
	}

	var pool uint64
	var err error
	for _, amt := range pools {
		pool, err = domain.CheckedAdd(pool, amt)
		if err != nil {
			return settlement{}, err
		}
	}

	// Tie: everybody gets their own stake back.
	if winner == nil {
		return settlement{Payout: pos.Amount}, nil
	}

	winningTotal := pools[*winner]

	// The pool could not have been matched: either nobody staked on the
	// winning outcome, or nobody staked against it. Full refund.
	if winningTotal == 0 || winningTotal == pool {
		return settlement{Payout: pos.Amount}, nil
	}

	if pos.Outcome != *winner {
		return settlement{}, nil
	}

	// The position's own stake doubles as its winning-shares count: payout
	// is the whole pool split pro rata over the winning side, rounded down.
	payout, err := mulDiv(pool, pos.Amount, winningTotal)
	if err != nil {
		return settlement{}, err
	}
	return settlement{Payout: payout, Commissionable: true}, nil
}

// gamingFee returns floor(rateBps * commissionable / 10000).
func gamingFee(rateBps, commissionable uint64) (uint64, error) {
	return mulDiv(commissionable, rateBps, domain.RatioDenom)
}

// feeShare is one recipient's floored slice of the protocol fee.
type feeShare struct {
	Account string
	Amount  uint64
}

// splitFee divides the fee among the recipients by their declared ratios.
// Each share is floored individually; the remainder after flooring stays
// with the protocol and is deliberately not redistributed.
func splitFee(fee uint64, recipients []domain.FeeRecipient) ([]feeShare, error) {
	shares := make([]feeShare, 0, len(recipients))
	for _, r := range recipients {
		amt, err := mulDiv(fee, r.RatioBps, domain.RatioDenom)
		if err != nil {
			return nil, err
		}
		if amt == 0 {
			continue
		}
		shares = append(shares, feeShare{Account: r.Account, Amount: amt})
	}
	return shares, nil
}

// mulDiv computes floor(a * b / d) in exact arithmetic. The intermediate
// product is taken at full width so a*b cannot wrap.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, domain.ErrOverflow
	}
	var prod big.Int
	prod.Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	prod.Quo(&prod, new(big.Int).SetUint64(d))
	if !prod.IsUint64() {
		return 0, domain.ErrOverflow
	}
	return prod.Uint64(), nil
}
