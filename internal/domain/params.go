package domain

import "time"

// RatioDenom is the denominator for fee rates and recipient ratios: both are
// expressed as parts per ten thousand (basis points).
const RatioDenom = 10_000

// FeeRecipient receives a share of the protocol fee.
type FeeRecipient struct {
	Account  string
	RatioBps uint64
}

// Params are the process-wide engine parameters, mutable only by an admin
// operation and read by every other operation. They live in the ledger so
// updates commit atomically with everything else.
type Params struct {
	MinStake   uint64
	FeeRateBps uint64

	// Token is the settlement token denomination every stake must be paid in.
	Token string

	RoundDuration time.Duration
	MaxStaleness  time.Duration

	// Experience credited per token unit on stake and on commissionable win.
	ExpPerUnitStaked uint64
	ExpPerUnitWon    uint64

	FeeRecipients []FeeRecipient
}

// Validate checks the invariants an admin update must preserve: recipient
// ratios summing to exactly one, and sane durations.
func (p *Params) Validate() error {
	if p.Token == "" {
		return ErrBadParams
	}
	if p.RoundDuration <= 0 || p.MaxStaleness <= 0 {
		return ErrBadParams
	}
	if p.FeeRateBps > RatioDenom {
		return ErrBadParams
	}
	if len(p.FeeRecipients) > 0 {
		var sum uint64
		for _, r := range p.FeeRecipients {
			sum += r.RatioBps
		}
		if sum != RatioDenom {
			return ErrBadFeeRatios
		}
	}
	return nil
}
