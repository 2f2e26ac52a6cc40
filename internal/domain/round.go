package domain

import "time"

// Outcome keys for the binary price-prediction book. The settlement core is
// generic over outcome keys; propositions use caller-declared option keys
// instead of these two.
const (
	SideBull = "bull"
	SideBear = "bear"
)

// RoundPhase is the lifecycle state of a round.
type RoundPhase string

const (
	PhaseBidding  RoundPhase = "bidding"
	PhaseLive     RoundPhase = "live"
	PhaseFinished RoundPhase = "finished"
)

// Observation is a price reading from the observation port, normalized to a
// fixed internal scale so that readings of the same asset are comparable.
type Observation struct {
	// Price is the observed price scaled by PriceScale.
	Price      int64
	ObservedAt time.Time
}

// PriceScale is the fixed internal precision for price observations
// (8 fractional decimal digits).
const PriceScale = 100_000_000

// Round is one unit of betting on the binary book. A round is created in the
// bidding phase, promoted to live when its open time passes, and finished
// when its close time passes and a closing observation is available.
type Round struct {
	ID    uint64
	Asset string

	// BidTime is when the round was created, OpenTime when it stops
	// accepting stakes, CloseTime when it resolves.
	BidTime   time.Time
	OpenTime  time.Time
	CloseTime time.Time

	// Pools maps outcome key to the total staked on that outcome.
	Pools map[string]uint64

	// OpenPrice is set on promotion to live, ClosePrice on resolution.
	OpenPrice  *int64
	ClosePrice *int64

	// Winner is the resolved outcome key; nil means a tie (everybody is
	// refunded). Only meaningful once the round is finished.
	Winner *string

	// Cancelled forces the full-refund path for every position regardless
	// of Winner. Set administratively, terminal.
	Cancelled bool

	Phase RoundPhase
}

// PoolTotal returns the sum of all outcome pools.
func (r *Round) PoolTotal() (uint64, error) {
	var total uint64
	var err error
	for _, amt := range r.Pools {
		total, err = CheckedAdd(total, amt)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// CheckedAdd adds two amounts and fails on overflow instead of wrapping.
// Pool totals are never silently saturated.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}
