package domain

import "time"

// Position is a single user's aggregated stake in one round (or proposition).
// It is created on the user's first stake, only ever grows, and is deleted
// exactly once when its settlement is claimed. That deletion is the sole
// double-claim guard.
type Position struct {
	RoundID uint64
	User    string

	// Outcome is the key the stake is on. Immutable after creation;
	// staking on a different outcome in the same round is rejected.
	Outcome string
	Amount  uint64

	PlacedAt  time.Time
	UpdatedAt time.Time
}

// ClaimRecord is the append-only record of a settled position, kept after
// the position itself is deleted.
type ClaimRecord struct {
	RoundID   uint64
	User      string
	Amount    uint64
	ClaimedAt time.Time
}

// RoundPayout is one round's contribution to a user's pending reward.
type RoundPayout struct {
	RoundID uint64
	Amount  uint64
}
