package domain

import (
	"context"
)

// Pagination limits shared by every cursor query.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 30
)

// ClampLimit applies the default and cap to a caller-supplied page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// RoundStore owns the binary book's rounds: the single bidding slot, the
// single live slot, the finished archive, and the sequential id counter.
type RoundStore interface {
	Bidding(ctx context.Context) (Round, error)
	Live(ctx context.Context) (Round, error)
	SaveBidding(ctx context.Context, r Round) error
	SaveLive(ctx context.Context, r Round) error
	ClearBidding(ctx context.Context) error
	ClearLive(ctx context.Context) error

	SaveFinished(ctx context.Context, r Round) error
	Finished(ctx context.Context, id uint64) (Round, error)
	ListFinishedBefore(ctx context.Context, beforeID uint64, limit int) ([]Round, error)
	DeleteFinished(ctx context.Context, id uint64) error

	NextID(ctx context.Context) (uint64, error)
	SetNextID(ctx context.Context, id uint64) error
}

// PositionStore is the position arena for one book, keyed by (round, user),
// with derived by-user and by-round views. Cursors are exclusive.
type PositionStore interface {
	Get(ctx context.Context, roundID uint64, user string) (Position, error)
	Put(ctx context.Context, p Position) error
	Delete(ctx context.Context, roundID uint64, user string) error

	// ListByUser returns the user's positions ordered by round id,
	// starting after afterRound when non-nil.
	ListByUser(ctx context.Context, user string, afterRound *uint64, limit int) ([]Position, error)
	// ListByRound returns a round's positions ordered by user, starting
	// after afterUser when non-empty.
	ListByRound(ctx context.Context, roundID uint64, afterUser string, limit int) ([]Position, error)
	// AllByUser returns every position of the user, ordered by round id.
	AllByUser(ctx context.Context, user string) ([]Position, error)
}

// ClaimStore is the append-only claim record ledger for one book.
type ClaimStore interface {
	Put(ctx context.Context, c ClaimRecord) error
	ListByUser(ctx context.Context, user string, afterRound *uint64, limit int) ([]ClaimRecord, error)
	ListByRound(ctx context.Context, roundID uint64, afterUser string, limit int) ([]ClaimRecord, error)
}

// SpendStore tracks each user's cumulative stake across all rounds of one
// book. Monotonically increasing, read-side reporting only.
type SpendStore interface {
	Add(ctx context.Context, user string, amount uint64) error
	Total(ctx context.Context, user string) (uint64, error)
}

// ParamsStore holds the engine Params singleton.
type ParamsStore interface {
	Get(ctx context.Context) (Params, error)
	Put(ctx context.Context, p Params) error
}

// StateStore holds the small administrative singletons: the halt flag, the
// admin set, the asset rotation list, and the asset to price-feed mapping.
type StateStore interface {
	Halted(ctx context.Context) (bool, error)
	SetHalted(ctx context.Context, halted bool) error

	Admins(ctx context.Context) ([]string, error)
	SetAdmins(ctx context.Context, admins []string) error

	Assets(ctx context.Context) ([]string, error)
	SetAssets(ctx context.Context, assets []string) error

	PriceFeed(ctx context.Context, asset string) (string, error)
	SetPriceFeed(ctx context.Context, asset, feed string) error
	PriceFeeds(ctx context.Context) (map[string]string, error)
}

// PropStore owns the propositions book: open propositions accepting stakes
// and finished ones (result declared or cancelled).
type PropStore interface {
	NextID(ctx context.Context) (uint64, error)
	SetNextID(ctx context.Context, id uint64) error

	PutOpen(ctx context.Context, p Proposition) error
	Open(ctx context.Context, id uint64) (Proposition, error)
	DeleteOpen(ctx context.Context, id uint64) error
	ListOpen(ctx context.Context, afterID *uint64, limit int) ([]Proposition, error)

	PutFinished(ctx context.Context, p Proposition) error
	FinishedProp(ctx context.Context, id uint64) (Proposition, error)
	ListFinished(ctx context.Context, afterID *uint64, limit int) ([]Proposition, error)
}

// OutboxStore records the declarative instructions the engine emits for the
// host to execute: fund transfers and reputation credits.
type OutboxStore interface {
	AddTransfer(ctx context.Context, t TransferInstruction) error
	AddReputation(ctx context.Context, c ReputationCredit) error
	PendingTransfers(ctx context.Context, limit int) ([]TransferInstruction, error)
	MarkTransferExecuted(ctx context.Context, id string) error
}

// Stores bundles every store a single transaction can touch. The rounds book
// and the propositions book share store shapes but not rows.
type Stores struct {
	Rounds RoundStore
	Params ParamsStore
	State  StateStore

	Positions PositionStore
	Claims    ClaimStore
	Spend     SpendStore

	Props         PropStore
	PropPositions PositionStore
	PropClaims    ClaimStore
	PropSpend     SpendStore

	Outbox OutboxStore
}

// Ledger is the storage adapter boundary: each Tx callback runs against a
// transaction-scoped Stores bundle and commits all of its writes or none of
// them. View is the read-only variant.
type Ledger interface {
	Tx(ctx context.Context, fn func(Stores) error) error
	View(ctx context.Context, fn func(Stores) error) error
}
