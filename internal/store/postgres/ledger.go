package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// Book discriminators for the tables shared by the two books.
const (
	bookRounds = "rounds"
	bookProps  = "props"
)

// Counter names for the sequential id allocators.
const (
	counterRounds = "rounds"
	counterProps  = "props"
)

// querier is the query surface shared by *pgxpool.Pool and pgx.Tx, so the
// same store code serves both transactional and plain reads.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger implements domain.Ledger on a pgx connection pool.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger over the client's pool.
func NewLedger(client *Client) *Ledger {
	return &Ledger{pool: client.Pool()}
}

func bind(q querier) domain.Stores {
	return domain.Stores{
		Rounds:        &RoundStore{q: q},
		Params:        &ParamsStore{q: q},
		State:         &StateStore{q: q},
		Positions:     &PositionStore{q: q, book: bookRounds},
		Claims:        &ClaimStore{q: q, book: bookRounds},
		Spend:         &SpendStore{q: q, book: bookRounds},
		Props:         &PropStore{q: q},
		PropPositions: &PositionStore{q: q, book: bookProps},
		PropClaims:    &ClaimStore{q: q, book: bookProps},
		PropSpend:     &SpendStore{q: q, book: bookProps},
		Outbox:        &OutboxStore{q: q},
	}
}

// Tx runs fn inside one serializable database transaction: every store write
// the callback makes commits atomically or not at all.
func (l *Ledger) Tx(ctx context.Context, fn func(domain.Stores) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := pgx.BeginTxFunc(ctx, l.pool, opts, func(tx pgx.Tx) error {
		return fn(bind(tx))
	})
	if err != nil {
		return fmt.Errorf("postgres: tx: %w", err)
	}
	return nil
}

// View runs fn inside a read-only transaction so multi-store reads observe a
// consistent snapshot.
func (l *Ledger) View(ctx context.Context, fn func(domain.Stores) error) error {
	opts := pgx.TxOptions{AccessMode: pgx.ReadOnly}
	err := pgx.BeginTxFunc(ctx, l.pool, opts, func(tx pgx.Tx) error {
		return fn(bind(tx))
	})
	if err != nil {
		return fmt.Errorf("postgres: view: %w", err)
	}
	return nil
}

// nextCounter reads a named id allocator.
func nextCounter(ctx context.Context, q querier, name string) (uint64, error) {
	var next int64
	err := q.QueryRow(ctx, "SELECT next_id FROM counters WHERE name = $1", name).Scan(&next)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: read counter %s: %w", name, err)
	}
	return uint64(next), nil
}

// setCounter sets a named id allocator, creating it on first use.
func setCounter(ctx context.Context, q querier, name string, id uint64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO counters (name, next_id) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET next_id = EXCLUDED.next_id`,
		name, int64(id),
	)
	if err != nil {
		return fmt.Errorf("postgres: set counter %s: %w", name, err)
	}
	return nil
}
