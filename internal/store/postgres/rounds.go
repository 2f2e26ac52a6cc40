package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// RoundStore implements domain.RoundStore. The bidding and live slots are
// modelled as phases with partial unique indexes, so the database itself
// enforces the single-bidding, single-live invariant.
type RoundStore struct {
	q querier
}

const roundSelectCols = `id, asset, phase, bid_time, open_time, close_time,
	bull_pool, bear_pool, open_price, close_price, winner, cancelled`

func scanRound(row pgx.Row) (domain.Round, error) {
	var (
		r          domain.Round
		id         int64
		phase      string
		bull, bear int64
	)
	err := row.Scan(
		&id, &r.Asset, &phase, &r.BidTime, &r.OpenTime, &r.CloseTime,
		&bull, &bear, &r.OpenPrice, &r.ClosePrice, &r.Winner, &r.Cancelled,
	)
	if err != nil {
		return domain.Round{}, err
	}
	r.ID = uint64(id)
	r.Phase = domain.RoundPhase(phase)
	r.Pools = map[string]uint64{
		domain.SideBull: uint64(bull),
		domain.SideBear: uint64(bear),
	}
	return r, nil
}

func (s *RoundStore) byPhase(ctx context.Context, phase domain.RoundPhase) (domain.Round, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+roundSelectCols+` FROM rounds WHERE phase = $1`, string(phase))
	r, err := scanRound(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: get %s round: %w", phase, err)
	}
	return r, nil
}

func (s *RoundStore) Bidding(ctx context.Context) (domain.Round, error) {
	return s.byPhase(ctx, domain.PhaseBidding)
}

func (s *RoundStore) Live(ctx context.Context) (domain.Round, error) {
	return s.byPhase(ctx, domain.PhaseLive)
}

// save upserts a round under its id, moving it between phases in place.
func (s *RoundStore) save(ctx context.Context, r domain.Round) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO rounds (
			id, asset, phase, bid_time, open_time, close_time,
			bull_pool, bear_pool, open_price, close_price, winner, cancelled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			phase       = EXCLUDED.phase,
			open_time   = EXCLUDED.open_time,
			close_time  = EXCLUDED.close_time,
			bull_pool   = EXCLUDED.bull_pool,
			bear_pool   = EXCLUDED.bear_pool,
			open_price  = EXCLUDED.open_price,
			close_price = EXCLUDED.close_price,
			winner      = EXCLUDED.winner,
			cancelled   = EXCLUDED.cancelled`,
		int64(r.ID), r.Asset, string(r.Phase), r.BidTime, r.OpenTime, r.CloseTime,
		int64(r.Pools[domain.SideBull]), int64(r.Pools[domain.SideBear]),
		r.OpenPrice, r.ClosePrice, r.Winner, r.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("postgres: save round %d: %w", r.ID, err)
	}
	return nil
}

func (s *RoundStore) SaveBidding(ctx context.Context, r domain.Round) error {
	r.Phase = domain.PhaseBidding
	return s.save(ctx, r)
}

func (s *RoundStore) SaveLive(ctx context.Context, r domain.Round) error {
	r.Phase = domain.PhaseLive
	return s.save(ctx, r)
}

func (s *RoundStore) SaveFinished(ctx context.Context, r domain.Round) error {
	r.Phase = domain.PhaseFinished
	return s.save(ctx, r)
}

// ClearBidding is a no-op here: saving the round under another phase already
// vacated the slot, and a bidding round is never deleted outright.
func (s *RoundStore) ClearBidding(ctx context.Context) error {
	return nil
}

func (s *RoundStore) ClearLive(ctx context.Context) error {
	return nil
}

func (s *RoundStore) Finished(ctx context.Context, id uint64) (domain.Round, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+roundSelectCols+` FROM rounds WHERE id = $1 AND phase = 'finished'`,
		int64(id))
	r, err := scanRound(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: get finished round %d: %w", id, err)
	}
	return r, nil
}

func (s *RoundStore) ListFinishedBefore(ctx context.Context, beforeID uint64, limit int) ([]domain.Round, error) {
	query := `SELECT ` + roundSelectCols + ` FROM rounds WHERE phase = 'finished'`
	args := []any{}
	if beforeID > 0 {
		query += " AND id < $1"
		args = append(args, int64(beforeID))
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list finished rounds: %w", err)
	}
	defer rows.Close()

	var out []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan finished round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RoundStore) DeleteFinished(ctx context.Context, id uint64) error {
	tag, err := s.q.Exec(ctx,
		"DELETE FROM rounds WHERE id = $1 AND phase = 'finished'", int64(id))
	if err != nil {
		return fmt.Errorf("postgres: delete finished round %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *RoundStore) NextID(ctx context.Context) (uint64, error) {
	return nextCounter(ctx, s.q, counterRounds)
}

func (s *RoundStore) SetNextID(ctx context.Context, id uint64) error {
	return setCounter(ctx, s.q, counterRounds, id)
}
