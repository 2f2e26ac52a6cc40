package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// PositionStore implements domain.PositionStore for one book; the book
// column keeps round and proposition positions in the same table without
// mixing rows.
type PositionStore struct {
	q    querier
	book string
}

const positionSelectCols = `round_id, account, outcome, amount, placed_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p      domain.Position
		id     int64
		amount int64
	)
	err := row.Scan(&id, &p.User, &p.Outcome, &amount, &p.PlacedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Position{}, err
	}
	p.RoundID = uint64(id)
	p.Amount = uint64(amount)
	return p, nil
}

func (s *PositionStore) Get(ctx context.Context, roundID uint64, user string) (domain.Position, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE book = $1 AND round_id = $2 AND account = $3`,
		s.book, int64(roundID), user)
	p, err := scanPosition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position: %w", err)
	}
	return p, nil
}

func (s *PositionStore) Put(ctx context.Context, p domain.Position) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO positions (book, round_id, account, outcome, amount, placed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (book, round_id, account) DO UPDATE SET
			outcome    = EXCLUDED.outcome,
			amount     = EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at`,
		s.book, int64(p.RoundID), p.User, p.Outcome, int64(p.Amount), p.PlacedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put position: %w", err)
	}
	return nil
}

func (s *PositionStore) Delete(ctx context.Context, roundID uint64, user string) error {
	tag, err := s.q.Exec(ctx,
		"DELETE FROM positions WHERE book = $1 AND round_id = $2 AND account = $3",
		s.book, int64(roundID), user)
	if err != nil {
		return fmt.Errorf("postgres: delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PositionStore) ListByUser(ctx context.Context, user string, afterRound *uint64, limit int) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE book = $1 AND account = $2`
	args := []any{s.book, user}
	if afterRound != nil {
		query += " AND round_id > $3"
		args = append(args, int64(*afterRound))
	}
	query += fmt.Sprintf(" ORDER BY round_id LIMIT $%d", len(args)+1)
	args = append(args, limit)

	return s.list(ctx, query, args...)
}

func (s *PositionStore) ListByRound(ctx context.Context, roundID uint64, afterUser string, limit int) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE book = $1 AND round_id = $2`
	args := []any{s.book, int64(roundID)}
	if afterUser != "" {
		query += " AND account > $3"
		args = append(args, afterUser)
	}
	query += fmt.Sprintf(" ORDER BY account LIMIT $%d", len(args)+1)
	args = append(args, limit)

	return s.list(ctx, query, args...)
}

func (s *PositionStore) AllByUser(ctx context.Context, user string) ([]domain.Position, error) {
	return s.list(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE book = $1 AND account = $2 ORDER BY round_id`,
		s.book, user)
}

func (s *PositionStore) list(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClaimStore implements domain.ClaimStore for one book.
type ClaimStore struct {
	q    querier
	book string
}

func (s *ClaimStore) Put(ctx context.Context, c domain.ClaimRecord) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO claims (book, round_id, account, amount, claimed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		s.book, int64(c.RoundID), c.User, int64(c.Amount), c.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put claim: %w", err)
	}
	return nil
}

func (s *ClaimStore) ListByUser(ctx context.Context, user string, afterRound *uint64, limit int) ([]domain.ClaimRecord, error) {
	query := `SELECT round_id, account, amount, claimed_at FROM claims WHERE book = $1 AND account = $2`
	args := []any{s.book, user}
	if afterRound != nil {
		query += " AND round_id > $3"
		args = append(args, int64(*afterRound))
	}
	query += fmt.Sprintf(" ORDER BY round_id LIMIT $%d", len(args)+1)
	args = append(args, limit)

	return s.list(ctx, query, args...)
}

func (s *ClaimStore) ListByRound(ctx context.Context, roundID uint64, afterUser string, limit int) ([]domain.ClaimRecord, error) {
	query := `SELECT round_id, account, amount, claimed_at FROM claims WHERE book = $1 AND round_id = $2`
	args := []any{s.book, int64(roundID)}
	if afterUser != "" {
		query += " AND account > $3"
		args = append(args, afterUser)
	}
	query += fmt.Sprintf(" ORDER BY account LIMIT $%d", len(args)+1)
	args = append(args, limit)

	return s.list(ctx, query, args...)
}

func (s *ClaimStore) list(ctx context.Context, query string, args ...any) ([]domain.ClaimRecord, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list claims: %w", err)
	}
	defer rows.Close()

	var out []domain.ClaimRecord
	for rows.Next() {
		var (
			c      domain.ClaimRecord
			id     int64
			amount int64
		)
		if err := rows.Scan(&id, &c.User, &amount, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan claim: %w", err)
		}
		c.RoundID = uint64(id)
		c.Amount = uint64(amount)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SpendStore implements domain.SpendStore for one book.
type SpendStore struct {
	q    querier
	book string
}

func (s *SpendStore) Add(ctx context.Context, user string, amount uint64) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO spend_totals (book, account, total) VALUES ($1, $2, $3)
		ON CONFLICT (book, account) DO UPDATE SET total = spend_totals.total + EXCLUDED.total`,
		s.book, user, int64(amount),
	)
	if err != nil {
		return fmt.Errorf("postgres: add spend: %w", err)
	}
	return nil
}

func (s *SpendStore) Total(ctx context.Context, user string) (uint64, error) {
	var total int64
	err := s.q.QueryRow(ctx,
		"SELECT total FROM spend_totals WHERE book = $1 AND account = $2",
		s.book, user).Scan(&total)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: get spend total: %w", err)
	}
	return uint64(total), nil
}
