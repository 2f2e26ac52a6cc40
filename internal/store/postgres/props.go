package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// PropStore implements domain.PropStore. Options and pools are stored as
// JSONB since the option set varies per proposition.
type PropStore struct {
	q querier
}

const (
	propStatusOpen     = "open"
	propStatusFinished = "finished"
)

const propSelectCols = `id, topic, description, image_url, ends_at,
	expected_result_at, options, pools, result, cancelled, num_players, created_at`

func scanProp(row pgx.Row) (domain.Proposition, error) {
	var (
		p            domain.Proposition
		id           int64
		players      int64
		optionsJSON  []byte
		poolsJSON    []byte
	)
	err := row.Scan(
		&id, &p.Topic, &p.Description, &p.ImageURL, &p.EndsAt,
		&p.ExpectedResultAt, &optionsJSON, &poolsJSON,
		&p.Result, &p.Cancelled, &players, &p.CreatedAt,
	)
	if err != nil {
		return domain.Proposition{}, err
	}
	p.ID = uint64(id)
	p.NumPlayers = uint64(players)
	if err := json.Unmarshal(optionsJSON, &p.Options); err != nil {
		return domain.Proposition{}, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(poolsJSON, &p.Pools); err != nil {
		return domain.Proposition{}, fmt.Errorf("decode pools: %w", err)
	}
	return p, nil
}

func (s *PropStore) put(ctx context.Context, p domain.Proposition, status string) error {
	optionsJSON, err := json.Marshal(p.Options)
	if err != nil {
		return fmt.Errorf("postgres: encode prop options: %w", err)
	}
	poolsJSON, err := json.Marshal(p.Pools)
	if err != nil {
		return fmt.Errorf("postgres: encode prop pools: %w", err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO propositions (
			id, status, topic, description, image_url, ends_at,
			expected_result_at, options, pools, result, cancelled,
			num_players, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status             = EXCLUDED.status,
			topic              = EXCLUDED.topic,
			description        = EXCLUDED.description,
			image_url          = EXCLUDED.image_url,
			ends_at            = EXCLUDED.ends_at,
			expected_result_at = EXCLUDED.expected_result_at,
			options            = EXCLUDED.options,
			pools              = EXCLUDED.pools,
			result             = EXCLUDED.result,
			cancelled          = EXCLUDED.cancelled,
			num_players        = EXCLUDED.num_players`,
		int64(p.ID), status, p.Topic, p.Description, p.ImageURL, p.EndsAt,
		p.ExpectedResultAt, optionsJSON, poolsJSON, p.Result, p.Cancelled,
		int64(p.NumPlayers), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put proposition %d: %w", p.ID, err)
	}
	return nil
}

func (s *PropStore) get(ctx context.Context, id uint64, status string) (domain.Proposition, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+propSelectCols+` FROM propositions WHERE id = $1 AND status = $2`,
		int64(id), status)
	p, err := scanProp(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Proposition{}, domain.ErrNotFound
		}
		return domain.Proposition{}, fmt.Errorf("postgres: get proposition %d: %w", id, err)
	}
	return p, nil
}

func (s *PropStore) listByStatus(ctx context.Context, status string, afterID *uint64, limit int) ([]domain.Proposition, error) {
	query := `SELECT ` + propSelectCols + ` FROM propositions WHERE status = $1`
	args := []any{status}
	if afterID != nil {
		query += " AND id > $2"
		args = append(args, int64(*afterID))
	}
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list propositions: %w", err)
	}
	defer rows.Close()

	var out []domain.Proposition
	for rows.Next() {
		p, err := scanProp(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan proposition: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PropStore) PutOpen(ctx context.Context, p domain.Proposition) error {
	return s.put(ctx, p, propStatusOpen)
}

func (s *PropStore) Open(ctx context.Context, id uint64) (domain.Proposition, error) {
	return s.get(ctx, id, propStatusOpen)
}

// DeleteOpen is a no-op: PutFinished moves the row to the finished status
// under the same id, which already vacates the open set.
func (s *PropStore) DeleteOpen(ctx context.Context, id uint64) error {
	return nil
}

func (s *PropStore) ListOpen(ctx context.Context, afterID *uint64, limit int) ([]domain.Proposition, error) {
	return s.listByStatus(ctx, propStatusOpen, afterID, limit)
}

func (s *PropStore) PutFinished(ctx context.Context, p domain.Proposition) error {
	return s.put(ctx, p, propStatusFinished)
}

func (s *PropStore) FinishedProp(ctx context.Context, id uint64) (domain.Proposition, error) {
	return s.get(ctx, id, propStatusFinished)
}

func (s *PropStore) ListFinished(ctx context.Context, afterID *uint64, limit int) ([]domain.Proposition, error) {
	return s.listByStatus(ctx, propStatusFinished, afterID, limit)
}

func (s *PropStore) NextID(ctx context.Context) (uint64, error) {
	return nextCounter(ctx, s.q, counterProps)
}

func (s *PropStore) SetNextID(ctx context.Context, id uint64) error {
	return setCounter(ctx, s.q, counterProps, id)
}
