package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// ParamsStore implements domain.ParamsStore as a JSONB singleton row.
type ParamsStore struct {
	q querier
}

func (s *ParamsStore) Get(ctx context.Context) (domain.Params, error) {
	var payload []byte
	err := s.q.QueryRow(ctx, "SELECT payload FROM engine_params WHERE singleton").Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Params{}, domain.ErrNotFound
		}
		return domain.Params{}, fmt.Errorf("postgres: get params: %w", err)
	}
	var p domain.Params
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Params{}, fmt.Errorf("postgres: decode params: %w", err)
	}
	return p, nil
}

func (s *ParamsStore) Put(ctx context.Context, p domain.Params) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: encode params: %w", err)
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO engine_params (singleton, payload) VALUES (TRUE, $1)
		ON CONFLICT (singleton) DO UPDATE SET payload = EXCLUDED.payload`,
		payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: put params: %w", err)
	}
	return nil
}

// StateStore implements domain.StateStore: small JSONB singletons keyed by
// name, plus the price feed registry table.
type StateStore struct {
	q querier
}

const (
	stateKeyHalted = "halted"
	stateKeyAdmins = "admins"
	stateKeyAssets = "assets"
)

func (s *StateStore) getJSON(ctx context.Context, key string, out any) error {
	var payload []byte
	err := s.q.QueryRow(ctx, "SELECT payload FROM engine_state WHERE key = $1", key).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: get state %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("postgres: decode state %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) putJSON(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("postgres: encode state %s: %w", key, err)
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO engine_state (key, payload) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload`,
		key, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: put state %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) Halted(ctx context.Context) (bool, error) {
	var halted bool
	err := s.getJSON(ctx, stateKeyHalted, &halted)
	if err == domain.ErrNotFound {
		return false, nil
	}
	return halted, err
}

func (s *StateStore) SetHalted(ctx context.Context, halted bool) error {
	return s.putJSON(ctx, stateKeyHalted, halted)
}

func (s *StateStore) Admins(ctx context.Context) ([]string, error) {
	var admins []string
	err := s.getJSON(ctx, stateKeyAdmins, &admins)
	if err == domain.ErrNotFound {
		return nil, nil
	}
	return admins, err
}

func (s *StateStore) SetAdmins(ctx context.Context, admins []string) error {
	return s.putJSON(ctx, stateKeyAdmins, admins)
}

func (s *StateStore) Assets(ctx context.Context) ([]string, error) {
	var assets []string
	err := s.getJSON(ctx, stateKeyAssets, &assets)
	if err == domain.ErrNotFound {
		return nil, nil
	}
	return assets, err
}

func (s *StateStore) SetAssets(ctx context.Context, assets []string) error {
	return s.putJSON(ctx, stateKeyAssets, assets)
}

func (s *StateStore) PriceFeed(ctx context.Context, asset string) (string, error) {
	var feed string
	err := s.q.QueryRow(ctx, "SELECT feed FROM price_feeds WHERE asset = $1", asset).Scan(&feed)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("postgres: get price feed %s: %w", asset, err)
	}
	return feed, nil
}

func (s *StateStore) SetPriceFeed(ctx context.Context, asset, feed string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO price_feeds (asset, feed) VALUES ($1, $2)
		ON CONFLICT (asset) DO UPDATE SET feed = EXCLUDED.feed`,
		asset, feed,
	)
	if err != nil {
		return fmt.Errorf("postgres: set price feed %s: %w", asset, err)
	}
	return nil
}

func (s *StateStore) PriceFeeds(ctx context.Context) (map[string]string, error) {
	rows, err := s.q.Query(ctx, "SELECT asset, feed FROM price_feeds ORDER BY asset")
	if err != nil {
		return nil, fmt.Errorf("postgres: list price feeds: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var asset, feed string
		if err := rows.Scan(&asset, &feed); err != nil {
			return nil, fmt.Errorf("postgres: scan price feed: %w", err)
		}
		out[asset] = feed
	}
	return out, rows.Err()
}
