package postgres

import (
	"context"
	"fmt"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// OutboxStore implements domain.OutboxStore. Instructions commit atomically
// with the transaction that produced them; the host marks transfers executed
// out of band.
type OutboxStore struct {
	q querier
}

func (s *OutboxStore) AddTransfer(ctx context.Context, t domain.TransferInstruction) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO outbox_transfers (id, recipient, amount, token, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Recipient, int64(t.Amount), t.Token, t.Reason, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: add transfer: %w", err)
	}
	return nil
}

func (s *OutboxStore) AddReputation(ctx context.Context, c domain.ReputationCredit) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO outbox_reputation (id, account, experience, elo, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.User, int64(c.Experience), c.Elo, c.Reason, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: add reputation credit: %w", err)
	}
	return nil
}

func (s *OutboxStore) PendingTransfers(ctx context.Context, limit int) ([]domain.TransferInstruction, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, recipient, amount, token, reason, created_at
		FROM outbox_transfers
		WHERE executed_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending transfers: %w", err)
	}
	defer rows.Close()

	var out []domain.TransferInstruction
	for rows.Next() {
		var (
			t      domain.TransferInstruction
			amount int64
		)
		if err := rows.Scan(&t.ID, &t.Recipient, &amount, &t.Token, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan transfer: %w", err)
		}
		t.Amount = uint64(amount)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *OutboxStore) MarkTransferExecuted(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx,
		"UPDATE outbox_transfers SET executed_at = NOW() WHERE id = $1 AND executed_at IS NULL",
		id)
	if err != nil {
		return fmt.Errorf("postgres: mark transfer executed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
