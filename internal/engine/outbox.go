package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// PendingTransfers returns transfer instructions the host has not executed
// yet, oldest first.
func (e *Engine) PendingTransfers(ctx context.Context, limit int) ([]domain.TransferInstruction, error) {
	limit = domain.ClampLimit(limit)
	var out []domain.TransferInstruction
	err := e.ledger.View(ctx, func(s domain.Stores) error {
		var err error
		out, err = s.Outbox.PendingTransfers(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("engine: pending transfers: %w", err)
	}
	return out, nil
}

// MarkTransferExecuted records that the host has executed a transfer
// instruction. Unknown ids return domain.ErrNotFound.
func (e *Engine) MarkTransferExecuted(ctx context.Context, id string) error {
	err := e.ledger.Tx(ctx, func(s domain.Stores) error {
		return s.Outbox.MarkTransferExecuted(ctx, id)
	})
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "transfer executed", slog.String("transfer_id", id))
	return nil
}
