package memory

import (
	"context"

	"github.com/oddsworks/parimutuel/internal/domain"
)

type outboxStore struct {
	st *state
}

func (o *outboxStore) AddTransfer(ctx context.Context, t domain.TransferInstruction) error {
	o.st.transfers = append(o.st.transfers, t)
	return nil
}

func (o *outboxStore) AddReputation(ctx context.Context, c domain.ReputationCredit) error {
	o.st.reputation = append(o.st.reputation, c)
	return nil
}

func (o *outboxStore) PendingTransfers(ctx context.Context, limit int) ([]domain.TransferInstruction, error) {
	out := make([]domain.TransferInstruction, 0, limit)
	for _, t := range o.st.transfers {
		if o.st.executed[t.ID] {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *outboxStore) MarkTransferExecuted(ctx context.Context, id string) error {
	for _, t := range o.st.transfers {
		if t.ID == id {
			o.st.executed[id] = true
			return nil
		}
	}
	return domain.ErrNotFound
}
