package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferInstruction is a declarative order to move funds. The engine never
// moves funds itself: instructions are written to the outbox atomically with
// the rest of the transaction, and the host executes them (rejecting the
// whole transaction if one cannot be satisfied).
type TransferInstruction struct {
	ID        string
	Recipient string
	Amount    uint64
	Token     string
	Reason    string
	CreatedAt time.Time
}

// NewTransfer builds a transfer instruction with a fresh id.
func NewTransfer(recipient string, amount uint64, token, reason string, now time.Time) TransferInstruction {
	return TransferInstruction{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Amount:    amount,
		Token:     token,
		Reason:    reason,
		CreatedAt: now,
	}
}

// ReputationCredit is a declarative order to credit experience (and
// optionally elo) to a user on the companion reputation service. Emitted on
// every successful stake and every commissionable claim; a failure to record
// it fails the whole transaction.
type ReputationCredit struct {
	ID         string
	User       string
	Experience uint64
	Elo        *int64
	Reason     string
	CreatedAt  time.Time
}

// NewReputationCredit builds a reputation credit with a fresh id.
func NewReputationCredit(user string, experience uint64, reason string, now time.Time) ReputationCredit {
	return ReputationCredit{
		ID:         uuid.NewString(),
		User:       user,
		Experience: experience,
		Reason:     reason,
		CreatedAt:  now,
	}
}
