package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypePayment  TransactionType = "PAYMENT"
	TransactionTypeP2P      TransactionType = "P2P"
	TransactionTypeFund     TransactionType = "FUND"
	TransactionTypeWithdraw TransactionType = "WITHDRAW"
)

// TransactionDirection records which side of the wallet the amount hit.
// A P2P transfer posts a DEBIT row on the sender wallet and a CREDIT row
// on the recipient wallet so per-wallet ledger sums reconcile.
type TransactionDirection string

const (
	DirectionDebit  TransactionDirection = "DEBIT"
	DirectionCredit TransactionDirection = "CREDIT"
)

// TransactionStatus represents the lifecycle state of a transaction.
// PENDING is the only non-terminal state; records are appended PENDING
// and transition exactly once to COMPLETED or FAILED.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is an immutable ledger entry tied to exactly one wallet.
// Once written, only Status, CompletedAt and FailureReason may change,
// and only through the PENDING-guarded transition.
type Transaction struct {
	ID            uuid.UUID            `json:"id"`
	WalletID      uuid.UUID            `json:"wallet_id"`
	Type          TransactionType      `json:"type"`
	Direction     TransactionDirection `json:"direction"`
	Amount        int64                `json:"amount"` // minor units, > 0
	Status        TransactionStatus    `json:"status"`
	ReferenceID   *string              `json:"reference_id,omitempty"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the transaction reached a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}

// SignedAmount is the amount as it applies to the wallet balance:
// negative for debits, positive for credits.
func (t *Transaction) SignedAmount() int64 {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}
