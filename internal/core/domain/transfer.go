package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferStatus is the lifecycle of a P2P transfer. It is tracked
// independently of the parent transaction status but must stay consistent
// with it: a transfer is COMPLETED iff its sender transaction is COMPLETED.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusFailed    TransferStatus = "FAILED"
	TransferStatusCancelled TransferStatus = "CANCELLED"
)

// P2PTransfer is the 1:1 extension of the sender-side P2P transaction.
// CreditTransactionID links the recipient-side ledger row.
type P2PTransfer struct {
	ID                  uuid.UUID      `json:"id"`
	TransactionID       uuid.UUID      `json:"transaction_id"` // sender DEBIT row
	CreditTransactionID uuid.UUID      `json:"credit_transaction_id"`
	SenderID            string         `json:"sender_id"`
	RecipientID         string         `json:"recipient_id"`
	Amount              int64          `json:"amount"` // minor units
	Status              TransferStatus `json:"status"`
	ExpiresAt           time.Time      `json:"expires_at"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// IsTerminal returns true once the transfer can no longer change state.
func (t *P2PTransfer) IsTerminal() bool {
	return t.Status != TransferStatusPending
}

// Expired reports whether a still-pending transfer has passed its deadline.
func (t *P2PTransfer) Expired(now time.Time) bool {
	return t.Status == TransferStatusPending && t.ExpiresAt.Before(now)
}
