package domain

import (
	"time"

	"github.com/google/uuid"
)

// SplitStatus is the state of a bill split as a whole.
type SplitStatus string

const (
	SplitStatusOpen    SplitStatus = "OPEN"
	SplitStatusSettled SplitStatus = "SETTLED"
)

// ParticipantStatus is the state of one participant's obligation.
type ParticipantStatus string

const (
	ParticipantStatusPending  ParticipantStatus = "PENDING"
	ParticipantStatusPaid     ParticipantStatus = "PAID"
	ParticipantStatusDeclined ParticipantStatus = "DECLINED"
)

// BillSplit is a creator-owned split of a bill into participant obligations.
// The split settles once every obligation is PAID or DECLINED.
type BillSplit struct {
	ID          uuid.UUID   `json:"id"`
	CreatorID   string      `json:"creator_id"`
	Description *string     `json:"description,omitempty"`
	Total       int64       `json:"total"` // minor units
	Status      SplitStatus `json:"status"`
	// TransactionID optionally references the payment the creator fronted.
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

// BillSplitParticipant is one participant's share of a split.
type BillSplitParticipant struct {
	ID         uuid.UUID         `json:"id"`
	SplitID    uuid.UUID         `json:"split_id"`
	UserID     string            `json:"user_id"`
	AmountOwed int64             `json:"amount_owed"` // minor units, > 0
	Status     ParticipantStatus `json:"status"`
	// TransferID links the transfer that paid this share.
	TransferID *uuid.UUID `json:"transfer_id,omitempty"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

// Settled reports whether every obligation reached a terminal state.
func Settled(participants []BillSplitParticipant) bool {
	for i := range participants {
		if participants[i].Status == ParticipantStatusPending {
			return false
		}
	}
	return len(participants) > 0
}
