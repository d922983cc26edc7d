package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle of a payment request. A request moves no
// money itself; accepting it produces a P2P transfer from payer to requester.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusCompleted RequestStatus = "COMPLETED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
	RequestStatusExpired   RequestStatus = "EXPIRED"
)

// PaymentRequest asks a payer (or anyone, if PayerID is nil) to send
// Amount minor units to the requester before ExpiresAt.
type PaymentRequest struct {
	ID          uuid.UUID     `json:"id"`
	RequesterID string        `json:"requester_id"`
	PayerID     *string       `json:"payer_id,omitempty"`
	Amount      int64         `json:"amount"` // minor units
	Status      RequestStatus `json:"status"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	// TransferID links the transfer created when the request was accepted.
	TransferID *uuid.UUID `json:"transfer_id,omitempty"`
}

// Expired reports whether a still-pending request has passed its deadline.
func (r *PaymentRequest) Expired(now time.Time) bool {
	return r.Status == RequestStatusPending && r.ExpiresAt.Before(now)
}

// AddressedTo reports whether userID may accept this request.
func (r *PaymentRequest) AddressedTo(userID string) bool {
	return r.PayerID == nil || *r.PayerID == userID
}
