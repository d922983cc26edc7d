package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentType is the tap mechanism used for a merchant payment.
type PaymentType string

const (
	PaymentTypeNFC PaymentType = "NFC"
	PaymentTypeQR  PaymentType = "QR"
)

// Merchant is a registered payee. The engine only needs to know a merchant
// exists and is active before moving funds toward it.
type Merchant struct {
	ID           uuid.UUID `json:"id"`
	BusinessName string    `json:"business_name"`
	Tap2ID       string    `json:"tap2_id"`
	BusinessType *string   `json:"business_type,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// MerchantPaymentDetail is the 1:1 extension of a PAYMENT transaction.
// Tip is an informational breakdown of the already-debited amount,
// never debited on its own.
type MerchantPaymentDetail struct {
	TransactionID uuid.UUID   `json:"transaction_id"`
	MerchantID    uuid.UUID   `json:"merchant_id"`
	PaymentType   PaymentType `json:"payment_type"`
	QRCodeID      *string     `json:"qr_code_id,omitempty"`
	NFCNonce      *string     `json:"nfc_nonce,omitempty"`
	Tip           int64       `json:"tip"` // minor units, >= 0
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}
