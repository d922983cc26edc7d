package ports

import (
	"context"
	"errors"
	"time"

	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"

	"github.com/google/uuid"
)

// ErrDuplicateKey is returned by IdempotencyRepository.Create when the key
// already exists. The caller lost the insert race and must replay the
// recorded outcome instead.
var ErrDuplicateKey = errors.New("idempotency key already exists")

// --- External collaborators ---

// AuthOutcome is the result of an external authorization attempt.
type AuthOutcome int

const (
	AuthApproved AuthOutcome = iota
	AuthDeclined
)

// AuthResult carries the authorizer's decision. Reason is set on decline.
type AuthResult struct {
	Outcome AuthOutcome
	Reason  string
}

// PaymentAuthorizer is the external payment-authorization collaborator.
// A returned error is treated as transient and retried a bounded number
// of times; a decline is final and triggers the compensation path.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, transactionID uuid.UUID, amount int64, methodRef string) (AuthResult, error)
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore guards NFC tap nonces against replay.
type NonceStore interface {
	// CheckAndSet atomically records the nonce if unseen.
	// Returns true if the nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, merchantID string, nonce string, ttl time.Duration) (bool, error)
}

// TokenService resolves the caller-authenticated user identity.
type TokenService interface {
	Generate(userID string) (string, time.Time, error)
	Validate(tokenString string) (string, error) // returns user ID
}

// --- Service ports (business logic) ---

// PaymentResult is the outcome of a balance-mutating engine operation.
type PaymentResult struct {
	TransactionID uuid.UUID                `json:"transaction_id"`
	Status        domain.TransactionStatus `json:"status"`
	Amount        int64                    `json:"amount"`
	NewBalance    int64                    `json:"new_balance"`
}

// MerchantPaymentInput is the validated input for a merchant payment.
// Amount is the total debit in minor units; Tip is an informational
// breakdown of that total, not an extra charge.
type MerchantPaymentInput struct {
	UserID         string             `json:"user_id"`
	MerchantID     uuid.UUID          `json:"merchant_id"`
	Amount         int64              `json:"amount"`
	Tip            int64              `json:"tip"`
	PaymentType    domain.PaymentType `json:"payment_type"`
	QRCodeID       *string            `json:"qr_code_id,omitempty"`
	NFCNonce       *string            `json:"nfc_nonce,omitempty"`
	MethodRef      string             `json:"method_ref"`
	IdempotencyKey string             `json:"-"`
}

// LedgerService is the ledger transaction engine for merchant payments.
type LedgerService interface {
	InitiateMerchantPayment(ctx context.Context, in MerchantPaymentInput) (*PaymentResult, error)
	CompletePayment(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	FailPayment(ctx context.Context, transactionID uuid.UUID, reason string) (*domain.Transaction, error)
	GetPayment(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, *domain.MerchantPaymentDetail, error)
}

// P2PTransferInput is the validated input for a peer-to-peer transfer.
type P2PTransferInput struct {
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Amount         int64     `json:"amount"`
	ExpiresAt      time.Time `json:"expires_at"`
	IdempotencyKey string    `json:"-"`
}

// TransferResult extends PaymentResult with the transfer detail ID.
type TransferResult struct {
	PaymentResult
	TransferID uuid.UUID `json:"transfer_id"`
}

// TransferService executes peer-to-peer transfers.
type TransferService interface {
	InitiateP2PTransfer(ctx context.Context, in P2PTransferInput) (*TransferResult, error)
	GetTransfer(ctx context.Context, id uuid.UUID) (*domain.P2PTransfer, error)
	ListTransfers(ctx context.Context, userID string, limit, offset int) ([]domain.P2PTransfer, error)
}

// HistoryItem joins a ledger record with its type-specific detail row.
type HistoryItem struct {
	Transaction domain.Transaction            `json:"transaction"`
	Payment     *domain.MerchantPaymentDetail `json:"payment,omitempty"`
	Transfer    *domain.P2PTransfer           `json:"transfer,omitempty"`
}

// WalletService manages wallet lifecycle, funding and history.
type WalletService interface {
	CreateWallet(ctx context.Context, userID, currency string) (*domain.Wallet, error)
	GetBalance(ctx context.Context, userID string) (*domain.Wallet, error)
	GetHistory(ctx context.Context, userID string, limit, offset int) ([]HistoryItem, error)
	Fund(ctx context.Context, userID string, amount int64, sourceRef string, idempotencyKey string) (*PaymentResult, error)
	Withdraw(ctx context.Context, userID string, amount int64, destinationRef string, idempotencyKey string) (*PaymentResult, error)
}

// CreateRequestInput is the input for creating a payment request.
type CreateRequestInput struct {
	RequesterID string    `json:"requester_id"`
	PayerID     *string   `json:"payer_id,omitempty"`
	Amount      int64     `json:"amount"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RequestService manages payment requests.
type RequestService interface {
	CreateRequest(ctx context.Context, in CreateRequestInput) (*domain.PaymentRequest, error)
	AcceptRequest(ctx context.Context, requestID uuid.UUID, payerID, idempotencyKey string) (*TransferResult, error)
	CancelRequest(ctx context.Context, requestID uuid.UUID, requesterID string) (*domain.PaymentRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error)
	ListRequests(ctx context.Context, userID string, limit, offset int) ([]domain.PaymentRequest, error)
}

// SplitShare is one participant's share when creating a bill split.
type SplitShare struct {
	UserID     string `json:"user_id"`
	AmountOwed int64  `json:"amount_owed"`
}

// CreateSplitInput is the input for creating a bill split.
type CreateSplitInput struct {
	CreatorID     string       `json:"creator_id"`
	Description   *string      `json:"description,omitempty"`
	Shares        []SplitShare `json:"shares"`
	TransactionID *uuid.UUID   `json:"transaction_id,omitempty"`
}

// BillSplitService manages bill splits and their settlement.
type BillSplitService interface {
	CreateSplit(ctx context.Context, in CreateSplitInput) (*domain.BillSplit, []domain.BillSplitParticipant, error)
	PayShare(ctx context.Context, splitID uuid.UUID, userID, idempotencyKey string) (*TransferResult, error)
	DeclineShare(ctx context.Context, splitID uuid.UUID, userID string) error
	GetSplit(ctx context.Context, id uuid.UUID) (*domain.BillSplit, []domain.BillSplitParticipant, error)
	ListSplits(ctx context.Context, userID string, limit, offset int) ([]domain.BillSplit, error)
}
