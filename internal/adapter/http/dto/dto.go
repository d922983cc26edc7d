package dto

import "time"

// IssueTokenRequest is the request body for issuing an access token.
type IssueTokenRequest struct {
	UserID string `json:"user_id" binding:"required,min=1,max=64,safe_id"`
}

// IssueTokenResponse is the response body for a freshly issued token.
type IssueTokenResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreateWalletRequest is the request body for wallet creation.
type CreateWalletRequest struct {
	Currency string `json:"currency" binding:"omitempty,len=3,uppercase"`
}

// WalletResponse is the response body for wallet state.
type WalletResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// FundRequest is the request body for funding a wallet.
type FundRequest struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	SourceRef string `json:"source_ref" binding:"required,max=100"`
}

// WithdrawRequest is the request body for withdrawing from a wallet.
type WithdrawRequest struct {
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	DestinationRef string `json:"destination_ref" binding:"required,max=100"`
}

// PaymentRequest is the request body for a merchant payment.
type PaymentRequest struct {
	MerchantID  string  `json:"merchant_id" binding:"required,uuid"`
	Amount      int64   `json:"amount" binding:"required,gt=0"`
	Tip         int64   `json:"tip" binding:"omitempty,gte=0"`
	PaymentType string  `json:"payment_type" binding:"required,oneof=QR NFC"`
	QRCodeID    *string `json:"qr_code_id,omitempty" binding:"omitempty,max=100"`
	NFCNonce    *string `json:"nfc_nonce,omitempty" binding:"omitempty,max=100"`
	MethodRef   string  `json:"method_ref" binding:"required,max=100"`
}

// FailPaymentRequest is the request body for failing a pending payment.
type FailPaymentRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// PaymentResultResponse is the response body for a settled money movement.
type PaymentResultResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	NewBalance    int64  `json:"new_balance"`
}

// TransferResultResponse extends PaymentResultResponse with the transfer ID.
type TransferResultResponse struct {
	PaymentResultResponse
	TransferID string `json:"transfer_id"`
}

// TransferRequest is the request body for a P2P transfer.
type TransferRequest struct {
	RecipientID string     `json:"recipient_id" binding:"required,min=1,max=64,safe_id"`
	Amount      int64      `json:"amount" binding:"required,gt=0"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// TransferResponse is the response body for transfer state.
type TransferResponse struct {
	ID                  string     `json:"id"`
	TransactionID       string     `json:"transaction_id"`
	CreditTransactionID string     `json:"credit_transaction_id"`
	SenderID            string     `json:"sender_id"`
	RecipientID         string     `json:"recipient_id"`
	Amount              int64      `json:"amount"`
	Status              string     `json:"status"`
	ExpiresAt           time.Time  `json:"expires_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// TransactionResponse is the response body for a ledger record.
type TransactionResponse struct {
	ID            string     `json:"id"`
	WalletID      string     `json:"wallet_id"`
	Type          string     `json:"type"`
	Direction     string     `json:"direction"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	ReferenceID   *string    `json:"reference_id,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// PaymentDetailResponse is the merchant leg of a payment transaction.
type PaymentDetailResponse struct {
	MerchantID  string     `json:"merchant_id"`
	PaymentType string     `json:"payment_type"`
	Tip         int64      `json:"tip"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HistoryItemResponse is one ledger record joined with its detail.
type HistoryItemResponse struct {
	Transaction TransactionResponse    `json:"transaction"`
	Payment     *PaymentDetailResponse `json:"payment,omitempty"`
	Transfer    *TransferResponse      `json:"transfer,omitempty"`
}

// CreateRequestRequest is the request body for a payment request.
type CreateRequestRequest struct {
	PayerID   *string    `json:"payer_id,omitempty" binding:"omitempty,min=1,max=64,safe_id"`
	Amount    int64      `json:"amount" binding:"required,gt=0"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RequestResponse is the response body for payment request state.
type RequestResponse struct {
	ID          string     `json:"id"`
	RequesterID string     `json:"requester_id"`
	PayerID     *string    `json:"payer_id,omitempty"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	TransferID  *string    `json:"transfer_id,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SplitShareRequest is one participant's share in a split creation.
type SplitShareRequest struct {
	UserID     string `json:"user_id" binding:"required,min=1,max=64,safe_id"`
	AmountOwed int64  `json:"amount_owed" binding:"required,gt=0"`
}

// CreateSplitRequest is the request body for creating a bill split.
type CreateSplitRequest struct {
	Description   *string             `json:"description,omitempty" binding:"omitempty,max=200"`
	Shares        []SplitShareRequest `json:"shares" binding:"required,min=1,dive"`
	TransactionID *string             `json:"transaction_id,omitempty" binding:"omitempty,uuid"`
}

// ParticipantResponse is one obligation in a split.
type ParticipantResponse struct {
	UserID     string     `json:"user_id"`
	AmountOwed int64      `json:"amount_owed"`
	Status     string     `json:"status"`
	TransferID *string    `json:"transfer_id,omitempty"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

// SplitResponse is the response body for bill split state.
type SplitResponse struct {
	ID           string                `json:"id"`
	CreatorID    string                `json:"creator_id"`
	Description  *string               `json:"description,omitempty"`
	Total        int64                 `json:"total"`
	Status       string                `json:"status"`
	Participants []ParticipantResponse `json:"participants,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	SettledAt    *time.Time            `json:"settled_at,omitempty"`
}
