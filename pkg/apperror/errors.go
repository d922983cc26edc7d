package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Wallet (WAL) ----

func ErrWalletNotFound() *AppError {
	return New("WAL_001", "Wallet not found", http.StatusNotFound)
}

func ErrInsufficientFunds() *AppError {
	return New("WAL_002", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrWalletExists() *AppError {
	return New("WAL_003", "Wallet already exists for user", http.StatusConflict)
}

// ---- Ledger (LED) ----

func ErrInvalidAmount() *AppError {
	return New("LED_001", "Amount must be a positive number of minor units", http.StatusBadRequest)
}

func ErrInvalidTransition() *AppError {
	return New("LED_002", "Transaction is already in a terminal state", http.StatusConflict)
}

func ErrTransactionNotFound() *AppError {
	return New("LED_003", "Transaction not found", http.StatusNotFound)
}

// ---- Merchant payments (PAY) ----

func ErrMerchantUnknown() *AppError {
	return New("PAY_001", "Merchant unknown or inactive", http.StatusNotFound)
}

func ErrAuthorizationFailed(reason string) *AppError {
	return New("PAY_002", fmt.Sprintf("Payment authorization failed: %s (funds returned)", reason), http.StatusPaymentRequired)
}

func ErrNonceReplayed() *AppError {
	return New("PAY_003", "NFC nonce has already been used", http.StatusForbidden)
}

// ---- P2P transfers (P2P) ----

func ErrInvalidRecipient() *AppError {
	return New("P2P_001", "Cannot transfer to yourself", http.StatusBadRequest)
}

func ErrRecipientNotFound() *AppError {
	return New("P2P_002", "Recipient wallet not found", http.StatusNotFound)
}

func ErrTransferNotFound() *AppError {
	return New("P2P_003", "Transfer not found", http.StatusNotFound)
}

// ---- Payment requests (REQ) ----

func ErrRequestNotFound() *AppError {
	return New("REQ_001", "Payment request not found", http.StatusNotFound)
}

func ErrRequestNotPending() *AppError {
	return New("REQ_002", "Payment request is no longer pending", http.StatusConflict)
}

func ErrRequestNotAddressed() *AppError {
	return New("REQ_003", "Payment request is addressed to another payer", http.StatusForbidden)
}

// ---- Bill splits (SPL) ----

func ErrSplitNotFound() *AppError {
	return New("SPL_001", "Bill split not found", http.StatusNotFound)
}

func ErrObligationNotPending() *AppError {
	return New("SPL_002", "Split obligation is no longer pending", http.StatusConflict)
}

// ---- Idempotency (IDM) ----

func ErrIdempotencyKeyRequired() *AppError {
	return New("IDM_001", "Idempotency key is required", http.StatusBadRequest)
}

func ErrIdempotencyConflict() *AppError {
	return New("IDM_002", "Idempotency key was already used with a different payload", http.StatusConflict)
}

// ---- Auth (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_002", "Caller does not own this resource", http.StatusForbidden)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a LED_001-style validation error with a custom message.
func Validation(message string) *AppError {
	return New("LED_001", message, http.StatusBadRequest)
}
