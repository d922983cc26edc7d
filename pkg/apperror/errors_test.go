package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("WAL_002", "Insufficient funds", http.StatusPaymentRequired),
			expected: "[WAL_002] Insufficient funds",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("WAL_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestWalletAndLedgerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"WalletNotFound", ErrWalletNotFound(), "WAL_001", 404},
		{"InsufficientFunds", ErrInsufficientFunds(), "WAL_002", 402},
		{"WalletExists", ErrWalletExists(), "WAL_003", 409},
		{"InvalidAmount", ErrInvalidAmount(), "LED_001", 400},
		{"InvalidTransition", ErrInvalidTransition(), "LED_002", 409},
		{"TransactionNotFound", ErrTransactionNotFound(), "LED_003", 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestPaymentAndTransferErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"MerchantUnknown", ErrMerchantUnknown(), "PAY_001", 404},
		{"AuthorizationFailed", ErrAuthorizationFailed("card declined"), "PAY_002", 402},
		{"NonceReplayed", ErrNonceReplayed(), "PAY_003", 403},
		{"InvalidRecipient", ErrInvalidRecipient(), "P2P_001", 400},
		{"RecipientNotFound", ErrRecipientNotFound(), "P2P_002", 404},
		{"TransferNotFound", ErrTransferNotFound(), "P2P_003", 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestAuthorizationFailedMessage(t *testing.T) {
	err := ErrAuthorizationFailed("card declined")
	assert.Contains(t, err.Message, "card declined")
	assert.Contains(t, err.Message, "funds returned")
}

func TestIdempotencyErrors(t *testing.T) {
	required := ErrIdempotencyKeyRequired()
	assert.Equal(t, "IDM_001", required.Code)
	assert.Equal(t, 400, required.HTTPStatus)

	conflict := ErrIdempotencyConflict()
	assert.Equal(t, "IDM_002", conflict.Code)
	assert.Equal(t, 409, conflict.HTTPStatus)
}

func TestRequestAndSplitErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"RequestNotFound", ErrRequestNotFound(), "REQ_001", 404},
		{"RequestNotPending", ErrRequestNotPending(), "REQ_002", 409},
		{"RequestNotAddressed", ErrRequestNotAddressed(), "REQ_003", 403},
		{"SplitNotFound", ErrSplitNotFound(), "SPL_001", 404},
		{"ObligationNotPending", ErrObligationNotPending(), "SPL_002", 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("pg: connection closed")
	sysErr := InternalError(inner)
	assert.Equal(t, "SYS_001", sysErr.Code)
	assert.Equal(t, 500, sysErr.HTTPStatus)
	assert.True(t, errors.Is(sysErr, inner))
}
