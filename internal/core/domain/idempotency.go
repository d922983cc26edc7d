package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Idempotent operation namespaces. Keys are scoped per operation type so the
// same caller key cannot collide across different kinds of money movement.
const (
	OpMerchantPayment = "payment"
	OpP2PTransfer     = "p2p"
	OpFund            = "fund"
	OpWithdraw        = "withdraw"
)

// IdempotencyRecord maps a caller-supplied key to the outcome it produced.
// The row is inserted in the same database transaction as the first side
// effect; the unique key constraint makes concurrent retries lose the race
// and fall back to replaying the recorded outcome.
type IdempotencyRecord struct {
	Key           string     `json:"key"` // "op:user_id:caller_key"
	Operation     string     `json:"operation"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	RequestHash   string     `json:"request_hash"`
	ResponseJSON  []byte     `json:"response_json,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// BuildIdempotencyKey constructs the storage key for an operation.
func BuildIdempotencyKey(operation, userID, callerKey string) string {
	return operation + ":" + userID + ":" + callerKey
}

// HashRequest fingerprints a canonical request payload so a reused key with
// a different payload is detected as a conflict rather than replayed.
func HashRequest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
