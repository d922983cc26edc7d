package ports

import (
	"context"
	"time"

	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside transaction blocks and rely on
// row-level locking: all mutations to one wallet are linearized by the
// FOR UPDATE lock held for the duration of the enclosing transaction.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	// AdjustBalance applies delta (positive credit, negative debit) and
	// returns the new balance. The UPDATE predicate refuses adjustments
	// that would drive the balance negative; callers classify that case
	// via the locked read before adjusting.
	AdjustBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta int64) (int64, error)
}

// TransactionRepository defines persistence for the append-only ledger.
type TransactionRepository interface {
	// Create appends a new ledger record; status must be PENDING.
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// UpdateStatusIfPending transitions PENDING -> status and stamps
	// completed_at / failure_reason. Returns false without mutating when
	// the record is no longer PENDING (terminal states are terminal).
	UpdateStatusIfPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, reason *string) (bool, error)
	// ListByWallet returns records newest first.
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error)
	// SumCompletedByWallet returns Σ(COMPLETED credits) − Σ(COMPLETED debits),
	// the ledger-consistency audit figure that must equal the wallet balance.
	SumCompletedByWallet(ctx context.Context, walletID uuid.UUID) (int64, error)
}

// MerchantRepository defines persistence operations for merchants.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	GetByTap2ID(ctx context.Context, tap2ID string) (*domain.Merchant, error)
}

// MerchantPaymentRepository persists the 1:1 detail rows of PAYMENT records.
type MerchantPaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, d *domain.MerchantPaymentDetail) error
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.MerchantPaymentDetail, error)
	SetCompletedAt(ctx context.Context, tx pgx.Tx, transactionID uuid.UUID, completedAt time.Time) error
	ListByTransactionIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.MerchantPaymentDetail, error)
}

// TransferRepository persists P2P transfer detail rows.
type TransferRepository interface {
	Create(ctx context.Context, tx pgx.Tx, tr *domain.P2PTransfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.P2PTransfer, error)
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.P2PTransfer, error)
	// UpdateStatusIfPending flips PENDING -> status; false when already terminal.
	UpdateStatusIfPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransferStatus, completedAt *time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.P2PTransfer, error)
	// ListExpiredPending returns IDs of PENDING transfers with expires_at < now.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// RequestRepository persists payment requests.
type RequestRepository interface {
	Create(ctx context.Context, r *domain.PaymentRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error)
	// UpdateStatusIfPending flips PENDING -> status; false when already terminal.
	// transferID links the transfer created on acceptance.
	UpdateStatusIfPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RequestStatus, transferID *uuid.UUID, completedAt *time.Time) (bool, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]domain.PaymentRequest, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// BillSplitRepository persists bill splits and participant obligations.
type BillSplitRepository interface {
	Create(ctx context.Context, split *domain.BillSplit, participants []domain.BillSplitParticipant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BillSplit, []domain.BillSplitParticipant, error)
	// UpdateParticipantIfPending flips one obligation PENDING -> status;
	// false when the obligation is already terminal.
	UpdateParticipantIfPending(ctx context.Context, tx pgx.Tx, splitID uuid.UUID, userID string, status domain.ParticipantStatus, transferID *uuid.UUID, paidAt *time.Time) (bool, error)
	// MarkSettledIfComplete flips the split to SETTLED when no obligation
	// is PENDING. Safe to call repeatedly.
	MarkSettledIfComplete(ctx context.Context, tx pgx.Tx, splitID uuid.UUID, settledAt time.Time) (bool, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]domain.BillSplit, error)
}

// IdempotencyRepository persists idempotency records. Create runs in the
// same database transaction as the operation's first side effect; the
// unique key constraint surfaces concurrent reuse as ErrDuplicateKey.
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) error
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	SetResponse(ctx context.Context, tx pgx.Tx, key string, responseJSON []byte) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
