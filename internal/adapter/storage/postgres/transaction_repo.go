package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, wallet_id, type, direction, amount, status, reference_id, failure_reason, created_at, completed_at`

// Create appends a new ledger record within a database transaction.
// Records enter the ledger PENDING with a strictly positive amount.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	if !domain.ValidAmount(t.Amount) {
		return fmt.Errorf("refusing non-positive ledger amount %d", t.Amount)
	}
	if t.Status != domain.TransactionStatusPending {
		return fmt.Errorf("refusing to append transaction in status %s", t.Status)
	}

	query := `INSERT INTO transactions (id, wallet_id, type, direction, amount, status, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, t.Type, t.Direction, t.Amount, t.Status, t.ReferenceID, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// UpdateStatusIfPending transitions a PENDING record to a terminal status.
// The status predicate in the WHERE clause is what makes terminal states
// terminal: a second transition attempt matches zero rows and reports false.
func (r *TransactionRepo) UpdateStatusIfPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, reason *string) (bool, error) {
	query := `UPDATE transactions SET status = $1, completed_at = $2, failure_reason = $3
		WHERE id = $4 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, status, time.Now().UTC(), reason, id)
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByWallet fetches a wallet's records newest first.
func (r *TransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var result []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &t.Direction, &t.Amount,
			&t.Status, &t.ReferenceID, &t.FailureReason, &t.CreatedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// SumCompletedByWallet computes the ledger-consistency audit figure:
// Σ(COMPLETED credits) − Σ(COMPLETED debits), which must equal the
// wallet's balance column at all times.
func (r *TransactionRepo) SumCompletedByWallet(ctx context.Context, walletID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(CASE WHEN direction = 'CREDIT' THEN amount ELSE -amount END), 0)
		FROM transactions WHERE wallet_id = $1 AND status = 'COMPLETED'`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum completed transactions: %w", err)
	}
	return sum, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(&t.ID, &t.WalletID, &t.Type, &t.Direction, &t.Amount,
		&t.Status, &t.ReferenceID, &t.FailureReason, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}
