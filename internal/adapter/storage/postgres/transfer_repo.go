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

// TransferRepo implements ports.TransferRepository.
type TransferRepo struct {
	pool Pool
}

// NewTransferRepo creates a new TransferRepo.
func NewTransferRepo(pool Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

const transferColumns = `id, transaction_id, credit_transaction_id, sender_id, recipient_id, amount, status, expires_at, completed_at, created_at`

// Create inserts the transfer detail row within tx, alongside the
// debit and credit ledger rows it links.
func (r *TransferRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.P2PTransfer) error {
	query := `INSERT INTO p2p_transfers (id, transaction_id, credit_transaction_id, sender_id, recipient_id, amount, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.TransactionID, t.CreditTransactionID, t.SenderID, t.RecipientID,
		t.Amount, t.Status, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// GetByID fetches a transfer by UUID.
func (r *TransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.P2PTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM p2p_transfers WHERE id = $1`
	return scanTransfer(r.pool.QueryRow(ctx, query, id))
}

// GetByTransactionID fetches the transfer linked to a sender debit row.
func (r *TransferRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.P2PTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM p2p_transfers WHERE transaction_id = $1`
	return scanTransfer(r.pool.QueryRow(ctx, query, transactionID))
}

// UpdateStatusIfPending transitions a PENDING transfer to a terminal
// status within tx. Returns false if the transfer was already terminal.
func (r *TransferRepo) UpdateStatusIfPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransferStatus, completedAt *time.Time) (bool, error) {
	query := `UPDATE p2p_transfers SET status = $1, completed_at = $2
		WHERE id = $3 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, status, completedAt, id)
	if err != nil {
		return false, fmt.Errorf("update transfer status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns transfers where the user is sender or recipient,
// newest first.
func (r *TransferRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.P2PTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM p2p_transfers
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []domain.P2PTransfer
	for rows.Next() {
		var t domain.P2PTransfer
		err = rows.Scan(
			&t.ID, &t.TransactionID, &t.CreditTransactionID, &t.SenderID, &t.RecipientID,
			&t.Amount, &t.Status, &t.ExpiresAt, &t.CompletedAt, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListExpiredPending returns the IDs of up to limit PENDING transfers
// whose expiry has passed, oldest first. Used by the sweeper.
func (r *TransferRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM p2p_transfers
		WHERE status = 'PENDING' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired transfers: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired transfer id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanTransfer(row pgx.Row) (*domain.P2PTransfer, error) {
	t := &domain.P2PTransfer{}
	err := row.Scan(
		&t.ID, &t.TransactionID, &t.CreditTransactionID, &t.SenderID, &t.RecipientID,
		&t.Amount, &t.Status, &t.ExpiresAt, &t.CompletedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return t, nil
}
