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

// RequestRepo implements ports.RequestRepository.
type RequestRepo struct {
	pool Pool
}

// NewRequestRepo creates a new RequestRepo.
func NewRequestRepo(pool Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

const requestColumns = `id, requester_id, payer_id, amount, status, expires_at, completed_at, created_at, transfer_id`

// Create inserts a new payment request.
func (r *RequestRepo) Create(ctx context.Context, req *domain.PaymentRequest) error {
	query := `INSERT INTO payment_requests (id, requester_id, payer_id, amount, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		req.ID, req.RequesterID, req.PayerID, req.Amount, req.Status, req.ExpiresAt, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment request: %w", err)
	}
	return nil
}

// GetByID fetches a payment request by UUID.
func (r *RequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM payment_requests WHERE id = $1`

	req := &domain.PaymentRequest{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.RequesterID, &req.PayerID, &req.Amount, &req.Status,
		&req.ExpiresAt, &req.CompletedAt, &req.CreatedAt, &req.TransferID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment request: %w", err)
	}
	return req, nil
}

// UpdateStatusIfPending transitions a PENDING request to a terminal
// status within tx, optionally linking the settling transfer. Returns
// false if the request was already terminal.
func (r *RequestRepo) UpdateStatusIfPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RequestStatus, transferID *uuid.UUID, completedAt *time.Time) (bool, error) {
	query := `UPDATE payment_requests SET status = $1, transfer_id = $2, completed_at = $3
		WHERE id = $4 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, status, transferID, completedAt, id)
	if err != nil {
		return false, fmt.Errorf("update payment request status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListForUser returns requests the user created or is addressed by,
// newest first. Broadcast requests (no payer) only appear for their
// requester.
func (r *RequestRepo) ListForUser(ctx context.Context, userID string, limit, offset int) ([]domain.PaymentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM payment_requests
		WHERE requester_id = $1 OR payer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list payment requests: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentRequest
	for rows.Next() {
		var req domain.PaymentRequest
		err = rows.Scan(
			&req.ID, &req.RequesterID, &req.PayerID, &req.Amount, &req.Status,
			&req.ExpiresAt, &req.CompletedAt, &req.CreatedAt, &req.TransferID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ListExpiredPending returns the IDs of up to limit PENDING requests
// whose expiry has passed, oldest first. Used by the sweeper.
func (r *RequestRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM payment_requests
		WHERE status = 'PENDING' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired payment requests: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired payment request id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
