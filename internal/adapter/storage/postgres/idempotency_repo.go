package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

const uniqueViolationCode = "23505"

// Create inserts the idempotency record within tx, in the same
// transaction as the operation's first side effect. A unique violation
// on the key means another request with the same key already committed;
// that surfaces as ports.ErrDuplicateKey so the caller can replay the
// recorded outcome.
func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) error {
	query := `INSERT INTO idempotency_records (key, operation, transaction_id, request_hash, response_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query, rec.Key, rec.Operation, rec.TransactionID, rec.RequestHash, rec.ResponseJSON, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ports.ErrDuplicateKey
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// Get fetches an idempotency record by key.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	query := `SELECT key, operation, transaction_id, request_hash, response_json, created_at
		FROM idempotency_records WHERE key = $1`

	rec := &domain.IdempotencyRecord{}
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&rec.Key, &rec.Operation, &rec.TransactionID, &rec.RequestHash, &rec.ResponseJSON, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}

// SetResponse stores the canonical response payload for replay, within
// the transaction that settles the operation.
func (r *IdempotencyRepo) SetResponse(ctx context.Context, tx pgx.Tx, key string, response []byte) error {
	query := `UPDATE idempotency_records SET response_json = $1 WHERE key = $2`

	_, err := tx.Exec(ctx, query, response, key)
	if err != nil {
		return fmt.Errorf("set idempotency response: %w", err)
	}
	return nil
}
