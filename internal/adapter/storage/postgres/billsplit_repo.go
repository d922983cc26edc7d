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

// BillSplitRepo implements ports.BillSplitRepository.
type BillSplitRepo struct {
	pool Pool
}

// NewBillSplitRepo creates a new BillSplitRepo.
func NewBillSplitRepo(pool Pool) *BillSplitRepo {
	return &BillSplitRepo{pool: pool}
}

const billSplitColumns = `id, creator_id, description, total, status, transaction_id, created_at, settled_at`

const participantColumns = `id, split_id, user_id, amount_owed, status, transfer_id, paid_at`

// Create inserts the split and all its participant rows in one
// transaction.
func (r *BillSplitRepo) Create(ctx context.Context, split *domain.BillSplit, participants []domain.BillSplitParticipant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create bill split: %w", err)
	}
	defer tx.Rollback(ctx)

	splitQuery := `INSERT INTO bill_splits (id, creator_id, description, total, status, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, splitQuery,
		split.ID, split.CreatorID, split.Description, split.Total,
		split.Status, split.TransactionID, split.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bill split: %w", err)
	}

	participantQuery := `INSERT INTO bill_split_participants (id, split_id, user_id, amount_owed, status)
		VALUES ($1, $2, $3, $4, $5)`

	for _, p := range participants {
		_, err = tx.Exec(ctx, participantQuery, p.ID, p.SplitID, p.UserID, p.AmountOwed, p.Status)
		if err != nil {
			return fmt.Errorf("insert bill split participant: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create bill split: %w", err)
	}
	return nil
}

// GetByID fetches a split and its participants.
func (r *BillSplitRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BillSplit, []domain.BillSplitParticipant, error) {
	splitQuery := `SELECT ` + billSplitColumns + ` FROM bill_splits WHERE id = $1`

	split := &domain.BillSplit{}
	err := r.pool.QueryRow(ctx, splitQuery, id).Scan(
		&split.ID, &split.CreatorID, &split.Description, &split.Total,
		&split.Status, &split.TransactionID, &split.CreatedAt, &split.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("get bill split: %w", err)
	}

	participantQuery := `SELECT ` + participantColumns + ` FROM bill_split_participants
		WHERE split_id = $1 ORDER BY user_id ASC`

	rows, err := r.pool.Query(ctx, participantQuery, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list bill split participants: %w", err)
	}
	defer rows.Close()

	var participants []domain.BillSplitParticipant
	for rows.Next() {
		var p domain.BillSplitParticipant
		err = rows.Scan(&p.ID, &p.SplitID, &p.UserID, &p.AmountOwed, &p.Status, &p.TransferID, &p.PaidAt)
		if err != nil {
			return nil, nil, fmt.Errorf("scan bill split participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate bill split participants: %w", err)
	}
	return split, participants, nil
}

// UpdateParticipantIfPending transitions a PENDING obligation to PAID
// or DECLINED within tx, optionally linking the settling transfer.
// Returns false if the obligation already settled or declined.
func (r *BillSplitRepo) UpdateParticipantIfPending(ctx context.Context, tx pgx.Tx, splitID uuid.UUID, userID string, status domain.ParticipantStatus, transferID *uuid.UUID, paidAt *time.Time) (bool, error) {
	query := `UPDATE bill_split_participants SET status = $1, transfer_id = $2, paid_at = $3
		WHERE split_id = $4 AND user_id = $5 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, status, transferID, paidAt, splitID, userID)
	if err != nil {
		return false, fmt.Errorf("update bill split participant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSettledIfComplete flips the split to SETTLED within tx when no
// obligation is still PENDING. Returns true if the split transitioned.
func (r *BillSplitRepo) MarkSettledIfComplete(ctx context.Context, tx pgx.Tx, splitID uuid.UUID, settledAt time.Time) (bool, error) {
	query := `UPDATE bill_splits SET status = 'SETTLED', settled_at = $1
		WHERE id = $2 AND status = 'OPEN'
		AND NOT EXISTS (
			SELECT 1 FROM bill_split_participants
			WHERE split_id = $2 AND status = 'PENDING'
		)`

	tag, err := tx.Exec(ctx, query, settledAt, splitID)
	if err != nil {
		return false, fmt.Errorf("mark bill split settled: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListForUser returns splits the user created or participates in,
// newest first.
func (r *BillSplitRepo) ListForUser(ctx context.Context, userID string, limit, offset int) ([]domain.BillSplit, error) {
	query := `SELECT DISTINCT s.id, s.creator_id, s.description, s.total, s.status, s.transaction_id, s.created_at, s.settled_at
		FROM bill_splits s
		LEFT JOIN bill_split_participants p ON p.split_id = s.id
		WHERE s.creator_id = $1 OR p.user_id = $1
		ORDER BY s.created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bill splits: %w", err)
	}
	defer rows.Close()

	var out []domain.BillSplit
	for rows.Next() {
		var s domain.BillSplit
		err = rows.Scan(
			&s.ID, &s.CreatorID, &s.Description, &s.Total,
			&s.Status, &s.TransactionID, &s.CreatedAt, &s.SettledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bill split: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
