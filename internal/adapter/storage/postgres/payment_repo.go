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

// MerchantPaymentRepo implements ports.MerchantPaymentRepository.
type MerchantPaymentRepo struct {
	pool Pool
}

// NewMerchantPaymentRepo creates a new MerchantPaymentRepo.
func NewMerchantPaymentRepo(pool Pool) *MerchantPaymentRepo {
	return &MerchantPaymentRepo{pool: pool}
}

const merchantPaymentColumns = `transaction_id, merchant_id, payment_type, qr_code_id, nfc_nonce, tip, completed_at, created_at`

// Create inserts the merchant payment detail row within tx, alongside
// its parent transaction row.
func (r *MerchantPaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.MerchantPaymentDetail) error {
	query := `INSERT INTO merchant_payments (transaction_id, merchant_id, payment_type, qr_code_id, nfc_nonce, tip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		p.TransactionID, p.MerchantID, p.PaymentType, p.QRCodeID, p.NFCNonce, p.Tip, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert merchant payment: %w", err)
	}
	return nil
}

// GetByTransactionID fetches the payment detail for a ledger row.
func (r *MerchantPaymentRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.MerchantPaymentDetail, error) {
	query := `SELECT ` + merchantPaymentColumns + ` FROM merchant_payments WHERE transaction_id = $1`

	p := &domain.MerchantPaymentDetail{}
	err := r.pool.QueryRow(ctx, query, transactionID).Scan(
		&p.TransactionID, &p.MerchantID, &p.PaymentType, &p.QRCodeID, &p.NFCNonce, &p.Tip, &p.CompletedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant payment: %w", err)
	}
	return p, nil
}

// SetCompletedAt stamps the settlement time within tx.
func (r *MerchantPaymentRepo) SetCompletedAt(ctx context.Context, tx pgx.Tx, transactionID uuid.UUID, at time.Time) error {
	query := `UPDATE merchant_payments SET completed_at = $1 WHERE transaction_id = $2`

	_, err := tx.Exec(ctx, query, at, transactionID)
	if err != nil {
		return fmt.Errorf("set merchant payment completed_at: %w", err)
	}
	return nil
}

// ListByTransactionIDs fetches payment details for a batch of ledger rows,
// keyed by transaction ID. Used to decorate transaction history.
func (r *MerchantPaymentRepo) ListByTransactionIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.MerchantPaymentDetail, error) {
	out := make(map[uuid.UUID]domain.MerchantPaymentDetail, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT ` + merchantPaymentColumns + ` FROM merchant_payments WHERE transaction_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list merchant payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.MerchantPaymentDetail
		err = rows.Scan(&p.TransactionID, &p.MerchantID, &p.PaymentType, &p.QRCodeID, &p.NFCNonce, &p.Tip, &p.CompletedAt, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan merchant payment: %w", err)
		}
		out[p.TransactionID] = p
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list merchant payments: %w", err)
	}
	return out, nil
}
