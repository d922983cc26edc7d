package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.wallets {
		if existing.UserID == w.UserID {
			return fmt.Errorf("wallet already exists for user %s", w.UserID)
		}
	}
	r.wallets[w.ID] = w
	return nil
}

func (r *inMemoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

// AdjustBalance mirrors the SQL predicate: the mutation is refused when it
// would drive the balance negative, and the refusal is atomic under the
// repo mutex even though the fake has no row locks.
func (r *inMemoryWalletRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return 0, fmt.Errorf("wallet not found")
	}
	if w.Balance+delta < 0 {
		return 0, fmt.Errorf("adjust balance refused for wallet %s (delta %d)", walletID, delta)
	}
	w.Balance += delta
	w.UpdatedAt = time.Now().UTC()
	return w.Balance, nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.transactions[t.ID] = &cp
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransactionRepo) UpdateStatusIfPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, reason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return false, fmt.Errorf("transaction not found")
	}
	if t.Status != domain.TransactionStatusPending {
		return false, nil
	}
	t.Status = status
	t.FailureReason = reason
	now := time.Now().UTC()
	t.CompletedAt = &now
	return true, nil
}

func (r *inMemoryTransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.WalletID == walletID {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if offset >= len(result) {
		return []domain.Transaction{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r *inMemoryTransactionRepo) SumCompletedByWallet(ctx context.Context, walletID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, t := range r.transactions {
		if t.WalletID == walletID && t.Status == domain.TransactionStatusCompleted {
			sum += t.SignedAmount()
		}
	}
	return sum, nil
}

// --- In-Memory Merchant Repo ---

type inMemoryMerchantRepo struct {
	mu        sync.RWMutex
	merchants map[uuid.UUID]*domain.Merchant
}

func newInMemoryMerchantRepo() *inMemoryMerchantRepo {
	return &inMemoryMerchantRepo{merchants: make(map[uuid.UUID]*domain.Merchant)}
}

func (r *inMemoryMerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merchants[m.ID] = m
	return nil
}

func (r *inMemoryMerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *inMemoryMerchantRepo) GetByTap2ID(ctx context.Context, tap2ID string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.merchants {
		if m.Tap2ID == tap2ID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Merchant Payment Repo ---

type inMemoryMerchantPaymentRepo struct {
	mu      sync.RWMutex
	details map[uuid.UUID]*domain.MerchantPaymentDetail
}

func newInMemoryMerchantPaymentRepo() *inMemoryMerchantPaymentRepo {
	return &inMemoryMerchantPaymentRepo{details: make(map[uuid.UUID]*domain.MerchantPaymentDetail)}
}

func (r *inMemoryMerchantPaymentRepo) Create(ctx context.Context, tx pgx.Tx, d *domain.MerchantPaymentDetail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.details[d.TransactionID] = &cp
	return nil
}

func (r *inMemoryMerchantPaymentRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.MerchantPaymentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.details[transactionID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *inMemoryMerchantPaymentRepo) SetCompletedAt(ctx context.Context, tx pgx.Tx, transactionID uuid.UUID, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.details[transactionID]
	if !ok {
		return fmt.Errorf("payment detail not found")
	}
	d.CompletedAt = &completedAt
	return nil
}

func (r *inMemoryMerchantPaymentRepo) ListByTransactionIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.MerchantPaymentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uuid.UUID]domain.MerchantPaymentDetail, len(ids))
	for _, id := range ids {
		if d, ok := r.details[id]; ok {
			out[id] = *d
		}
	}
	return out, nil
}

// --- In-Memory Transfer Repo ---

type inMemoryTransferRepo struct {
	mu        sync.RWMutex
	transfers map[uuid.UUID]*domain.P2PTransfer
}

func newInMemoryTransferRepo() *inMemoryTransferRepo {
	return &inMemoryTransferRepo{transfers: make(map[uuid.UUID]*domain.P2PTransfer)}
}

func (r *inMemoryTransferRepo) Create(ctx context.Context, tx pgx.Tx, tr *domain.P2PTransfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tr
	r.transfers[tr.ID] = &cp
	return nil
}

func (r *inMemoryTransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.P2PTransfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tr, ok := r.transfers[id]
	if !ok {
		return nil, nil
	}
	cp := *tr
	return &cp, nil
}

func (r *inMemoryTransferRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.P2PTransfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tr := range r.transfers {
		if tr.TransactionID == transactionID {
			cp := *tr
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransferRepo) UpdateStatusIfPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransferStatus, completedAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.transfers[id]
	if !ok {
		return false, fmt.Errorf("transfer not found")
	}
	if tr.Status != domain.TransferStatusPending {
		return false, nil
	}
	tr.Status = status
	tr.CompletedAt = completedAt
	return true, nil
}

func (r *inMemoryTransferRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.P2PTransfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.P2PTransfer
	for _, tr := range r.transfers {
		if tr.SenderID == userID || tr.RecipientID == userID {
			result = append(result, *tr)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if offset >= len(result) {
		return []domain.P2PTransfer{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r *inMemoryTransferRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []uuid.UUID
	for _, tr := range r.transfers {
		if tr.Status == domain.TransferStatusPending && tr.ExpiresAt.Before(now) {
			ids = append(ids, tr.ID)
			if len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

// --- In-Memory Request Repo ---

type inMemoryRequestRepo struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*domain.PaymentRequest
}

func newInMemoryRequestRepo() *inMemoryRequestRepo {
	return &inMemoryRequestRepo{requests: make(map[uuid.UUID]*domain.PaymentRequest)}
}

func (r *inMemoryRequestRepo) Create(ctx context.Context, req *domain.PaymentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *inMemoryRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (r *inMemoryRequestRepo) UpdateStatusIfPending(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RequestStatus, transferID *uuid.UUID, completedAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return false, fmt.Errorf("request not found")
	}
	if req.Status != domain.RequestStatusPending {
		return false, nil
	}
	req.Status = status
	req.TransferID = transferID
	req.CompletedAt = completedAt
	return true, nil
}

func (r *inMemoryRequestRepo) ListForUser(ctx context.Context, userID string, limit, offset int) ([]domain.PaymentRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.PaymentRequest
	for _, req := range r.requests {
		if req.RequesterID == userID || (req.PayerID != nil && *req.PayerID == userID) {
			result = append(result, *req)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if offset >= len(result) {
		return []domain.PaymentRequest{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r *inMemoryRequestRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []uuid.UUID
	for _, req := range r.requests {
		if req.Status == domain.RequestStatusPending && req.ExpiresAt.Before(now) {
			ids = append(ids, req.ID)
			if len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

// --- In-Memory Bill Split Repo ---

type inMemoryBillSplitRepo struct {
	mu           sync.RWMutex
	splits       map[uuid.UUID]*domain.BillSplit
	participants map[uuid.UUID][]*domain.BillSplitParticipant
}

func newInMemoryBillSplitRepo() *inMemoryBillSplitRepo {
	return &inMemoryBillSplitRepo{
		splits:       make(map[uuid.UUID]*domain.BillSplit),
		participants: make(map[uuid.UUID][]*domain.BillSplitParticipant),
	}
}

func (r *inMemoryBillSplitRepo) Create(ctx context.Context, split *domain.BillSplit, participants []domain.BillSplitParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *split
	r.splits[split.ID] = &cp
	stored := make([]*domain.BillSplitParticipant, 0, len(participants))
	for i := range participants {
		p := participants[i]
		stored = append(stored, &p)
	}
	r.participants[split.ID] = stored
	return nil
}

func (r *inMemoryBillSplitRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BillSplit, []domain.BillSplitParticipant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	split, ok := r.splits[id]
	if !ok {
		return nil, nil, nil
	}
	cp := *split
	out := make([]domain.BillSplitParticipant, 0, len(r.participants[id]))
	for _, p := range r.participants[id] {
		out = append(out, *p)
	}
	return &cp, out, nil
}

func (r *inMemoryBillSplitRepo) UpdateParticipantIfPending(ctx context.Context, tx pgx.Tx, splitID uuid.UUID, userID string, status domain.ParticipantStatus, transferID *uuid.UUID, paidAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants[splitID] {
		if p.UserID != userID {
			continue
		}
		if p.Status != domain.ParticipantStatusPending {
			return false, nil
		}
		p.Status = status
		p.TransferID = transferID
		p.PaidAt = paidAt
		return true, nil
	}
	return false, fmt.Errorf("participant not found")
}

func (r *inMemoryBillSplitRepo) MarkSettledIfComplete(ctx context.Context, tx pgx.Tx, splitID uuid.UUID, settledAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	split, ok := r.splits[splitID]
	if !ok {
		return false, fmt.Errorf("split not found")
	}
	if split.Status != domain.SplitStatusOpen {
		return false, nil
	}
	for _, p := range r.participants[splitID] {
		if p.Status == domain.ParticipantStatusPending {
			return false, nil
		}
	}
	split.Status = domain.SplitStatusSettled
	split.SettledAt = &settledAt
	return true, nil
}

func (r *inMemoryBillSplitRepo) ListForUser(ctx context.Context, userID string, limit, offset int) ([]domain.BillSplit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.BillSplit
	for id, split := range r.splits {
		if split.CreatorID == userID {
			result = append(result, *split)
			continue
		}
		for _, p := range r.participants[id] {
			if p.UserID == userID {
				result = append(result, *split)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if offset >= len(result) {
		return []domain.BillSplit{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu      sync.RWMutex
	records map[string]*domain.IdempotencyRecord
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{records: make(map[string]*domain.IdempotencyRecord)}
}

func (r *inMemoryIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.Key]; ok {
		return ports.ErrDuplicateKey
	}
	cp := *rec
	r.records[rec.Key] = &cp
	return nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *inMemoryIdempotencyRepo) SetResponse(ctx context.Context, tx pgx.Tx, key string, responseJSON []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return fmt.Errorf("idempotency record not found")
	}
	rec.ResponseJSON = responseJSON
	return nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
