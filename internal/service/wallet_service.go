package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"
	"github.com/Andrejs1979/tap2-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	walletRepo   ports.WalletRepository
	txRepo       ports.TransactionRepository
	paymentRepo  ports.MerchantPaymentRepository
	transferRepo ports.TransferRepository
	idempRepo    ports.IdempotencyRepository
	idempCache   ports.IdempotencyCache
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	paymentRepo ports.MerchantPaymentRepository,
	transferRepo ports.TransferRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo:   walletRepo,
		txRepo:       txRepo,
		paymentRepo:  paymentRepo,
		transferRepo: transferRepo,
		idempRepo:    idempRepo,
		idempCache:   idempCache,
		transactor:   transactor,
		log:          log,
	}
}

// CreateWallet provisions a wallet for a user. One wallet per user.
func (s *WalletServiceImpl) CreateWallet(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, apperror.Validation("User ID is required")
	}
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	existing, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check existing wallet: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrWalletExists()
	}

	now := time.Now().UTC()
	wallet := &domain.Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   0,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("user_id", userID).
		Str("currency", currency).
		Msg("wallet created")

	return wallet, nil
}

// GetBalance returns a user's wallet with its current balance.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, userID string) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return wallet, nil
}

// GetHistory returns a user's ledger records newest first, each joined
// with its type-specific detail row when one exists.
func (s *WalletServiceImpl) GetHistory(ctx context.Context, userID string, limit, offset int) ([]ports.HistoryItem, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	txns, err := s.txRepo.ListByWallet(ctx, wallet.ID, limit, offset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}

	var paymentIDs []uuid.UUID
	for _, txn := range txns {
		if txn.Type == domain.TransactionTypePayment {
			paymentIDs = append(paymentIDs, txn.ID)
		}
	}
	payments, err := s.paymentRepo.ListByTransactionIDs(ctx, paymentIDs)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list payment details: %w", err))
	}

	items := make([]ports.HistoryItem, 0, len(txns))
	for _, txn := range txns {
		item := ports.HistoryItem{Transaction: txn}
		if p, ok := payments[txn.ID]; ok {
			detail := p
			item.Payment = &detail
		}
		if txn.Type == domain.TransactionTypeP2P && txn.Direction == domain.DirectionDebit {
			transfer, err := s.transferRepo.GetByTransactionID(ctx, txn.ID)
			if err != nil {
				return nil, apperror.InternalError(fmt.Errorf("get transfer detail: %w", err))
			}
			item.Transfer = transfer
		}
		items = append(items, item)
	}
	return items, nil
}

// Fund credits external money into the wallet.
func (s *WalletServiceImpl) Fund(ctx context.Context, userID string, amount int64, sourceRef, idempotencyKey string) (*ports.PaymentResult, error) {
	return s.adjust(ctx, userID, amount, sourceRef, idempotencyKey,
		domain.OpFund, domain.TransactionTypeFund, domain.DirectionCredit)
}

// Withdraw debits wallet money out to an external destination.
func (s *WalletServiceImpl) Withdraw(ctx context.Context, userID string, amount int64, destinationRef, idempotencyKey string) (*ports.PaymentResult, error) {
	return s.adjust(ctx, userID, amount, destinationRef, idempotencyKey,
		domain.OpWithdraw, domain.TransactionTypeWithdraw, domain.DirectionDebit)
}

// adjust is the shared single-transaction funding path: lock, move the
// balance, append the completed ledger record and claim the idempotency
// key atomically.
func (s *WalletServiceImpl) adjust(
	ctx context.Context,
	userID string,
	amount int64,
	reference, idempotencyKey string,
	op string,
	txType domain.TransactionType,
	direction domain.TransactionDirection,
) (*ports.PaymentResult, error) {
	if !domain.ValidAmount(amount) {
		return nil, apperror.ErrInvalidAmount()
	}
	if idempotencyKey == "" {
		return nil, apperror.ErrIdempotencyKeyRequired()
	}

	idempKey := domain.BuildIdempotencyKey(op, userID, idempotencyKey)
	reqHash := domain.HashRequest(fmt.Appendf(nil, "%s:%d:%s", op, amount, reference))

	var cached ports.PaymentResult
	if hit, err := cacheLookup(ctx, s.idempCache, s.log, idempKey, reqHash, &cached); hit || err != nil {
		if err != nil {
			return nil, err
		}
		return &cached, nil
	}

	rec, err := s.idempRepo.Get(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency check: %w", err))
	}
	if rec != nil {
		return s.replayAdjust(rec, reqHash)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	delta := amount
	if direction == domain.DirectionDebit {
		if !wallet.CanDebit(amount) {
			return nil, apperror.ErrInsufficientFunds()
		}
		delta = -amount
	}

	newBalance, err := s.walletRepo.AdjustBalance(ctx, dbTx, wallet.ID, delta)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("adjust balance: %w", err))
	}

	now := time.Now().UTC()
	ref := reference
	txn := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        txType,
		Direction:   direction,
		Amount:      amount,
		Status:      domain.TransactionStatusPending,
		ReferenceID: &ref,
		CreatedAt:   now,
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}
	ok, err := s.txRepo.UpdateStatusIfPending(ctx, dbTx, txn.ID, domain.TransactionStatusCompleted, nil)
	if err != nil || !ok {
		return nil, apperror.InternalError(fmt.Errorf("complete transaction: %w", err))
	}

	result := &ports.PaymentResult{
		TransactionID: txn.ID,
		Status:        domain.TransactionStatusCompleted,
		Amount:        amount,
		NewBalance:    newBalance,
	}
	respJSON, err := json.Marshal(result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}

	idempRec := &domain.IdempotencyRecord{
		Key:           idempKey,
		Operation:     op,
		TransactionID: &txn.ID,
		RequestHash:   reqHash,
		ResponseJSON:  respJSON,
		CreatedAt:     now,
	}
	if err := s.idempRepo.Create(ctx, dbTx, idempRec); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			if rbErr := dbTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				return nil, apperror.InternalError(fmt.Errorf("rollback after duplicate: %w", rbErr))
			}
			winner, err := s.idempRepo.Get(ctx, idempKey)
			if err != nil || winner == nil {
				return nil, apperror.InternalError(fmt.Errorf("read winning idempotency record: %w", err))
			}
			return s.replayAdjust(winner, reqHash)
		}
		return nil, apperror.InternalError(fmt.Errorf("claim idempotency key: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	cacheStore(ctx, s.idempCache, s.log, idempKey, reqHash, respJSON, idempotencyTTL)

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("user_id", userID).
		Str("type", string(txType)).
		Int64("amount", amount).
		Msg("wallet adjustment completed")

	return result, nil
}

func (s *WalletServiceImpl) replayAdjust(rec *domain.IdempotencyRecord, reqHash string) (*ports.PaymentResult, error) {
	if rec.RequestHash != reqHash {
		return nil, apperror.ErrIdempotencyConflict()
	}
	if len(rec.ResponseJSON) == 0 {
		return nil, apperror.InternalError(fmt.Errorf("idempotency record %s has no response", rec.Key))
	}
	var result ports.PaymentResult
	if err := json.Unmarshal(rec.ResponseJSON, &result); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached response: %w", err))
	}
	return &result, nil
}
