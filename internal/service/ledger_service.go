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
	"github.com/rs/zerolog"
)

const (
	idempotencyTTL = 24 * time.Hour
	nonceTTL       = 10 * time.Minute
)

// LedgerServiceImpl implements ports.LedgerService.
//
// A merchant payment runs in two phases. Phase one debits the wallet,
// appends a PENDING ledger record and claims the idempotency key, all
// in one database transaction, so the funds are reserved before any
// external call and the wallet lock is never held across the network.
// Phase two asks the authorizer; approval settles the record to
// COMPLETED, a decline (or exhausted retries) credits the funds back
// and settles it to FAILED in a single compensating transaction.
type LedgerServiceImpl struct {
	walletRepo   ports.WalletRepository
	txRepo       ports.TransactionRepository
	merchantRepo ports.MerchantRepository
	paymentRepo  ports.MerchantPaymentRepository
	idempRepo    ports.IdempotencyRepository
	idempCache   ports.IdempotencyCache
	nonceStore   ports.NonceStore
	authorizer   ports.PaymentAuthorizer
	transactor   ports.DBTransactor
	maxAttempts  int
	retryBackoff time.Duration
	log          zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	merchantRepo ports.MerchantRepository,
	paymentRepo ports.MerchantPaymentRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	nonceStore ports.NonceStore,
	authorizer ports.PaymentAuthorizer,
	transactor ports.DBTransactor,
	maxAttempts int,
	retryBackoff time.Duration,
	log zerolog.Logger,
) *LedgerServiceImpl {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &LedgerServiceImpl{
		walletRepo:   walletRepo,
		txRepo:       txRepo,
		merchantRepo: merchantRepo,
		paymentRepo:  paymentRepo,
		idempRepo:    idempRepo,
		idempCache:   idempCache,
		nonceStore:   nonceStore,
		authorizer:   authorizer,
		transactor:   transactor,
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
		log:          log,
	}
}

// InitiateMerchantPayment executes the merchant payment flow.
func (s *LedgerServiceImpl) InitiateMerchantPayment(ctx context.Context, in ports.MerchantPaymentInput) (*ports.PaymentResult, error) {
	if !domain.ValidAmount(in.Amount) {
		return nil, apperror.ErrInvalidAmount()
	}
	if in.Tip < 0 || in.Tip > in.Amount {
		return nil, apperror.Validation("Tip must be between zero and the total amount")
	}
	if in.IdempotencyKey == "" {
		return nil, apperror.ErrIdempotencyKeyRequired()
	}

	idempKey := domain.BuildIdempotencyKey(domain.OpMerchantPayment, in.UserID, in.IdempotencyKey)
	reqJSON, err := json.Marshal(in)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal request: %w", err))
	}
	reqHash := domain.HashRequest(reqJSON)

	var cached ports.PaymentResult
	if hit, err := cacheLookup(ctx, s.idempCache, s.log, idempKey, reqHash, &cached); hit || err != nil {
		if err != nil {
			return nil, err
		}
		return &cached, nil
	}

	if result, done, err := s.checkIdempotency(ctx, idempKey, reqHash); done {
		return result, err
	}

	// NFC replay guard before touching any balance
	if in.PaymentType == domain.PaymentTypeNFC && in.NFCNonce != nil {
		fresh, err := s.nonceStore.CheckAndSet(ctx, in.MerchantID.String(), *in.NFCNonce, nonceTTL)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("nonce check: %w", err))
		}
		if !fresh {
			return nil, apperror.ErrNonceReplayed()
		}
	}

	merchant, err := s.merchantRepo.GetByID(ctx, in.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if merchant == nil || !merchant.Active {
		return nil, apperror.ErrMerchantUnknown()
	}

	// Phase 1: reserve funds and append the PENDING record
	txn, newBalance, err := s.reserveFunds(ctx, in, idempKey, reqHash)
	if err != nil {
		var dup *replayOutcome
		if errors.As(err, &dup) {
			return dup.result, dup.err
		}
		return nil, err
	}

	// Phase 2: external authorization with bounded retries
	auth, authErr := s.authorizeWithRetry(ctx, txn.ID, in.Amount, in.MethodRef)
	if authErr != nil {
		reason := "authorization unavailable"
		if err := s.compensate(ctx, txn, reason); err != nil {
			// Funds stay reserved in a PENDING record; FailPayment recovers it.
			s.log.Error().Err(err).Str("tx_id", txn.ID.String()).Msg("compensation failed, payment left pending")
			return nil, apperror.InternalError(err)
		}
		return nil, apperror.ErrAuthorizationFailed(reason)
	}
	if auth.Outcome == ports.AuthDeclined {
		if err := s.compensate(ctx, txn, auth.Reason); err != nil {
			s.log.Error().Err(err).Str("tx_id", txn.ID.String()).Msg("compensation failed, payment left pending")
			return nil, apperror.InternalError(err)
		}
		return nil, apperror.ErrAuthorizationFailed(auth.Reason)
	}

	// Settle to COMPLETED
	result := &ports.PaymentResult{
		TransactionID: txn.ID,
		Status:        domain.TransactionStatusCompleted,
		Amount:        in.Amount,
		NewBalance:    newBalance,
	}
	if err := s.settle(ctx, txn.ID, idempKey, reqHash, result); err != nil {
		s.log.Error().Err(err).Str("tx_id", txn.ID.String()).Msg("settlement failed, payment left pending")
		return nil, apperror.InternalError(err)
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("user_id", in.UserID).
		Str("merchant_id", in.MerchantID.String()).
		Int64("amount", in.Amount).
		Int64("tip", in.Tip).
		Msg("merchant payment completed")

	return result, nil
}

// replayOutcome carries a replayed result out of reserveFunds when the
// idempotency insert loses the race.
type replayOutcome struct {
	result *ports.PaymentResult
	err    error
}

func (r *replayOutcome) Error() string { return "idempotency key replayed" }

func (s *LedgerServiceImpl) reserveFunds(ctx context.Context, in ports.MerchantPaymentInput, idempKey, reqHash string) (*domain.Transaction, int64, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, in.UserID)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, 0, apperror.ErrWalletNotFound()
	}
	if !wallet.CanDebit(in.Amount) {
		return nil, 0, apperror.ErrInsufficientFunds()
	}

	newBalance, err := s.walletRepo.AdjustBalance(ctx, dbTx, wallet.ID, -in.Amount)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("debit wallet: %w", err))
	}

	now := time.Now().UTC()
	ref := in.MerchantID.String()
	txn := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        domain.TransactionTypePayment,
		Direction:   domain.DirectionDebit,
		Amount:      in.Amount,
		Status:      domain.TransactionStatusPending,
		ReferenceID: &ref,
		CreatedAt:   now,
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	detail := &domain.MerchantPaymentDetail{
		TransactionID: txn.ID,
		MerchantID:    in.MerchantID,
		PaymentType:   in.PaymentType,
		QRCodeID:      in.QRCodeID,
		NFCNonce:      in.NFCNonce,
		Tip:           in.Tip,
		CreatedAt:     now,
	}
	if err := s.paymentRepo.Create(ctx, dbTx, detail); err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("create payment detail: %w", err))
	}

	rec := &domain.IdempotencyRecord{
		Key:           idempKey,
		Operation:     domain.OpMerchantPayment,
		TransactionID: &txn.ID,
		RequestHash:   reqHash,
		CreatedAt:     now,
	}
	if err := s.idempRepo.Create(ctx, dbTx, rec); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			// Lost the race with a concurrent duplicate; the winner's
			// row is the outcome to report.
			result, replayErr := s.replayFromRecord(ctx, idempKey, reqHash)
			return nil, 0, &replayOutcome{result: result, err: replayErr}
		}
		return nil, 0, apperror.InternalError(fmt.Errorf("claim idempotency key: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("commit reserve: %w", err))
	}
	return txn, newBalance, nil
}

func (s *LedgerServiceImpl) authorizeWithRetry(ctx context.Context, txnID uuid.UUID, amount int64, methodRef string) (ports.AuthResult, error) {
	var result ports.AuthResult
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result, err = s.authorizer.Authorize(ctx, txnID, amount, methodRef)
		if err == nil {
			return result, nil
		}
		s.log.Warn().Err(err).
			Str("tx_id", txnID.String()).
			Int("attempt", attempt).
			Msg("authorization attempt failed")
		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ports.AuthResult{}, ctx.Err()
		case <-time.After(s.retryBackoff):
		}
	}
	return ports.AuthResult{}, err
}

// compensate credits the reserved amount back and settles the record
// FAILED, atomically. A record that already left PENDING is not touched.
func (s *LedgerServiceImpl) compensate(ctx context.Context, txn *domain.Transaction, reason string) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin compensation: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.txRepo.UpdateStatusIfPending(ctx, dbTx, txn.ID, domain.TransactionStatusFailed, &reason)
	if err != nil {
		return fmt.Errorf("fail transaction: %w", err)
	}
	if !ok {
		// Someone already settled it; nothing to undo.
		return nil
	}
	if _, err := s.walletRepo.AdjustBalance(ctx, dbTx, txn.WalletID, txn.Amount); err != nil {
		return fmt.Errorf("refund wallet: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit compensation: %w", err)
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Int64("amount", txn.Amount).
		Str("reason", reason).
		Msg("payment failed, funds returned")
	return nil
}

func (s *LedgerServiceImpl) settle(ctx context.Context, txnID uuid.UUID, idempKey, reqHash string, result *ports.PaymentResult) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settle: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.txRepo.UpdateStatusIfPending(ctx, dbTx, txnID, domain.TransactionStatusCompleted, nil)
	if err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	if !ok {
		return fmt.Errorf("transaction %s no longer pending", txnID)
	}
	now := time.Now().UTC()
	if err := s.paymentRepo.SetCompletedAt(ctx, dbTx, txnID, now); err != nil {
		return fmt.Errorf("stamp payment detail: %w", err)
	}

	respJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := s.idempRepo.SetResponse(ctx, dbTx, idempKey, respJSON); err != nil {
		return fmt.Errorf("store idempotency response: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settle: %w", err)
	}

	// Best-effort cache for duplicate retries
	cacheStore(ctx, s.idempCache, s.log, idempKey, reqHash, respJSON, idempotencyTTL)
	return nil
}

// checkIdempotency resolves duplicate submissions before any side
// effect. done reports whether the request was already answered.
func (s *LedgerServiceImpl) checkIdempotency(ctx context.Context, idempKey, reqHash string) (*ports.PaymentResult, bool, error) {
	rec, err := s.idempRepo.Get(ctx, idempKey)
	if err != nil {
		return nil, true, apperror.InternalError(fmt.Errorf("idempotency check: %w", err))
	}
	if rec == nil {
		return nil, false, nil
	}
	result, replayErr := s.replayRecord(ctx, rec, reqHash)
	return result, true, replayErr
}

func (s *LedgerServiceImpl) replayFromRecord(ctx context.Context, idempKey, reqHash string) (*ports.PaymentResult, error) {
	rec, err := s.idempRepo.Get(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read idempotency record: %w", err))
	}
	if rec == nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency record vanished for key %s", idempKey))
	}
	return s.replayRecord(ctx, rec, reqHash)
}

// replayRecord reconstructs the original outcome of a duplicate
// request. The ledger row is the source of truth when no response
// snapshot was stored yet.
func (s *LedgerServiceImpl) replayRecord(ctx context.Context, rec *domain.IdempotencyRecord, reqHash string) (*ports.PaymentResult, error) {
	if rec.RequestHash != reqHash {
		return nil, apperror.ErrIdempotencyConflict()
	}
	if len(rec.ResponseJSON) > 0 {
		var result ports.PaymentResult
		if err := json.Unmarshal(rec.ResponseJSON, &result); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("unmarshal cached response: %w", err))
		}
		return &result, nil
	}
	if rec.TransactionID == nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency record %s has no transaction", rec.Key))
	}

	txn, err := s.txRepo.GetByID(ctx, *rec.TransactionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load original transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.InternalError(fmt.Errorf("original transaction %s not found", rec.TransactionID))
	}

	switch txn.Status {
	case domain.TransactionStatusFailed:
		reason := "payment failed"
		if txn.FailureReason != nil {
			reason = *txn.FailureReason
		}
		return nil, apperror.ErrAuthorizationFailed(reason)
	default:
		wallet, err := s.walletRepo.GetByID(ctx, txn.WalletID)
		if err != nil || wallet == nil {
			return nil, apperror.InternalError(fmt.Errorf("load wallet for replay: %w", err))
		}
		return &ports.PaymentResult{
			TransactionID: txn.ID,
			Status:        txn.Status,
			Amount:        txn.Amount,
			NewBalance:    wallet.Balance,
		}, nil
	}
}

// CompletePayment settles a PENDING payment to COMPLETED without moving
// funds (the debit already happened when the payment was initiated).
// Recovery path for payments stranded by a crash between phases.
func (s *LedgerServiceImpl) CompletePayment(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.txRepo.UpdateStatusIfPending(ctx, dbTx, transactionID, domain.TransactionStatusCompleted, nil)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("complete transaction: %w", err))
	}
	if !ok {
		return nil, apperror.ErrInvalidTransition()
	}
	if txn.Type == domain.TransactionTypePayment {
		if err := s.paymentRepo.SetCompletedAt(ctx, dbTx, transactionID, time.Now().UTC()); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("stamp payment detail: %w", err))
		}
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	return s.txRepo.GetByID(ctx, transactionID)
}

// FailPayment settles a PENDING payment to FAILED and returns the
// reserved funds. Recovery path for payments stranded by a crash
// between phases.
func (s *LedgerServiceImpl) FailPayment(ctx context.Context, transactionID uuid.UUID, reason string) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}
	if txn.IsTerminal() {
		return nil, apperror.ErrInvalidTransition()
	}

	if err := s.compensate(ctx, txn, reason); err != nil {
		return nil, apperror.InternalError(err)
	}
	return s.txRepo.GetByID(ctx, transactionID)
}

// GetPayment fetches a payment transaction with its merchant detail.
func (s *LedgerServiceImpl) GetPayment(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, *domain.MerchantPaymentDetail, error) {
	txn, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, nil, apperror.ErrTransactionNotFound()
	}
	detail, err := s.paymentRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("get payment detail: %w", err))
	}
	return txn, detail, nil
}
