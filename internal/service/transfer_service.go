package service

import (
	"bytes"
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

// TransferServiceImpl implements ports.TransferService.
//
// A transfer is double-entry: the sender gets a DEBIT ledger record and
// the recipient a CREDIT record, both posted and completed in one
// database transaction, so the ledger sum of every wallet tracks its
// balance at every commit point.
type TransferServiceImpl struct {
	walletRepo    ports.WalletRepository
	txRepo        ports.TransactionRepository
	transferRepo  ports.TransferRepository
	idempRepo     ports.IdempotencyRepository
	idempCache    ports.IdempotencyCache
	transactor    ports.DBTransactor
	defaultExpiry time.Duration
	log           zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transferRepo ports.TransferRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	defaultExpiry time.Duration,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		walletRepo:    walletRepo,
		txRepo:        txRepo,
		transferRepo:  transferRepo,
		idempRepo:     idempRepo,
		idempCache:    idempCache,
		transactor:    transactor,
		defaultExpiry: defaultExpiry,
		log:           log,
	}
}

// InitiateP2PTransfer moves funds between two user wallets.
func (s *TransferServiceImpl) InitiateP2PTransfer(ctx context.Context, in ports.P2PTransferInput) (*ports.TransferResult, error) {
	if !domain.ValidAmount(in.Amount) {
		return nil, apperror.ErrInvalidAmount()
	}
	if in.SenderID == in.RecipientID {
		return nil, apperror.ErrInvalidRecipient()
	}
	if in.IdempotencyKey == "" {
		return nil, apperror.ErrIdempotencyKeyRequired()
	}

	idempKey := domain.BuildIdempotencyKey(domain.OpP2PTransfer, in.SenderID, in.IdempotencyKey)
	reqJSON, err := json.Marshal(in)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal request: %w", err))
	}
	reqHash := domain.HashRequest(reqJSON)

	var cached ports.TransferResult
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
		return s.replayTransfer(ctx, rec, reqHash)
	}

	expiresAt := in.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().UTC().Add(s.defaultExpiry)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	transfer, senderBalance, err := postTransfer(ctx, dbTx, s.walletRepo, s.txRepo, s.transferRepo,
		in.SenderID, in.RecipientID, in.Amount, expiresAt)
	if err != nil {
		return nil, err
	}

	result := &ports.TransferResult{
		PaymentResult: ports.PaymentResult{
			TransactionID: transfer.TransactionID,
			Status:        domain.TransactionStatusCompleted,
			Amount:        in.Amount,
			NewBalance:    senderBalance,
		},
		TransferID: transfer.ID,
	}
	respJSON, err := json.Marshal(result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}

	idempRec := &domain.IdempotencyRecord{
		Key:           idempKey,
		Operation:     domain.OpP2PTransfer,
		TransactionID: &transfer.TransactionID,
		RequestHash:   reqHash,
		ResponseJSON:  respJSON,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.idempRepo.Create(ctx, dbTx, idempRec); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			// A concurrent duplicate committed first; its outcome wins
			// and our posting rolls back.
			if rbErr := dbTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				return nil, apperror.InternalError(fmt.Errorf("rollback after duplicate: %w", rbErr))
			}
			winner, err := s.idempRepo.Get(ctx, idempKey)
			if err != nil || winner == nil {
				return nil, apperror.InternalError(fmt.Errorf("read winning idempotency record: %w", err))
			}
			return s.replayTransfer(ctx, winner, reqHash)
		}
		return nil, apperror.InternalError(fmt.Errorf("claim idempotency key: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit transfer: %w", err))
	}

	cacheStore(ctx, s.idempCache, s.log, idempKey, reqHash, respJSON, idempotencyTTL)

	s.log.Info().
		Str("transfer_id", transfer.ID.String()).
		Str("sender_id", in.SenderID).
		Str("recipient_id", in.RecipientID).
		Int64("amount", in.Amount).
		Msg("p2p transfer completed")

	return result, nil
}

// GetTransfer fetches a transfer by ID.
func (s *TransferServiceImpl) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.P2PTransfer, error) {
	transfer, err := s.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transfer: %w", err))
	}
	if transfer == nil {
		return nil, apperror.ErrTransferNotFound()
	}
	return transfer, nil
}

// ListTransfers returns the user's transfers, newest first.
func (s *TransferServiceImpl) ListTransfers(ctx context.Context, userID string, limit, offset int) ([]domain.P2PTransfer, error) {
	transfers, err := s.transferRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transfers: %w", err))
	}
	return transfers, nil
}

func (s *TransferServiceImpl) replayTransfer(ctx context.Context, rec *domain.IdempotencyRecord, reqHash string) (*ports.TransferResult, error) {
	if rec.RequestHash != reqHash {
		return nil, apperror.ErrIdempotencyConflict()
	}
	if len(rec.ResponseJSON) > 0 {
		var result ports.TransferResult
		if err := json.Unmarshal(rec.ResponseJSON, &result); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("unmarshal cached response: %w", err))
		}
		return &result, nil
	}
	if rec.TransactionID == nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency record %s has no transaction", rec.Key))
	}

	transfer, err := s.transferRepo.GetByTransactionID(ctx, *rec.TransactionID)
	if err != nil || transfer == nil {
		return nil, apperror.InternalError(fmt.Errorf("load original transfer: %w", err))
	}
	txn, err := s.txRepo.GetByID(ctx, transfer.TransactionID)
	if err != nil || txn == nil {
		return nil, apperror.InternalError(fmt.Errorf("load original transaction: %w", err))
	}
	wallet, err := s.walletRepo.GetByID(ctx, txn.WalletID)
	if err != nil || wallet == nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet for replay: %w", err))
	}

	return &ports.TransferResult{
		PaymentResult: ports.PaymentResult{
			TransactionID: txn.ID,
			Status:        txn.Status,
			Amount:        txn.Amount,
			NewBalance:    wallet.Balance,
		},
		TransferID: transfer.ID,
	}, nil
}

// postTransfer executes the double-entry posting inside an already-open
// database transaction: locks both wallets in ascending wallet-ID order,
// debits the sender, credits the recipient, appends both ledger records
// and the transfer detail row, and completes them all. Shared by the
// direct P2P path, payment request acceptance and bill split settlement.
func postTransfer(
	ctx context.Context,
	dbTx pgx.Tx,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transferRepo ports.TransferRepository,
	senderID, recipientID string,
	amount int64,
	expiresAt time.Time,
) (*domain.P2PTransfer, int64, error) {
	sender, err := walletRepo.GetByUserID(ctx, senderID)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("resolve sender wallet: %w", err))
	}
	if sender == nil {
		return nil, 0, apperror.ErrWalletNotFound()
	}
	recipient, err := walletRepo.GetByUserID(ctx, recipientID)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("resolve recipient wallet: %w", err))
	}
	if recipient == nil {
		return nil, 0, apperror.ErrRecipientNotFound()
	}

	// Lock both wallets in ascending wallet-ID order so two opposing
	// transfers cannot deadlock.
	first, second := sender, recipient
	if bytes.Compare(recipient.ID[:], sender.ID[:]) < 0 {
		first, second = recipient, sender
	}
	lockedFirst, err := walletRepo.GetByIDForUpdate(ctx, dbTx, first.ID)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	lockedSecond, err := walletRepo.GetByIDForUpdate(ctx, dbTx, second.ID)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if lockedFirst == nil || lockedSecond == nil {
		return nil, 0, apperror.ErrWalletNotFound()
	}
	if lockedFirst.ID == sender.ID {
		sender = lockedFirst
	} else {
		sender = lockedSecond
	}

	if !sender.CanDebit(amount) {
		return nil, 0, apperror.ErrInsufficientFunds()
	}

	senderBalance, err := walletRepo.AdjustBalance(ctx, dbTx, sender.ID, -amount)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("debit sender: %w", err))
	}
	if _, err := walletRepo.AdjustBalance(ctx, dbTx, recipient.ID, amount); err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("credit recipient: %w", err))
	}

	now := time.Now().UTC()
	debit := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  sender.ID,
		Type:      domain.TransactionTypeP2P,
		Direction: domain.DirectionDebit,
		Amount:    amount,
		Status:    domain.TransactionStatusPending,
		CreatedAt: now,
	}
	credit := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  recipient.ID,
		Type:      domain.TransactionTypeP2P,
		Direction: domain.DirectionCredit,
		Amount:    amount,
		Status:    domain.TransactionStatusPending,
		CreatedAt: now,
	}
	if err := txRepo.Create(ctx, dbTx, debit); err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("create debit record: %w", err))
	}
	if err := txRepo.Create(ctx, dbTx, credit); err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("create credit record: %w", err))
	}

	transfer := &domain.P2PTransfer{
		ID:                  uuid.New(),
		TransactionID:       debit.ID,
		CreditTransactionID: credit.ID,
		SenderID:            senderID,
		RecipientID:         recipientID,
		Amount:              amount,
		Status:              domain.TransferStatusPending,
		ExpiresAt:           expiresAt,
		CreatedAt:           now,
	}
	if err := transferRepo.Create(ctx, dbTx, transfer); err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("create transfer detail: %w", err))
	}

	// Funds moved and records exist; complete everything in the same
	// transaction so no committed state is ever half-posted.
	for _, id := range []uuid.UUID{debit.ID, credit.ID} {
		ok, err := txRepo.UpdateStatusIfPending(ctx, dbTx, id, domain.TransactionStatusCompleted, nil)
		if err != nil {
			return nil, 0, apperror.InternalError(fmt.Errorf("complete ledger record: %w", err))
		}
		if !ok {
			return nil, 0, apperror.InternalError(fmt.Errorf("ledger record %s not pending", id))
		}
	}
	ok, err := transferRepo.UpdateStatusIfPending(ctx, dbTx, transfer.ID, domain.TransferStatusCompleted, &now)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("complete transfer: %w", err))
	}
	if !ok {
		return nil, 0, apperror.InternalError(fmt.Errorf("transfer %s not pending", transfer.ID))
	}
	transfer.Status = domain.TransferStatusCompleted
	transfer.CompletedAt = &now

	return transfer, senderBalance, nil
}
