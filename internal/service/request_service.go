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

// RequestServiceImpl implements ports.RequestService.
type RequestServiceImpl struct {
	walletRepo    ports.WalletRepository
	txRepo        ports.TransactionRepository
	transferRepo  ports.TransferRepository
	requestRepo   ports.RequestRepository
	idempRepo     ports.IdempotencyRepository
	idempCache    ports.IdempotencyCache
	transactor    ports.DBTransactor
	defaultExpiry time.Duration
	log           zerolog.Logger
}

// NewRequestService creates a new RequestServiceImpl.
func NewRequestService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transferRepo ports.TransferRepository,
	requestRepo ports.RequestRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	defaultExpiry time.Duration,
	log zerolog.Logger,
) *RequestServiceImpl {
	return &RequestServiceImpl{
		walletRepo:    walletRepo,
		txRepo:        txRepo,
		transferRepo:  transferRepo,
		requestRepo:   requestRepo,
		idempRepo:     idempRepo,
		idempCache:    idempCache,
		transactor:    transactor,
		defaultExpiry: defaultExpiry,
		log:           log,
	}
}

// CreateRequest records a PENDING payment request. PayerID nil means
// anyone may pay it.
func (s *RequestServiceImpl) CreateRequest(ctx context.Context, in ports.CreateRequestInput) (*domain.PaymentRequest, error) {
	if !domain.ValidAmount(in.Amount) {
		return nil, apperror.ErrInvalidAmount()
	}
	if in.PayerID != nil && *in.PayerID == in.RequesterID {
		return nil, apperror.ErrInvalidRecipient()
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, in.RequesterID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check requester wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	now := time.Now().UTC()
	expiresAt := in.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.defaultExpiry)
	}

	req := &domain.PaymentRequest{
		ID:          uuid.New(),
		RequesterID: in.RequesterID,
		PayerID:     in.PayerID,
		Amount:      in.Amount,
		Status:      domain.RequestStatusPending,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payment request: %w", err))
	}

	s.log.Info().
		Str("request_id", req.ID.String()).
		Str("requester_id", in.RequesterID).
		Int64("amount", in.Amount).
		Msg("payment request created")

	return req, nil
}

// AcceptRequest pays a PENDING request: the transfer to the requester
// and the request's completion commit together.
func (s *RequestServiceImpl) AcceptRequest(ctx context.Context, requestID uuid.UUID, payerID, idempotencyKey string) (*ports.TransferResult, error) {
	if idempotencyKey == "" {
		return nil, apperror.ErrIdempotencyKeyRequired()
	}

	// Idempotency first: a request completed by an earlier attempt is
	// no longer PENDING, yet its duplicate must see the recorded result.
	idempKey := domain.BuildIdempotencyKey(domain.OpP2PTransfer, payerID, idempotencyKey)
	reqHash := domain.HashRequest(fmt.Appendf(nil, "accept-request:%s:%s", requestID, payerID))

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
		return replayTransferRecord(rec, reqHash)
	}

	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment request: %w", err))
	}
	if req == nil {
		return nil, apperror.ErrRequestNotFound()
	}
	if !req.AddressedTo(payerID) {
		return nil, apperror.ErrRequestNotAddressed()
	}
	if payerID == req.RequesterID {
		return nil, apperror.ErrInvalidRecipient()
	}

	now := time.Now().UTC()
	if req.Status != domain.RequestStatusPending || req.Expired(now) {
		return nil, apperror.ErrRequestNotPending()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	transfer, payerBalance, err := postTransfer(ctx, dbTx, s.walletRepo, s.txRepo, s.transferRepo,
		payerID, req.RequesterID, req.Amount, req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	ok, err := s.requestRepo.UpdateStatusIfPending(ctx, dbTx, requestID, domain.RequestStatusCompleted, &transfer.ID, &now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("complete payment request: %w", err))
	}
	if !ok {
		// Raced with a cancellation or the sweeper; posting rolls back.
		return nil, apperror.ErrRequestNotPending()
	}

	result := &ports.TransferResult{
		PaymentResult: ports.PaymentResult{
			TransactionID: transfer.TransactionID,
			Status:        domain.TransactionStatusCompleted,
			Amount:        req.Amount,
			NewBalance:    payerBalance,
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
			return replayTransferRecord(winner, reqHash)
		}
		return nil, apperror.InternalError(fmt.Errorf("claim idempotency key: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	cacheStore(ctx, s.idempCache, s.log, idempKey, reqHash, respJSON, idempotencyTTL)

	s.log.Info().
		Str("request_id", requestID.String()).
		Str("payer_id", payerID).
		Str("transfer_id", transfer.ID.String()).
		Int64("amount", req.Amount).
		Msg("payment request accepted")

	return result, nil
}

// CancelRequest cancels a PENDING request. Only the requester may.
func (s *RequestServiceImpl) CancelRequest(ctx context.Context, requestID uuid.UUID, requesterID string) (*domain.PaymentRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment request: %w", err))
	}
	if req == nil {
		return nil, apperror.ErrRequestNotFound()
	}
	if req.RequesterID != requesterID {
		return nil, apperror.ErrForbidden()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	ok, err := s.requestRepo.UpdateStatusIfPending(ctx, dbTx, requestID, domain.RequestStatusCancelled, nil, &now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("cancel payment request: %w", err))
	}
	if !ok {
		return nil, apperror.ErrRequestNotPending()
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	return s.requestRepo.GetByID(ctx, requestID)
}

// GetRequest fetches a payment request.
func (s *RequestServiceImpl) GetRequest(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment request: %w", err))
	}
	if req == nil {
		return nil, apperror.ErrRequestNotFound()
	}
	return req, nil
}

// ListRequests returns the user's requests, newest first.
func (s *RequestServiceImpl) ListRequests(ctx context.Context, userID string, limit, offset int) ([]domain.PaymentRequest, error) {
	reqs, err := s.requestRepo.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list payment requests: %w", err))
	}
	return reqs, nil
}

// replayTransferRecord replays a recorded transfer outcome for a
// duplicate submission.
func replayTransferRecord(rec *domain.IdempotencyRecord, reqHash string) (*ports.TransferResult, error) {
	if rec.RequestHash != reqHash {
		return nil, apperror.ErrIdempotencyConflict()
	}
	if len(rec.ResponseJSON) == 0 {
		return nil, apperror.InternalError(fmt.Errorf("idempotency record %s has no response", rec.Key))
	}
	var result ports.TransferResult
	if err := json.Unmarshal(rec.ResponseJSON, &result); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached response: %w", err))
	}
	return &result, nil
}
