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

// BillSplitServiceImpl implements ports.BillSplitService.
type BillSplitServiceImpl struct {
	walletRepo   ports.WalletRepository
	txRepo       ports.TransactionRepository
	transferRepo ports.TransferRepository
	splitRepo    ports.BillSplitRepository
	idempRepo    ports.IdempotencyRepository
	idempCache   ports.IdempotencyCache
	transactor   ports.DBTransactor
	shareExpiry  time.Duration
	log          zerolog.Logger
}

// NewBillSplitService creates a new BillSplitServiceImpl.
func NewBillSplitService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transferRepo ports.TransferRepository,
	splitRepo ports.BillSplitRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	shareExpiry time.Duration,
	log zerolog.Logger,
) *BillSplitServiceImpl {
	return &BillSplitServiceImpl{
		walletRepo:   walletRepo,
		txRepo:       txRepo,
		transferRepo: transferRepo,
		splitRepo:    splitRepo,
		idempRepo:    idempRepo,
		idempCache:   idempCache,
		transactor:   transactor,
		shareExpiry:  shareExpiry,
		log:          log,
	}
}

// CreateSplit records a split and one PENDING obligation per share.
// The creator must hold a wallet so participants have someone to pay.
func (s *BillSplitServiceImpl) CreateSplit(ctx context.Context, in ports.CreateSplitInput) (*domain.BillSplit, []domain.BillSplitParticipant, error) {
	if len(in.Shares) == 0 {
		return nil, nil, apperror.Validation("a split needs at least one share")
	}

	var total int64
	seen := make(map[string]struct{}, len(in.Shares))
	for _, share := range in.Shares {
		if !domain.ValidAmount(share.AmountOwed) {
			return nil, nil, apperror.ErrInvalidAmount()
		}
		if share.UserID == in.CreatorID {
			return nil, nil, apperror.Validation("the creator cannot owe their own split")
		}
		if _, dup := seen[share.UserID]; dup {
			return nil, nil, apperror.Validation("duplicate participant " + share.UserID)
		}
		seen[share.UserID] = struct{}{}
		total += share.AmountOwed
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, in.CreatorID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("check creator wallet: %w", err))
	}
	if wallet == nil {
		return nil, nil, apperror.ErrWalletNotFound()
	}

	now := time.Now().UTC()
	split := &domain.BillSplit{
		ID:            uuid.New(),
		CreatorID:     in.CreatorID,
		Description:   in.Description,
		Total:         total,
		Status:        domain.SplitStatusOpen,
		TransactionID: in.TransactionID,
		CreatedAt:     now,
	}
	participants := make([]domain.BillSplitParticipant, 0, len(in.Shares))
	for _, share := range in.Shares {
		participants = append(participants, domain.BillSplitParticipant{
			ID:         uuid.New(),
			SplitID:    split.ID,
			UserID:     share.UserID,
			AmountOwed: share.AmountOwed,
			Status:     domain.ParticipantStatusPending,
		})
	}

	if err := s.splitRepo.Create(ctx, split, participants); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("create bill split: %w", err))
	}

	s.log.Info().
		Str("split_id", split.ID.String()).
		Str("creator_id", in.CreatorID).
		Int("participants", len(participants)).
		Int64("total", total).
		Msg("bill split created")

	return split, participants, nil
}

// PayShare settles the caller's obligation: the transfer to the creator,
// the obligation's PAID mark and the split's settlement check commit
// together.
func (s *BillSplitServiceImpl) PayShare(ctx context.Context, splitID uuid.UUID, userID, idempotencyKey string) (*ports.TransferResult, error) {
	if idempotencyKey == "" {
		return nil, apperror.ErrIdempotencyKeyRequired()
	}

	// Idempotency first: a share paid by an earlier attempt is no longer
	// PENDING, yet its duplicate must see the recorded result.
	idempKey := domain.BuildIdempotencyKey(domain.OpP2PTransfer, userID, idempotencyKey)
	reqHash := domain.HashRequest(fmt.Appendf(nil, "pay-share:%s:%s", splitID, userID))

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

	split, participants, err := s.splitRepo.GetByID(ctx, splitID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get bill split: %w", err))
	}
	if split == nil {
		return nil, apperror.ErrSplitNotFound()
	}
	obligation := findParticipant(participants, userID)
	if obligation == nil {
		return nil, apperror.ErrSplitNotFound()
	}
	if obligation.Status != domain.ParticipantStatusPending {
		return nil, apperror.ErrObligationNotPending()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	transfer, payerBalance, err := postTransfer(ctx, dbTx, s.walletRepo, s.txRepo, s.transferRepo,
		userID, split.CreatorID, obligation.AmountOwed, now.Add(s.shareExpiry))
	if err != nil {
		return nil, err
	}

	ok, err := s.splitRepo.UpdateParticipantIfPending(ctx, dbTx, splitID, userID, domain.ParticipantStatusPaid, &transfer.ID, &now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark share paid: %w", err))
	}
	if !ok {
		// Raced with a decline or a duplicate payment; posting rolls back.
		return nil, apperror.ErrObligationNotPending()
	}
	if _, err := s.splitRepo.MarkSettledIfComplete(ctx, dbTx, splitID, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("settle split: %w", err))
	}

	result := &ports.TransferResult{
		PaymentResult: ports.PaymentResult{
			TransactionID: transfer.TransactionID,
			Status:        domain.TransactionStatusCompleted,
			Amount:        obligation.AmountOwed,
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
		Str("split_id", splitID.String()).
		Str("user_id", userID).
		Str("transfer_id", transfer.ID.String()).
		Int64("amount", obligation.AmountOwed).
		Msg("bill split share paid")

	return result, nil
}

// DeclineShare marks the caller's obligation DECLINED. A declined share
// still counts toward settlement; only PENDING shares hold a split open.
func (s *BillSplitServiceImpl) DeclineShare(ctx context.Context, splitID uuid.UUID, userID string) error {
	split, participants, err := s.splitRepo.GetByID(ctx, splitID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get bill split: %w", err))
	}
	if split == nil {
		return apperror.ErrSplitNotFound()
	}
	if findParticipant(participants, userID) == nil {
		return apperror.ErrSplitNotFound()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.splitRepo.UpdateParticipantIfPending(ctx, dbTx, splitID, userID, domain.ParticipantStatusDeclined, nil, nil)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("decline share: %w", err))
	}
	if !ok {
		return apperror.ErrObligationNotPending()
	}
	if _, err := s.splitRepo.MarkSettledIfComplete(ctx, dbTx, splitID, time.Now().UTC()); err != nil {
		return apperror.InternalError(fmt.Errorf("settle split: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	s.log.Info().
		Str("split_id", splitID.String()).
		Str("user_id", userID).
		Msg("bill split share declined")

	return nil
}

// GetSplit fetches a split with its participants.
func (s *BillSplitServiceImpl) GetSplit(ctx context.Context, id uuid.UUID) (*domain.BillSplit, []domain.BillSplitParticipant, error) {
	split, participants, err := s.splitRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("get bill split: %w", err))
	}
	if split == nil {
		return nil, nil, apperror.ErrSplitNotFound()
	}
	return split, participants, nil
}

// ListSplits returns splits the user created or participates in.
func (s *BillSplitServiceImpl) ListSplits(ctx context.Context, userID string, limit, offset int) ([]domain.BillSplit, error) {
	splits, err := s.splitRepo.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list bill splits: %w", err))
	}
	return splits, nil
}

func findParticipant(participants []domain.BillSplitParticipant, userID string) *domain.BillSplitParticipant {
	for i := range participants {
		if participants[i].UserID == userID {
			return &participants[i]
		}
	}
	return nil
}
