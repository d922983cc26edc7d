package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sweeper expires overdue PENDING transfers and payment requests in the
// background. It only flips statuses: transfers post and complete in one
// database transaction, so a PENDING row the sweeper sees never moved
// money and cancelling it needs no balance compensation.
type Sweeper struct {
	transferRepo ports.TransferRepository
	requestRepo  ports.RequestRepository
	txRepo       ports.TransactionRepository
	transactor   ports.DBTransactor
	interval     time.Duration
	batchSize    int
	log          zerolog.Logger
}

// NewSweeper creates a new Sweeper.
func NewSweeper(
	transferRepo ports.TransferRepository,
	requestRepo ports.RequestRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	interval time.Duration,
	batchSize int,
	log zerolog.Logger,
) *Sweeper {
	return &Sweeper{
		transferRepo: transferRepo,
		requestRepo:  requestRepo,
		txRepo:       txRepo,
		transactor:   transactor,
		interval:     interval,
		batchSize:    batchSize,
		log:          log,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Int("batch_size", s.batchSize).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			if err := s.SweepExpired(ctx, time.Now().UTC()); err != nil {
				s.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// SweepExpired processes one batch of expired transfers and requests.
// Every status flip is guarded on PENDING, so a sweep that races a
// concurrent acceptance, cancellation or another sweeper instance
// loses cleanly and skips the row.
func (s *Sweeper) SweepExpired(ctx context.Context, now time.Time) error {
	transferIDs, err := s.transferRepo.ListExpiredPending(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list expired transfers: %w", err)
	}
	var swept int
	for _, id := range transferIDs {
		if err := s.cancelTransfer(ctx, id); err != nil {
			s.log.Error().Err(err).Str("transfer_id", id.String()).Msg("expire transfer failed")
			continue
		}
		swept++
	}

	requestIDs, err := s.requestRepo.ListExpiredPending(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list expired requests: %w", err)
	}
	var expired int
	for _, id := range requestIDs {
		if err := s.expireRequest(ctx, id); err != nil {
			s.log.Error().Err(err).Str("request_id", id.String()).Msg("expire request failed")
			continue
		}
		expired++
	}

	if swept > 0 || expired > 0 {
		s.log.Info().Int("transfers_cancelled", swept).Int("requests_expired", expired).Msg("sweep completed")
	}
	return nil
}

// cancelTransfer cancels one expired transfer and fails its ledger rows,
// all in one transaction.
func (s *Sweeper) cancelTransfer(ctx context.Context, id uuid.UUID) error {
	transfer, err := s.transferRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get transfer: %w", err)
	}
	if transfer == nil || transfer.IsTerminal() {
		return nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := s.transferRepo.UpdateStatusIfPending(ctx, dbTx, id, domain.TransferStatusCancelled, nil)
	if err != nil {
		return fmt.Errorf("cancel transfer: %w", err)
	}
	if !ok {
		return nil
	}

	reason := "transfer expired"
	for _, txnID := range []uuid.UUID{transfer.TransactionID, transfer.CreditTransactionID} {
		if _, err := s.txRepo.UpdateStatusIfPending(ctx, dbTx, txnID, domain.TransactionStatusFailed, &reason); err != nil {
			return fmt.Errorf("fail ledger row %s: %w", txnID, err)
		}
	}

	return dbTx.Commit(ctx)
}

func (s *Sweeper) expireRequest(ctx context.Context, id uuid.UUID) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if _, err := s.requestRepo.UpdateStatusIfPending(ctx, dbTx, id, domain.RequestStatusExpired, nil, nil); err != nil {
		return fmt.Errorf("expire request: %w", err)
	}
	return dbTx.Commit(ctx)
}
