package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type transferTestDeps struct {
	svc          *TransferServiceImpl
	walletRepo   *mocks.MockWalletRepository
	txRepo       *mocks.MockTransactionRepository
	transferRepo *mocks.MockTransferRepository
	idempRepo    *mocks.MockIdempotencyRepository
	idempCache   *mocks.MockIdempotencyCache
	transactor   *mocks.MockDBTransactor
	ctrl         *gomock.Controller
}

func setupTransferService(t *testing.T) *transferTestDeps {
	ctrl := gomock.NewController(t)
	d := &transferTestDeps{
		walletRepo:   mocks.NewMockWalletRepository(ctrl),
		txRepo:       mocks.NewMockTransactionRepository(ctrl),
		transferRepo: mocks.NewMockTransferRepository(ctrl),
		idempRepo:    mocks.NewMockIdempotencyRepository(ctrl),
		idempCache:   mocks.NewMockIdempotencyCache(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewTransferService(
		d.walletRepo, d.txRepo, d.transferRepo,
		d.idempRepo, d.idempCache, d.transactor,
		72*time.Hour, zerolog.Nop(),
	)
	return d
}

// Fixed IDs so the lock ordering inside the posting is deterministic:
// the sender wallet sorts before the recipient wallet.
var (
	lowWalletID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	highWalletID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func TestTransferService_InitiateP2PTransfer_Success(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	sender := &domain.Wallet{ID: lowWalletID, UserID: "alice", Balance: 10000}
	recipient := &domain.Wallet{ID: highWalletID, UserID: "bob", Balance: 500}

	in := ports.P2PTransferInput{
		SenderID:       "alice",
		RecipientID:    "bob",
		Amount:         1500,
		IdempotencyKey: "key-1",
	}
	idempKey := domain.BuildIdempotencyKey(domain.OpP2PTransfer, "alice", "key-1")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)

	d.walletRepo.EXPECT().GetByUserID(ctx, "alice").Return(sender, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, "bob").Return(recipient, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowWalletID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, highWalletID).Return(recipient, nil)

	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, lowWalletID, int64(-1500)).Return(int64(8500), nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, highWalletID, int64(1500)).Return(int64(2000), nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil).Times(2)
	d.transferRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.txRepo.EXPECT().UpdateStatusIfPending(ctx, tx, gomock.Any(), domain.TransactionStatusCompleted, nil).Return(true, nil).Times(2)
	d.transferRepo.EXPECT().UpdateStatusIfPending(ctx, tx, gomock.Any(), domain.TransferStatusCompleted, gomock.Any()).Return(true, nil)

	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, idempKey, gomock.Any(), idempotencyTTL).Return(nil)

	result, err := d.svc.InitiateP2PTransfer(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.TransactionStatusCompleted, result.Status)
	assert.Equal(t, int64(1500), result.Amount)
	assert.Equal(t, int64(8500), result.NewBalance)
	assert.NotEqual(t, uuid.Nil, result.TransferID)
}

func TestTransferService_InitiateP2PTransfer_SelfTransfer(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	result, err := d.svc.InitiateP2PTransfer(context.Background(), ports.P2PTransferInput{
		SenderID:       "alice",
		RecipientID:    "alice",
		Amount:         100,
		IdempotencyKey: "key-1",
	})
	assert.Nil(t, result)
	assertAppError(t, err, "P2P_001")
}

func TestTransferService_InitiateP2PTransfer_RecipientMissing(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	idempKey := domain.BuildIdempotencyKey(domain.OpP2PTransfer, "alice", "key-1")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, "alice").Return(&domain.Wallet{ID: lowWalletID, UserID: "alice", Balance: 1000}, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, "ghost").Return(nil, nil)

	result, err := d.svc.InitiateP2PTransfer(ctx, ports.P2PTransferInput{
		SenderID:       "alice",
		RecipientID:    "ghost",
		Amount:         100,
		IdempotencyKey: "key-1",
	})
	assert.Nil(t, result)
	assertAppError(t, err, "P2P_002")
}

func TestTransferService_InitiateP2PTransfer_InsufficientFunds(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	sender := &domain.Wallet{ID: lowWalletID, UserID: "alice", Balance: 50}
	recipient := &domain.Wallet{ID: highWalletID, UserID: "bob", Balance: 0}
	idempKey := domain.BuildIdempotencyKey(domain.OpP2PTransfer, "alice", "key-1")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, "alice").Return(sender, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, "bob").Return(recipient, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowWalletID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, highWalletID).Return(recipient, nil)

	result, err := d.svc.InitiateP2PTransfer(ctx, ports.P2PTransferInput{
		SenderID:       "alice",
		RecipientID:    "bob",
		Amount:         1500,
		IdempotencyKey: "key-1",
	})
	assert.Nil(t, result)
	assertAppError(t, err, "WAL_002")
}

func TestTransferService_InitiateP2PTransfer_DuplicateKeyReplaysWinner(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	sender := &domain.Wallet{ID: lowWalletID, UserID: "alice", Balance: 10000}
	recipient := &domain.Wallet{ID: highWalletID, UserID: "bob", Balance: 500}

	in := ports.P2PTransferInput{
		SenderID:       "alice",
		RecipientID:    "bob",
		Amount:         1500,
		IdempotencyKey: "key-1",
	}
	idempKey := domain.BuildIdempotencyKey(domain.OpP2PTransfer, "alice", "key-1")
	reqJSON, err := json.Marshal(in)
	require.NoError(t, err)
	reqHash := domain.HashRequest(reqJSON)

	winnerTxnID := uuid.New()
	winnerTransferID := uuid.New()
	winnerResp, err := json.Marshal(ports.TransferResult{
		PaymentResult: ports.PaymentResult{
			TransactionID: winnerTxnID,
			Status:        domain.TransactionStatusCompleted,
			Amount:        1500,
			NewBalance:    8500,
		},
		TransferID: winnerTransferID,
	})
	require.NoError(t, err)

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)

	d.walletRepo.EXPECT().GetByUserID(ctx, "alice").Return(sender, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, "bob").Return(recipient, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowWalletID).Return(sender, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, highWalletID).Return(recipient, nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, lowWalletID, int64(-1500)).Return(int64(8500), nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, highWalletID, int64(1500)).Return(int64(2000), nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil).Times(2)
	d.transferRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.txRepo.EXPECT().UpdateStatusIfPending(ctx, tx, gomock.Any(), domain.TransactionStatusCompleted, nil).Return(true, nil).Times(2)
	d.transferRepo.EXPECT().UpdateStatusIfPending(ctx, tx, gomock.Any(), domain.TransferStatusCompleted, gomock.Any()).Return(true, nil)

	// The concurrent duplicate committed first; this posting rolls back
	// and the winner's recorded outcome is returned.
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(ports.ErrDuplicateKey)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(&domain.IdempotencyRecord{
		Key:          idempKey,
		RequestHash:  reqHash,
		ResponseJSON: winnerResp,
	}, nil)

	result, err := d.svc.InitiateP2PTransfer(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, winnerTransferID, result.TransferID)
	assert.Equal(t, winnerTxnID, result.TransactionID)
}

func TestTransferService_GetTransfer_NotFound(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	id := uuid.New()
	d.transferRepo.EXPECT().GetByID(context.Background(), id).Return(nil, nil)

	transfer, err := d.svc.GetTransfer(context.Background(), id)
	assert.Nil(t, transfer)
	assertAppError(t, err, "P2P_003")
}
