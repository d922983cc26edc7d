package service

import (
	"context"
	"testing"

	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type walletTestDeps struct {
	svc          *WalletServiceImpl
	walletRepo   *mocks.MockWalletRepository
	txRepo       *mocks.MockTransactionRepository
	paymentRepo  *mocks.MockMerchantPaymentRepository
	transferRepo *mocks.MockTransferRepository
	idempRepo    *mocks.MockIdempotencyRepository
	idempCache   *mocks.MockIdempotencyCache
	transactor   *mocks.MockDBTransactor
	ctrl         *gomock.Controller
}

func setupWalletService(t *testing.T) *walletTestDeps {
	ctrl := gomock.NewController(t)
	d := &walletTestDeps{
		walletRepo:   mocks.NewMockWalletRepository(ctrl),
		txRepo:       mocks.NewMockTransactionRepository(ctrl),
		paymentRepo:  mocks.NewMockMerchantPaymentRepository(ctrl),
		transferRepo: mocks.NewMockTransferRepository(ctrl),
		idempRepo:    mocks.NewMockIdempotencyRepository(ctrl),
		idempCache:   mocks.NewMockIdempotencyCache(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewWalletService(
		d.walletRepo, d.txRepo, d.paymentRepo, d.transferRepo,
		d.idempRepo, d.idempCache, d.transactor, zerolog.Nop(),
	)
	return d
}

func TestWalletService_CreateWallet_Success(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.walletRepo.EXPECT().GetByUserID(ctx, "user-1").Return(nil, nil)
	d.walletRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	wallet, err := d.svc.CreateWallet(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, "user-1", wallet.UserID)
	assert.Equal(t, domain.DefaultCurrency, wallet.Currency)
	assert.Zero(t, wallet.Balance)
}

func TestWalletService_CreateWallet_AlreadyExists(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.walletRepo.EXPECT().GetByUserID(ctx, "user-1").Return(&domain.Wallet{ID: uuid.New(), UserID: "user-1"}, nil)

	wallet, err := d.svc.CreateWallet(ctx, "user-1", "USD")
	assert.Nil(t, wallet)
	assertAppError(t, err, "WAL_003")
}

func TestWalletService_GetBalance_NotFound(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.walletRepo.EXPECT().GetByUserID(ctx, "nobody").Return(nil, nil)

	wallet, err := d.svc.GetBalance(ctx, "nobody")
	assert.Nil(t, wallet)
	assertAppError(t, err, "WAL_001")
}

func TestWalletService_Fund_Success(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}
	idempKey := domain.BuildIdempotencyKey(domain.OpFund, "user-1", "key-1")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, "user-1").Return(&domain.Wallet{
		ID: walletID, UserID: "user-1", Balance: 100,
	}, nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, walletID, int64(5000)).Return(int64(5100), nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.txRepo.EXPECT().UpdateStatusIfPending(ctx, tx, gomock.Any(), domain.TransactionStatusCompleted, nil).Return(true, nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, idempKey, gomock.Any(), idempotencyTTL).Return(nil)

	result, err := d.svc.Fund(ctx, "user-1", 5000, "bank-ach-42", "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, result.Status)
	assert.Equal(t, int64(5100), result.NewBalance)
}

func TestWalletService_Withdraw_InsufficientFunds(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	idempKey := domain.BuildIdempotencyKey(domain.OpWithdraw, "user-1", "key-1")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, "user-1").Return(&domain.Wallet{
		ID: uuid.New(), UserID: "user-1", Balance: 100,
	}, nil)

	result, err := d.svc.Withdraw(ctx, "user-1", 5000, "bank-ach-42", "key-1")
	assert.Nil(t, result)
	assertAppError(t, err, "WAL_002")
}

func TestWalletService_Withdraw_MissingIdempotencyKey(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	result, err := d.svc.Withdraw(context.Background(), "user-1", 5000, "bank-ach-42", "")
	assert.Nil(t, result)
	assertAppError(t, err, "IDM_001")
}

func TestWalletService_Fund_ReplaysRecordedOutcome(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	txnID := uuid.New()
	idempKey := domain.BuildIdempotencyKey(domain.OpFund, "user-1", "key-1")
	reqHash := domain.HashRequest([]byte("fund:5000:bank-ach-42"))

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(&domain.IdempotencyRecord{
		Key:           idempKey,
		Operation:     domain.OpFund,
		TransactionID: &txnID,
		RequestHash:   reqHash,
		ResponseJSON:  []byte(`{"transaction_id":"` + txnID.String() + `","status":"COMPLETED","amount":5000,"new_balance":5100}`),
	}, nil)

	result, err := d.svc.Fund(ctx, "user-1", 5000, "bank-ach-42", "key-1")
	require.NoError(t, err)
	assert.Equal(t, txnID, result.TransactionID)
	assert.Equal(t, int64(5100), result.NewBalance)
}

func TestWalletService_GetHistory_JoinsDetails(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	payTxnID := uuid.New()
	p2pTxnID := uuid.New()
	merchantID := uuid.New()

	txns := []domain.Transaction{
		{ID: payTxnID, WalletID: walletID, Type: domain.TransactionTypePayment, Direction: domain.DirectionDebit, Amount: 2500, Status: domain.TransactionStatusCompleted},
		{ID: p2pTxnID, WalletID: walletID, Type: domain.TransactionTypeP2P, Direction: domain.DirectionDebit, Amount: 1000, Status: domain.TransactionStatusCompleted},
	}

	d.walletRepo.EXPECT().GetByUserID(ctx, "user-1").Return(&domain.Wallet{ID: walletID, UserID: "user-1"}, nil)
	d.txRepo.EXPECT().ListByWallet(ctx, walletID, 20, 0).Return(txns, nil)
	d.paymentRepo.EXPECT().ListByTransactionIDs(ctx, []uuid.UUID{payTxnID}).Return(map[uuid.UUID]domain.MerchantPaymentDetail{
		payTxnID: {TransactionID: payTxnID, MerchantID: merchantID, PaymentType: domain.PaymentTypeQR, Tip: 300},
	}, nil)
	d.transferRepo.EXPECT().GetByTransactionID(ctx, p2pTxnID).Return(&domain.P2PTransfer{
		ID: uuid.New(), TransactionID: p2pTxnID, SenderID: "user-1", RecipientID: "bob", Amount: 1000,
	}, nil)

	items, err := d.svc.GetHistory(ctx, "user-1", 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Payment)
	assert.Equal(t, merchantID, items[0].Payment.MerchantID)
	assert.Nil(t, items[0].Transfer)
	require.NotNil(t, items[1].Transfer)
	assert.Equal(t, "bob", items[1].Transfer.RecipientID)
}
