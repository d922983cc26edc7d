package integration

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentWithdrawals verifies the balance floor under concurrent
// load: 50 withdrawals race for a balance that covers only 10 of them.
// The balance mutation refuses any adjustment that would go negative, so
// whatever subset wins, the books must still add up.
//
// NOTE: with real PostgreSQL and SELECT FOR UPDATE the winners are
// linearized and exactly 10 succeed. The in-memory repos have no row
// locks, so lost reads can fail more than the surplus 40 — the invariant
// under test is that the balance never goes negative and every success
// moved exactly its amount.
func TestConcurrentWithdrawals(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.token(t, "alice")
	code, _ := app.do(t, http.MethodPost, "/api/v1/wallets", token, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets/fund", token, "fund-1", map[string]any{
		"amount": 10000, "source_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)

	concurrency := 50
	amount := int64(1000)

	var wg sync.WaitGroup
	var successCount atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c, _ := app.do(t, http.MethodPost, "/api/v1/wallets/withdraw", token,
				fmt.Sprintf("wd-%d", idx), map[string]any{
					"amount": amount, "destination_ref": "bank-42",
				})
			if c == http.StatusCreated {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	successes := successCount.Load()
	t.Logf("concurrent withdrawals: %d of %d succeeded", successes, concurrency)
	assert.LessOrEqual(t, successes, int64(10))

	code, envelope := app.do(t, http.MethodGet, "/api/v1/wallets/balance", token, "", nil)
	require.Equal(t, http.StatusOK, code)
	balance := int64(data(t, envelope)["balance"].(float64))

	assert.GreaterOrEqual(t, balance, int64(0), "balance must never go negative")
	assert.Equal(t, 10000-successes*amount, balance, "every success moved exactly its amount")
}

// TestRetryStorm_SingleDebit fires many concurrent retries of an
// already-completed withdrawal. Every retry must replay the recorded
// outcome; none may debit again.
func TestRetryStorm_SingleDebit(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.token(t, "alice")
	code, _ := app.do(t, http.MethodPost, "/api/v1/wallets", token, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets/fund", token, "fund-1", map[string]any{
		"amount": 10000, "source_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)

	withdraw := func() (int, map[string]interface{}) {
		return app.do(t, http.MethodPost, "/api/v1/wallets/withdraw", token, "wd-1", map[string]any{
			"amount": 1000, "destination_ref": "bank-42",
		})
	}

	code, envelope := withdraw()
	require.Equal(t, http.StatusCreated, code)
	originalTxnID := data(t, envelope)["transaction_id"]

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, env := withdraw()
			assert.Equal(t, http.StatusCreated, c)
			assert.Equal(t, originalTxnID, data(t, env)["transaction_id"])
		}()
	}
	wg.Wait()

	code, envelope = app.do(t, http.MethodGet, "/api/v1/wallets/balance", token, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(9000), data(t, envelope)["balance"], "retries must not debit again")
}

// TestLedgerAudit verifies that after a mixed workload the sum of
// COMPLETED credits minus COMPLETED debits equals the wallet balance.
func TestLedgerAudit(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceToken := app.token(t, "alice")
	bobToken := app.token(t, "bob")
	merchantID := app.seedMerchant(t, "Corner Coffee")

	code, _ := app.do(t, http.MethodPost, "/api/v1/wallets", aliceToken, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets", bobToken, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)

	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets/fund", aliceToken, "fund-1", map[string]any{
		"amount": 20000, "source_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/payments", aliceToken, "pay-1", map[string]any{
		"merchant_id":  merchantID.String(),
		"amount":       2500,
		"payment_type": "QR",
		"method_ref":   "pm_card_visa",
	})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/transfers", aliceToken, "xfer-1", map[string]any{
		"recipient_id": "bob", "amount": 3000,
	})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets/withdraw", aliceToken, "wd-1", map[string]any{
		"amount": 4000, "destination_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)

	for _, user := range []string{"alice", "bob"} {
		wallet, err := app.walletRepo.GetByUserID(context.Background(), user)
		require.NoError(t, err)
		require.NotNil(t, wallet)

		sum, err := app.txRepo.SumCompletedByWallet(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, wallet.Balance, sum, "ledger sum must equal balance for %s", user)
	}
}

// TestSweeper_ExpiresStaleWork seeds the leftovers of a crashed posting —
// a PENDING transfer past its deadline with its two PENDING ledger rows —
// plus an expired payment request, and verifies a sweep flips them all to
// their expired states exactly once.
func TestSweeper_ExpiresStaleWork(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ctx := context.Background()
	now := time.Now().UTC()

	debitID := uuid.New()
	creditID := uuid.New()
	for _, id := range []uuid.UUID{debitID, creditID} {
		direction := domain.DirectionDebit
		if id == creditID {
			direction = domain.DirectionCredit
		}
		require.NoError(t, app.txRepo.Create(ctx, nil, &domain.Transaction{
			ID:        id,
			WalletID:  uuid.New(),
			Type:      domain.TransactionTypeP2P,
			Direction: direction,
			Amount:    1500,
			Status:    domain.TransactionStatusPending,
			CreatedAt: now.Add(-2 * time.Hour),
		}))
	}

	transferID := uuid.New()
	require.NoError(t, app.transferRepo.Create(ctx, nil, &domain.P2PTransfer{
		ID:                  transferID,
		TransactionID:       debitID,
		CreditTransactionID: creditID,
		SenderID:            "alice",
		RecipientID:         "bob",
		Amount:              1500,
		Status:              domain.TransferStatusPending,
		ExpiresAt:           now.Add(-time.Hour),
		CreatedAt:           now.Add(-2 * time.Hour),
	}))

	requestID := uuid.New()
	require.NoError(t, app.requestRepo.Create(ctx, &domain.PaymentRequest{
		ID:          requestID,
		RequesterID: "alice",
		Amount:      2000,
		Status:      domain.RequestStatusPending,
		ExpiresAt:   now.Add(-time.Hour),
		CreatedAt:   now.Add(-2 * time.Hour),
	}))

	require.NoError(t, app.sweeper.SweepExpired(ctx, now))

	transfer, err := app.transferRepo.GetByID(ctx, transferID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCancelled, transfer.Status)

	for _, id := range []uuid.UUID{debitID, creditID} {
		txn, err := app.txRepo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
	}

	request, err := app.requestRepo.GetByID(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusExpired, request.Status)

	// Sweeping again is a no-op: everything is already terminal.
	require.NoError(t, app.sweeper.SweepExpired(ctx, now))
	transfer, err = app.transferRepo.GetByID(ctx, transferID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCancelled, transfer.Status)
}
