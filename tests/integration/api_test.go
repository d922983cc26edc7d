package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpHandler "github.com/Andrejs1979/tap2-wallet/internal/adapter/http/handler"
	"github.com/Andrejs1979/tap2-wallet/internal/adapter/processor"
	redisStorage "github.com/Andrejs1979/tap2-wallet/internal/adapter/storage/redis"
	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"
	"github.com/Andrejs1979/tap2-wallet/internal/service"
	"github.com/Andrejs1979/tap2-wallet/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds the full application stack over in-memory storage:
// miniredis behind the real Redis stores, map-backed postgres repos, and
// the static payment authorizer. The real HTTP layer, middleware,
// handlers, and services run end-to-end.

type testApp struct {
	server       *httptest.Server
	redis        *miniredis.Miniredis
	walletRepo   *inMemoryWalletRepo
	txRepo       *inMemoryTransactionRepo
	merchantRepo *inMemoryMerchantRepo
	transferRepo *inMemoryTransferRepo
	requestRepo  *inMemoryRequestRepo
	sweeper      *service.Sweeper
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)

	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")

	walletRepo := newInMemoryWalletRepo()
	txRepo := newInMemoryTransactionRepo()
	merchantRepo := newInMemoryMerchantRepo()
	paymentRepo := newInMemoryMerchantPaymentRepo()
	transferRepo := newInMemoryTransferRepo()
	requestRepo := newInMemoryRequestRepo()
	splitRepo := newInMemoryBillSplitRepo()
	idempotencyRepo := newInMemoryIdempotencyRepo()
	transactor := newInMemoryTransactor()

	authorizer := processor.NewStaticAuthorizer()
	log := logger.New("debug", false)

	walletSvc := service.NewWalletService(walletRepo, txRepo, paymentRepo, transferRepo, idempotencyRepo, idempotencyCache, transactor, log)
	ledgerSvc := service.NewLedgerService(walletRepo, txRepo, merchantRepo, paymentRepo, idempotencyRepo, idempotencyCache, nonceStore, authorizer, transactor, 3, time.Millisecond, log)
	transferSvc := service.NewTransferService(walletRepo, txRepo, transferRepo, idempotencyRepo, idempotencyCache, transactor, 72*time.Hour, log)
	requestSvc := service.NewRequestService(walletRepo, txRepo, transferRepo, requestRepo, idempotencyRepo, idempotencyCache, transactor, 72*time.Hour, log)
	splitSvc := service.NewBillSplitService(walletRepo, txRepo, transferRepo, splitRepo, idempotencyRepo, idempotencyCache, transactor, 72*time.Hour, log)
	sweeper := service.NewSweeper(transferRepo, requestRepo, txRepo, transactor, time.Minute, 100, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:    walletSvc,
		LedgerSvc:    ledgerSvc,
		TransferSvc:  transferSvc,
		RequestSvc:   requestSvc,
		BillSplitSvc: splitSvc,
		TokenSvc:     tokenSvc,
		Logger:       log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:       server,
		redis:        mr,
		walletRepo:   walletRepo,
		txRepo:       txRepo,
		merchantRepo: merchantRepo,
		transferRepo: transferRepo,
		requestRepo:  requestRepo,
		sweeper:      sweeper,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// token obtains a bearer token for userID through the public endpoint.
func (a *testApp) token(t *testing.T, userID string) string {
	t.Helper()
	body := fmt.Sprintf(`{"user_id":%q}`, userID)
	resp, err := http.Post(a.server.URL+"/api/v1/auth/token", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.NotEmpty(t, result.Data.Token)
	return result.Data.Token
}

// do fires an authenticated JSON request and decodes the envelope.
func (a *testApp) do(t *testing.T, method, path, token, idempotencyKey string, body any) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

func data(t *testing.T, envelope map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := envelope["data"].(map[string]interface{})
	require.True(t, ok, "envelope has no data object: %v", envelope)
	return d
}

// seedMerchant registers an active merchant directly in storage.
func (a *testApp) seedMerchant(t *testing.T, name string) uuid.UUID {
	t.Helper()
	m := &domain.Merchant{
		ID:           uuid.New(),
		BusinessName: name,
		Tap2ID:       "m-" + uuid.NewString()[:8],
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, a.merchantRepo.Create(context.Background(), m))
	return m.ID
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_RequiresAuth(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Post(app.server.URL+"/api/v1/wallets", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_WalletLifecycle(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.token(t, "alice")

	// Create wallet
	code, envelope := app.do(t, http.MethodPost, "/api/v1/wallets", token, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "USD", data(t, envelope)["currency"])

	// Duplicate creation conflicts
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets", token, "", map[string]string{})
	assert.Equal(t, http.StatusConflict, code)

	// Fund
	code, envelope = app.do(t, http.MethodPost, "/api/v1/wallets/fund", token, "fund-1", map[string]any{
		"amount": 10000, "source_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)
	firstTxnID := data(t, envelope)["transaction_id"]
	assert.Equal(t, float64(10000), data(t, envelope)["new_balance"])

	// Retrying the same idempotency key replays the same outcome
	code, envelope = app.do(t, http.MethodPost, "/api/v1/wallets/fund", token, "fund-1", map[string]any{
		"amount": 10000, "source_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, firstTxnID, data(t, envelope)["transaction_id"])
	assert.Equal(t, float64(10000), data(t, envelope)["new_balance"])

	// Same key, different payload, is a conflict
	code, envelope = app.do(t, http.MethodPost, "/api/v1/wallets/fund", token, "fund-1", map[string]any{
		"amount": 999, "source_ref": "bank-42",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "IDM_002", envelope["error_code"])

	// Balance reflects exactly one fund
	code, envelope = app.do(t, http.MethodGet, "/api/v1/wallets/balance", token, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(10000), data(t, envelope)["balance"])

	// Withdraw more than the balance
	code, envelope = app.do(t, http.MethodPost, "/api/v1/wallets/withdraw", token, "wd-1", map[string]any{
		"amount": 20000, "destination_ref": "bank-42",
	})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "WAL_002", envelope["error_code"])
}

func TestIntegration_MerchantPayment(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.token(t, "alice")
	merchantID := app.seedMerchant(t, "Corner Coffee")

	code, _ := app.do(t, http.MethodPost, "/api/v1/wallets", token, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets/fund", token, "fund-1", map[string]any{
		"amount": 10000, "source_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)

	// Pay 2500 + 300 tip
	code, envelope := app.do(t, http.MethodPost, "/api/v1/payments", token, "pay-1", map[string]any{
		"merchant_id":  merchantID.String(),
		"amount":       2500,
		"tip":          300,
		"payment_type": "QR",
		"qr_code_id":   "qr-123",
		"method_ref":   "pm_card_visa",
	})
	require.Equal(t, http.StatusCreated, code)
	payment := data(t, envelope)
	assert.Equal(t, "COMPLETED", payment["status"])
	assert.Equal(t, float64(2500), payment["amount"])
	assert.Equal(t, float64(7500), payment["new_balance"])

	// The ledger entry is visible with its merchant detail
	txnID := payment["transaction_id"].(string)
	code, envelope = app.do(t, http.MethodGet, "/api/v1/payments/"+txnID, token, "", nil)
	require.Equal(t, http.StatusOK, code)
	item := data(t, envelope)
	txn := item["transaction"].(map[string]interface{})
	assert.Equal(t, "PAYMENT", txn["type"])
	assert.Equal(t, "DEBIT", txn["direction"])
	detail := item["payment"].(map[string]interface{})
	assert.Equal(t, float64(300), detail["tip"])

	// Unknown merchant
	code, envelope = app.do(t, http.MethodPost, "/api/v1/payments", token, "pay-2", map[string]any{
		"merchant_id":  uuid.NewString(),
		"amount":       100,
		"payment_type": "QR",
		"method_ref":   "pm_card_visa",
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "PAY_001", envelope["error_code"])

	// Insufficient funds
	code, envelope = app.do(t, http.MethodPost, "/api/v1/payments", token, "pay-3", map[string]any{
		"merchant_id":  merchantID.String(),
		"amount":       999999,
		"payment_type": "QR",
		"method_ref":   "pm_card_visa",
	})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "WAL_002", envelope["error_code"])
}

func TestIntegration_NFCNonceReplay(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := app.token(t, "alice")
	merchantID := app.seedMerchant(t, "Tap Kiosk")

	code, _ := app.do(t, http.MethodPost, "/api/v1/wallets", token, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets/fund", token, "fund-1", map[string]any{
		"amount": 10000, "source_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)

	pay := func(key string) (int, map[string]interface{}) {
		return app.do(t, http.MethodPost, "/api/v1/payments", token, key, map[string]any{
			"merchant_id":  merchantID.String(),
			"amount":       1000,
			"payment_type": "NFC",
			"nfc_nonce":    "tap-nonce-1",
			"method_ref":   "pm_card_visa",
		})
	}

	code, _ = pay("pay-1")
	require.Equal(t, http.StatusCreated, code)

	// Same tap nonce under a fresh idempotency key is a replay
	code, envelope := pay("pay-2")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "PAY_003", envelope["error_code"])
}

func TestIntegration_P2PTransfer(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceToken := app.token(t, "alice")
	bobToken := app.token(t, "bob")

	code, _ := app.do(t, http.MethodPost, "/api/v1/wallets", aliceToken, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets", bobToken, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets/fund", aliceToken, "fund-1", map[string]any{
		"amount": 5000, "source_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)

	// Alice sends Bob 1500
	code, envelope := app.do(t, http.MethodPost, "/api/v1/transfers", aliceToken, "xfer-1", map[string]any{
		"recipient_id": "bob", "amount": 1500,
	})
	require.Equal(t, http.StatusCreated, code)
	result := data(t, envelope)
	assert.Equal(t, "COMPLETED", result["status"])
	assert.Equal(t, float64(3500), result["new_balance"])

	// Both balances moved
	code, envelope = app.do(t, http.MethodGet, "/api/v1/wallets/balance", bobToken, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1500), data(t, envelope)["balance"])

	// Bob sees the transfer, a stranger does not
	transferID := result["transfer_id"].(string)
	code, _ = app.do(t, http.MethodGet, "/api/v1/transfers/"+transferID, bobToken, "", nil)
	assert.Equal(t, http.StatusOK, code)
	malloryToken := app.token(t, "mallory")
	code, _ = app.do(t, http.MethodGet, "/api/v1/transfers/"+transferID, malloryToken, "", nil)
	assert.Equal(t, http.StatusForbidden, code)

	// Self-transfer rejected
	code, envelope = app.do(t, http.MethodPost, "/api/v1/transfers", aliceToken, "xfer-2", map[string]any{
		"recipient_id": "alice", "amount": 100,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "P2P_001", envelope["error_code"])
}

func TestIntegration_PaymentRequestFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceToken := app.token(t, "alice")
	bobToken := app.token(t, "bob")

	code, _ := app.do(t, http.MethodPost, "/api/v1/wallets", aliceToken, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets", bobToken, "", map[string]string{})
	require.Equal(t, http.StatusCreated, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/wallets/fund", bobToken, "fund-1", map[string]any{
		"amount": 5000, "source_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)

	// Alice requests 2000 from Bob
	code, envelope := app.do(t, http.MethodPost, "/api/v1/requests", aliceToken, "", map[string]any{
		"payer_id": "bob", "amount": 2000,
	})
	require.Equal(t, http.StatusCreated, code)
	requestID := data(t, envelope)["id"].(string)

	// Bob accepts
	code, envelope = app.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/accept", bobToken, "acc-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3000), data(t, envelope)["new_balance"])

	// Money arrived
	code, envelope = app.do(t, http.MethodGet, "/api/v1/wallets/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2000), data(t, envelope)["balance"])

	// Accepting again with the same key replays, not double-charges
	code, envelope = app.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/accept", bobToken, "acc-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3000), data(t, envelope)["new_balance"])

	// A fresh key against the completed request conflicts
	code, envelope = app.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/accept", bobToken, "acc-2", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "REQ_002", envelope["error_code"])

	// Cancelling a completed request conflicts too
	code, _ = app.do(t, http.MethodPost, "/api/v1/requests/"+requestID+"/cancel", aliceToken, "", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestIntegration_BillSplitFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	aliceToken := app.token(t, "alice")
	bobToken := app.token(t, "bob")
	carolToken := app.token(t, "carol")

	for _, tok := range []string{aliceToken, bobToken, carolToken} {
		code, _ := app.do(t, http.MethodPost, "/api/v1/wallets", tok, "", map[string]string{})
		require.Equal(t, http.StatusCreated, code)
	}
	code, _ := app.do(t, http.MethodPost, "/api/v1/wallets/fund", bobToken, "fund-b", map[string]any{
		"amount": 5000, "source_ref": "bank-42",
	})
	require.Equal(t, http.StatusCreated, code)

	// Alice splits a 3000 dinner between Bob and Carol
	code, envelope := app.do(t, http.MethodPost, "/api/v1/splits", aliceToken, "", map[string]any{
		"description": "dinner",
		"shares": []map[string]any{
			{"user_id": "bob", "amount_owed": 1200},
			{"user_id": "carol", "amount_owed": 1800},
		},
	})
	require.Equal(t, http.StatusCreated, code)
	split := data(t, envelope)
	splitID := split["id"].(string)
	assert.Equal(t, float64(3000), split["total"])
	assert.Equal(t, "OPEN", split["status"])

	// Bob pays his share
	code, envelope = app.do(t, http.MethodPost, "/api/v1/splits/"+splitID+"/pay", bobToken, "share-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3800), data(t, envelope)["new_balance"])

	// Split still open while Carol is pending
	code, envelope = app.do(t, http.MethodGet, "/api/v1/splits/"+splitID, aliceToken, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OPEN", data(t, envelope)["status"])

	// Carol declines; that settles the split
	code, _ = app.do(t, http.MethodPost, "/api/v1/splits/"+splitID+"/decline", carolToken, "", nil)
	require.Equal(t, http.StatusOK, code)

	code, envelope = app.do(t, http.MethodGet, "/api/v1/splits/"+splitID, aliceToken, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SETTLED", data(t, envelope)["status"])

	// Alice collected Bob's share only
	code, envelope = app.do(t, http.MethodGet, "/api/v1/wallets/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1200), data(t, envelope)["balance"])

	// Paying an already-settled share conflicts
	code, envelope = app.do(t, http.MethodPost, "/api/v1/splits/"+splitID+"/pay", bobToken, "share-2", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "SPL_002", envelope["error_code"])
}

func TestIntegration_HistoryJoinsDetails(t *testing.T) {
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
		"amount": 10000, "source_ref": "bank-42",
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
		"recipient_id": "bob", "amount": 1500,
	})
	require.Equal(t, http.StatusCreated, code)

	req, err := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/wallets/history", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer r.Body.Close()
	require.Equal(t, http.StatusOK, r.StatusCode)

	var envelope struct {
		Data []struct {
			Transaction struct {
				Type string `json:"type"`
			} `json:"transaction"`
			Payment  *struct{} `json:"payment"`
			Transfer *struct{} `json:"transfer"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
	require.Len(t, envelope.Data, 3) // fund, payment, transfer debit

	byType := map[string]bool{}
	for _, item := range envelope.Data {
		byType[item.Transaction.Type] = true
		switch item.Transaction.Type {
		case "PAYMENT":
			assert.NotNil(t, item.Payment)
		case "P2P":
			assert.NotNil(t, item.Transfer)
		}
	}
	assert.True(t, byType["FUND"] && byType["PAYMENT"] && byType["P2P"])
}
