package handler

import (
	"github.com/Andrejs1979/tap2-wallet/internal/adapter/http/middleware"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc      ports.WalletService
	LedgerSvc      ports.LedgerService
	TransferSvc    ports.TransferService
	RequestSvc     ports.RequestService
	BillSplitSvc   ports.BillSplitService
	TokenSvc       ports.TokenService
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	v1 := r.Group("/api/v1")

	// --- Public routes ---
	authHandler := NewAuthHandler(deps.TokenSvc)
	v1.POST("/auth/token", authHandler.IssueToken)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallets := v1.Group("/wallets", jwtAuth)
	{
		wallets.POST("", walletHandler.CreateWallet)
		wallets.GET("/balance", walletHandler.GetBalance)
		wallets.GET("/history", walletHandler.GetHistory)
		wallets.POST("/fund", walletHandler.Fund)
		wallets.POST("/withdraw", walletHandler.Withdraw)
	}

	paymentHandler := NewPaymentHandler(deps.LedgerSvc, deps.WalletSvc)
	payments := v1.Group("/payments", jwtAuth)
	{
		payments.POST("", paymentHandler.InitiatePayment)
		payments.GET("/:id", paymentHandler.GetPayment)
		payments.POST("/:id/complete", paymentHandler.CompletePayment)
		payments.POST("/:id/fail", paymentHandler.FailPayment)
	}

	transferHandler := NewTransferHandler(deps.TransferSvc)
	transfers := v1.Group("/transfers", jwtAuth)
	{
		transfers.POST("", transferHandler.InitiateTransfer)
		transfers.GET("", transferHandler.ListTransfers)
		transfers.GET("/:id", transferHandler.GetTransfer)
	}

	requestHandler := NewRequestHandler(deps.RequestSvc)
	requests := v1.Group("/requests", jwtAuth)
	{
		requests.POST("", requestHandler.CreateRequest)
		requests.GET("", requestHandler.ListRequests)
		requests.GET("/:id", requestHandler.GetRequest)
		requests.POST("/:id/accept", requestHandler.AcceptRequest)
		requests.POST("/:id/cancel", requestHandler.CancelRequest)
	}

	splitHandler := NewBillSplitHandler(deps.BillSplitSvc)
	splits := v1.Group("/splits", jwtAuth)
	{
		splits.POST("", splitHandler.CreateSplit)
		splits.GET("", splitHandler.ListSplits)
		splits.GET("/:id", splitHandler.GetSplit)
		splits.POST("/:id/pay", splitHandler.PayShare)
		splits.POST("/:id/decline", splitHandler.DeclineShare)
	}

	return r
}
