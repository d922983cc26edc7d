package handler

import (
	"github.com/Andrejs1979/tap2-wallet/internal/adapter/http/dto"
	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"
	"github.com/Andrejs1979/tap2-wallet/pkg/apperror"
	"github.com/Andrejs1979/tap2-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles merchant payment endpoints.
type PaymentHandler struct {
	ledgerSvc ports.LedgerService
	walletSvc ports.WalletService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(ledgerSvc ports.LedgerService, walletSvc ports.WalletService) *PaymentHandler {
	return &PaymentHandler{ledgerSvc: ledgerSvc, walletSvc: walletSvc}
}

// InitiatePayment handles POST /api/v1/payments.
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		response.Error(c, apperror.Validation("merchant_id must be a UUID"))
		return
	}

	result, err := h.ledgerSvc.InitiateMerchantPayment(c.Request.Context(), ports.MerchantPaymentInput{
		UserID:         userID,
		MerchantID:     merchantID,
		Amount:         req.Amount,
		Tip:            req.Tip,
		PaymentType:    domain.PaymentType(req.PaymentType),
		QRCodeID:       req.QRCodeID,
		NFCNonce:       req.NFCNonce,
		MethodRef:      req.MethodRef,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toPaymentResultResponse(result))
}

// GetPayment handles GET /api/v1/payments/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("id must be a UUID"))
		return
	}

	txn, detail, err := h.ledgerSvc.GetPayment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	wallet, err := h.walletSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if txn.WalletID != wallet.ID {
		response.Error(c, apperror.ErrForbidden())
		return
	}

	response.OK(c, dto.HistoryItemResponse{
		Transaction: toTransactionResponse(txn),
		Payment:     toPaymentDetailResponse(detail),
	})
}

// CompletePayment handles POST /api/v1/payments/:id/complete. It is the
// settlement entry point for an authorization outcome that arrives after
// the reserve phase committed.
func (h *PaymentHandler) CompletePayment(c *gin.Context) {
	if _, ok := authedUser(c); !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("id must be a UUID"))
		return
	}

	txn, err := h.ledgerSvc.CompletePayment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(txn))
}

// FailPayment handles POST /api/v1/payments/:id/fail. It fails the
// PENDING payment and returns the reserved funds.
func (h *PaymentHandler) FailPayment(c *gin.Context) {
	if _, ok := authedUser(c); !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("id must be a UUID"))
		return
	}

	var req dto.FailPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txn, err := h.ledgerSvc.FailPayment(c.Request.Context(), id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(txn))
}
