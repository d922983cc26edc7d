package handler

import (
	"time"

	"github.com/Andrejs1979/tap2-wallet/internal/adapter/http/dto"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"
	"github.com/Andrejs1979/tap2-wallet/pkg/apperror"
	"github.com/Andrejs1979/tap2-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransferHandler handles P2P transfer endpoints.
type TransferHandler struct {
	transferSvc ports.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transferSvc ports.TransferService) *TransferHandler {
	return &TransferHandler{transferSvc: transferSvc}
}

// InitiateTransfer handles POST /api/v1/transfers.
func (h *TransferHandler) InitiateTransfer(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	var expiresAt time.Time
	if req.ExpiresAt != nil {
		expiresAt = req.ExpiresAt.UTC()
	}

	result, err := h.transferSvc.InitiateP2PTransfer(c.Request.Context(), ports.P2PTransferInput{
		SenderID:       userID,
		RecipientID:    req.RecipientID,
		Amount:         req.Amount,
		ExpiresAt:      expiresAt,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransferResultResponse(result))
}

// GetTransfer handles GET /api/v1/transfers/:id.
func (h *TransferHandler) GetTransfer(c *gin.Context) {
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

	transfer, err := h.transferSvc.GetTransfer(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if transfer.SenderID != userID && transfer.RecipientID != userID {
		response.Error(c, apperror.ErrForbidden())
		return
	}

	response.OK(c, toTransferResponse(transfer))
}

// ListTransfers handles GET /api/v1/transfers.
func (h *TransferHandler) ListTransfers(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	limit, offset := pagination(c)
	transfers, err := h.transferSvc.ListTransfers(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.TransferResponse, 0, len(transfers))
	for i := range transfers {
		out = append(out, *toTransferResponse(&transfers[i]))
	}
	response.OK(c, out)
}
