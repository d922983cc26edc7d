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

// BillSplitHandler handles bill split endpoints.
type BillSplitHandler struct {
	splitSvc ports.BillSplitService
}

// NewBillSplitHandler creates a new BillSplitHandler.
func NewBillSplitHandler(splitSvc ports.BillSplitService) *BillSplitHandler {
	return &BillSplitHandler{splitSvc: splitSvc}
}

// CreateSplit handles POST /api/v1/splits.
func (h *BillSplitHandler) CreateSplit(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateSplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	in := ports.CreateSplitInput{
		CreatorID:   userID,
		Description: req.Description,
	}
	for _, share := range req.Shares {
		in.Shares = append(in.Shares, ports.SplitShare{
			UserID:     share.UserID,
			AmountOwed: share.AmountOwed,
		})
	}
	if req.TransactionID != nil {
		txnID, err := uuid.Parse(*req.TransactionID)
		if err != nil {
			response.Error(c, apperror.Validation("transaction_id must be a UUID"))
			return
		}
		in.TransactionID = &txnID
	}

	split, participants, err := h.splitSvc.CreateSplit(c.Request.Context(), in)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toSplitResponse(split, participants))
}

// PayShare handles POST /api/v1/splits/:id/pay.
func (h *BillSplitHandler) PayShare(c *gin.Context) {
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

	result, err := h.splitSvc.PayShare(c.Request.Context(), id, userID, idempotencyKey(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransferResultResponse(result))
}

// DeclineShare handles POST /api/v1/splits/:id/decline.
func (h *BillSplitHandler) DeclineShare(c *gin.Context) {
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

	if err := h.splitSvc.DeclineShare(c.Request.Context(), id, userID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"declined": true})
}

// GetSplit handles GET /api/v1/splits/:id.
func (h *BillSplitHandler) GetSplit(c *gin.Context) {
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

	split, participants, err := h.splitSvc.GetSplit(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !splitVisibleTo(split.CreatorID, participants, userID) {
		response.Error(c, apperror.ErrForbidden())
		return
	}

	response.OK(c, toSplitResponse(split, participants))
}

// ListSplits handles GET /api/v1/splits.
func (h *BillSplitHandler) ListSplits(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	limit, offset := pagination(c)
	splits, err := h.splitSvc.ListSplits(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.SplitResponse, 0, len(splits))
	for i := range splits {
		out = append(out, toSplitResponse(&splits[i], nil))
	}
	response.OK(c, out)
}

func splitVisibleTo(creatorID string, participants []domain.BillSplitParticipant, userID string) bool {
	if creatorID == userID {
		return true
	}
	for i := range participants {
		if participants[i].UserID == userID {
			return true
		}
	}
	return false
}
