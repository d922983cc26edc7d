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

// RequestHandler handles payment request endpoints.
type RequestHandler struct {
	requestSvc ports.RequestService
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(requestSvc ports.RequestService) *RequestHandler {
	return &RequestHandler{requestSvc: requestSvc}
}

// CreateRequest handles POST /api/v1/requests.
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	var expiresAt time.Time
	if req.ExpiresAt != nil {
		expiresAt = req.ExpiresAt.UTC()
	}

	created, err := h.requestSvc.CreateRequest(c.Request.Context(), ports.CreateRequestInput{
		RequesterID: userID,
		PayerID:     req.PayerID,
		Amount:      req.Amount,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toRequestResponse(created))
}

// AcceptRequest handles POST /api/v1/requests/:id/accept.
func (h *RequestHandler) AcceptRequest(c *gin.Context) {
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

	result, err := h.requestSvc.AcceptRequest(c.Request.Context(), id, userID, idempotencyKey(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransferResultResponse(result))
}

// CancelRequest handles POST /api/v1/requests/:id/cancel.
func (h *RequestHandler) CancelRequest(c *gin.Context) {
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

	cancelled, err := h.requestSvc.CancelRequest(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toRequestResponse(cancelled))
}

// GetRequest handles GET /api/v1/requests/:id.
func (h *RequestHandler) GetRequest(c *gin.Context) {
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

	req, err := h.requestSvc.GetRequest(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if req.RequesterID != userID && !req.AddressedTo(userID) {
		response.Error(c, apperror.ErrForbidden())
		return
	}

	response.OK(c, toRequestResponse(req))
}

// ListRequests handles GET /api/v1/requests.
func (h *RequestHandler) ListRequests(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	limit, offset := pagination(c)
	reqs, err := h.requestSvc.ListRequests(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.RequestResponse, 0, len(reqs))
	for i := range reqs {
		out = append(out, toRequestResponse(&reqs[i]))
	}
	response.OK(c, out)
}
