package handler

import (
	"strconv"

	"github.com/Andrejs1979/tap2-wallet/internal/adapter/http/dto"
	"github.com/Andrejs1979/tap2-wallet/internal/adapter/http/middleware"
	"github.com/Andrejs1979/tap2-wallet/internal/core/domain"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// authedUser returns the user ID the auth middleware put on the context.
func authedUser(c *gin.Context) (string, bool) {
	id, ok := c.Get(middleware.CtxUserID)
	if !ok {
		return "", false
	}
	s, ok := id.(string)
	return s, ok
}

func idempotencyKey(c *gin.Context) string {
	return c.GetHeader(middleware.HeaderIdempotencyKey)
}

// pagination reads limit/offset query params with sane bounds.
func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = min(n, maxPageSize)
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func toWalletResponse(w *domain.Wallet) dto.WalletResponse {
	return dto.WalletResponse{
		ID:        w.ID.String(),
		UserID:    w.UserID,
		Balance:   w.Balance,
		Currency:  w.Currency,
		CreatedAt: w.CreatedAt,
	}
}

func toPaymentResultResponse(r *ports.PaymentResult) dto.PaymentResultResponse {
	return dto.PaymentResultResponse{
		TransactionID: r.TransactionID.String(),
		Status:        string(r.Status),
		Amount:        r.Amount,
		NewBalance:    r.NewBalance,
	}
}

func toTransferResultResponse(r *ports.TransferResult) dto.TransferResultResponse {
	return dto.TransferResultResponse{
		PaymentResultResponse: toPaymentResultResponse(&r.PaymentResult),
		TransferID:            r.TransferID.String(),
	}
}

func toTransactionResponse(t *domain.Transaction) dto.TransactionResponse {
	return dto.TransactionResponse{
		ID:            t.ID.String(),
		WalletID:      t.WalletID.String(),
		Type:          string(t.Type),
		Direction:     string(t.Direction),
		Amount:        t.Amount,
		Status:        string(t.Status),
		ReferenceID:   t.ReferenceID,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

func toPaymentDetailResponse(p *domain.MerchantPaymentDetail) *dto.PaymentDetailResponse {
	if p == nil {
		return nil
	}
	return &dto.PaymentDetailResponse{
		MerchantID:  p.MerchantID.String(),
		PaymentType: string(p.PaymentType),
		Tip:         p.Tip,
		CompletedAt: p.CompletedAt,
	}
}

func toTransferResponse(t *domain.P2PTransfer) *dto.TransferResponse {
	if t == nil {
		return nil
	}
	return &dto.TransferResponse{
		ID:                  t.ID.String(),
		TransactionID:       t.TransactionID.String(),
		CreditTransactionID: t.CreditTransactionID.String(),
		SenderID:            t.SenderID,
		RecipientID:         t.RecipientID,
		Amount:              t.Amount,
		Status:              string(t.Status),
		ExpiresAt:           t.ExpiresAt,
		CompletedAt:         t.CompletedAt,
		CreatedAt:           t.CreatedAt,
	}
}

func toRequestResponse(r *domain.PaymentRequest) dto.RequestResponse {
	resp := dto.RequestResponse{
		ID:          r.ID.String(),
		RequesterID: r.RequesterID,
		PayerID:     r.PayerID,
		Amount:      r.Amount,
		Status:      string(r.Status),
		ExpiresAt:   r.ExpiresAt,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
	}
	if r.TransferID != nil {
		id := r.TransferID.String()
		resp.TransferID = &id
	}
	return resp
}

func toSplitResponse(s *domain.BillSplit, participants []domain.BillSplitParticipant) dto.SplitResponse {
	resp := dto.SplitResponse{
		ID:          s.ID.String(),
		CreatorID:   s.CreatorID,
		Description: s.Description,
		Total:       s.Total,
		Status:      string(s.Status),
		CreatedAt:   s.CreatedAt,
		SettledAt:   s.SettledAt,
	}
	for i := range participants {
		p := &participants[i]
		pr := dto.ParticipantResponse{
			UserID:     p.UserID,
			AmountOwed: p.AmountOwed,
			Status:     string(p.Status),
			PaidAt:     p.PaidAt,
		}
		if p.TransferID != nil {
			id := p.TransferID.String()
			pr.TransferID = &id
		}
		resp.Participants = append(resp.Participants, pr)
	}
	return resp
}
