package processor

import (
	"context"
	"strings"

	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"

	"github.com/google/uuid"
)

// StaticAuthorizer implements ports.PaymentAuthorizer without an
// external processor. It approves everything except method references
// carrying a "declined" marker, which lets local environments exercise
// the compensation path. Used when authorizer.provider is "static".
type StaticAuthorizer struct{}

// NewStaticAuthorizer creates a static authorizer.
func NewStaticAuthorizer() *StaticAuthorizer {
	return &StaticAuthorizer{}
}

func (a *StaticAuthorizer) Authorize(_ context.Context, _ uuid.UUID, _ int64, methodRef string) (ports.AuthResult, error) {
	if strings.Contains(methodRef, "declined") {
		return ports.AuthResult{Outcome: ports.AuthDeclined, Reason: "method declined"}, nil
	}
	return ports.AuthResult{Outcome: ports.AuthApproved}, nil
}
