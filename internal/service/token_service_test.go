package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTTokenService("test-secret-at-least-32-characters", time.Hour, "tap2-wallet")

	token, expiresAt, err := svc.Generate("user-42")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	userID, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestJWTTokenService_RejectsWrongSecret(t *testing.T) {
	svc := NewJWTTokenService("test-secret-at-least-32-characters", time.Hour, "tap2-wallet")
	other := NewJWTTokenService("a-completely-different-signing-key", time.Hour, "tap2-wallet")

	token, _, err := svc.Generate("user-42")
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.Error(t, err)
}

func TestJWTTokenService_RejectsExpiredToken(t *testing.T) {
	svc := NewJWTTokenService("test-secret-at-least-32-characters", -time.Minute, "tap2-wallet")

	token, _, err := svc.Generate("user-42")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.Error(t, err)
}

func TestJWTTokenService_RejectsGarbage(t *testing.T) {
	svc := NewJWTTokenService("test-secret-at-least-32-characters", time.Hour, "tap2-wallet")

	_, err := svc.Validate("not.a.token")
	assert.Error(t, err)
}
