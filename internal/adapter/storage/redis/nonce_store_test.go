package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceStore_FirstUseAccepted(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewNonceStore(client)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "merchant-1", "tap-nonce-abc", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNonceStore_ReplayRejected(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewNonceStore(client)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "merchant-1", "tap-nonce-abc", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Same nonce tapped again
	ok, err = store.CheckAndSet(ctx, "merchant-1", "tap-nonce-abc", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNonceStore_ScopedPerMerchant(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewNonceStore(client)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "merchant-1", "tap-nonce-abc", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.CheckAndSet(ctx, "merchant-2", "tap-nonce-abc", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "nonces are namespaced by merchant")
}

func TestNonceStore_ExpiredNonceReusable(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewNonceStore(client)
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "merchant-1", "tap-nonce-abc", 1*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	s.FastForward(2 * time.Second)

	ok, err = store.CheckAndSet(ctx, "merchant-1", "tap-nonce-abc", 1*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
