package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"
	"github.com/Andrejs1979/tap2-wallet/pkg/apperror"

	"github.com/rs/zerolog"
)

// cachedResponse is the Redis cache envelope. The request hash rides
// along so a duplicate key with a different payload is still rejected
// on the fast path.
type cachedResponse struct {
	RequestHash string          `json:"request_hash"`
	Response    json.RawMessage `json:"response"`
}

// cacheLookup checks the Redis fast path for a completed duplicate.
// A cache failure is logged and treated as a miss.
func cacheLookup(ctx context.Context, cache ports.IdempotencyCache, log zerolog.Logger, key, reqHash string, out any) (bool, error) {
	raw, err := cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("idempotency cache read failed, falling through to db")
		return false, nil
	}
	if raw == nil {
		return false, nil
	}
	var env cachedResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("malformed idempotency cache entry")
		return false, nil
	}
	if env.RequestHash != reqHash {
		return true, apperror.ErrIdempotencyConflict()
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return false, apperror.InternalError(fmt.Errorf("unmarshal cached response: %w", err))
	}
	return true, nil
}

// cacheStore writes the settled response to the Redis fast path,
// best-effort.
func cacheStore(ctx context.Context, cache ports.IdempotencyCache, log zerolog.Logger, key, reqHash string, respJSON []byte, ttl time.Duration) {
	env, err := json.Marshal(cachedResponse{RequestHash: reqHash, Response: respJSON})
	if err != nil {
		return
	}
	if err := cache.Set(ctx, key, env, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency response")
	}
}
