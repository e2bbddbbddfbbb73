package wecom

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/metrics"
)

// defaultTokenMargin is subtracted from the provider-declared TTL so the
// token is refreshed before it actually expires. 7200s - 200s matches the
// platform's documented lifetime with a safety margin.
const defaultTokenMargin = 200 * time.Second

// TokenSource fetches a fresh access token and its TTL in seconds.
type TokenSource interface {
	GetToken(ctx context.Context) (string, int64, error)
}

// TokenCache caches the shared access token and deduplicates concurrent
// refreshes. It is the only cross-request shared mutable state in the
// bridge.
type TokenCache struct {
	source TokenSource
	margin time.Duration
	logger zerolog.Logger

	sf  singleflight.Group
	now func() time.Time

	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

// NewTokenCache creates an empty cache backed by the given source.
func NewTokenCache(source TokenSource, logger zerolog.Logger) *TokenCache {
	return &TokenCache{
		source: source,
		margin: defaultTokenMargin,
		logger: logger.With().Str("component", "token_cache").Logger(),
		now:    time.Now,
	}
}

// Token returns a valid access token, refreshing it when absent or past
// its safety margin. Concurrent callers during a refresh share a single
// upstream fetch; a failed refresh propagates to every waiter and caches
// nothing.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	if v, ok := tc.cached(); ok {
		return v, nil
	}

	v, err, _ := tc.sf.Do("token", func() (any, error) {
		// A waiter queued behind the winning flight sees the fresh value
		// here instead of triggering a second fetch.
		if v, ok := tc.cached(); ok {
			return v, nil
		}

		value, expiresIn, err := tc.source.GetToken(ctx)
		if err != nil {
			metrics.TokenRefreshFailures.Inc()
			return nil, err
		}
		if value == "" {
			metrics.TokenRefreshFailures.Inc()
			return nil, fmt.Errorf("%w: refresh returned empty token", ErrUpstream)
		}

		ttl := time.Duration(expiresIn)*time.Second - tc.margin
		if ttl <= 0 {
			ttl = time.Duration(expiresIn) * time.Second
		}
		expiresAt := tc.now().Add(ttl)

		tc.mu.Lock()
		tc.value = value
		tc.expiresAt = expiresAt
		tc.mu.Unlock()

		metrics.TokenRefreshes.Inc()
		tc.logger.Debug().Time("expires_at", expiresAt).Msg("access token refreshed")
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token. Used when the platform rejects a
// send with a token-expired errcode despite local expiry bookkeeping.
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	tc.value = ""
	tc.expiresAt = time.Time{}
	tc.mu.Unlock()
}

func (tc *TokenCache) cached() (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.value != "" && tc.now().Before(tc.expiresAt) {
		return tc.value, true
	}
	return "", false
}
