// Package store provides the optional redis-backed replay guard for the
// webhook. The platform may redeliver a message; a (timestamp, nonce)
// pair that was already processed is dropped.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers recently seen envelope nonces. A nil guard
// disables the check.
type ReplayGuard struct {
	client *redis.Client
}

// NewReplayGuard connects to redis and verifies the connection.
func NewReplayGuard(ctx context.Context, redisURL string) (*ReplayGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &ReplayGuard{client: client}, nil
}

// Close closes the redis connection.
func (g *ReplayGuard) Close() error {
	if g == nil {
		return nil
	}
	return g.client.Close()
}

// Ping checks the redis connection.
func (g *ReplayGuard) Ping(ctx context.Context) error {
	if g == nil {
		return nil
	}
	return g.client.Ping(ctx).Err()
}

// Seen reports whether this (timestamp, nonce) pair was already marked.
func (g *ReplayGuard) Seen(ctx context.Context, timestamp, nonce string) bool {
	if g == nil {
		return false
	}
	n, err := g.client.Exists(ctx, replayKey(timestamp, nonce)).Result()
	return err == nil && n > 0
}

// Mark records a processed (timestamp, nonce) pair for ttl.
func (g *ReplayGuard) Mark(ctx context.Context, timestamp, nonce string, ttl time.Duration) {
	if g == nil {
		return
	}
	g.client.Set(ctx, replayKey(timestamp, nonce), "1", ttl)
}

func replayKey(timestamp, nonce string) string {
	return fmt.Sprintf("replay:%s:%s", timestamp, nonce)
}
