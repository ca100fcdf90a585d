// Package redis implements the session backend on Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/promo-pricing/internal/domain/session"
)

const sessionKeyPrefix = "promo:session:"

var _ session.Backend = (*SessionBackend)(nil)

// SessionBackend stores each session's value under its own key with a TTL.
type SessionBackend struct {
	client redis.UniversalClient
}

// NewSessionBackend returns a SessionBackend using client.
func NewSessionBackend(client redis.UniversalClient) *SessionBackend {
	return &SessionBackend{client: client}
}

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id + ":discount"
}

// Get returns the stored value or session.ErrNoEntry.
func (b *SessionBackend) Get(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := b.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrNoEntry
		}
		return nil, errors.Wrapf(err, "get session %s", sessionID)
	}
	return data, nil
}

// Set stores value with ttl. A non-positive ttl keeps the key until deleted.
func (b *SessionBackend) Set(ctx context.Context, sessionID string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := b.client.Set(ctx, sessionKey(sessionID), value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "set session %s", sessionID)
	}
	return nil
}

// Delete removes the stored value.
func (b *SessionBackend) Delete(ctx context.Context, sessionID string) error {
	if err := b.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return errors.Wrapf(err, "delete session %s", sessionID)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (b *SessionBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
