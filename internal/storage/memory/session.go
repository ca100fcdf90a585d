// Package memory implements an in-process session backend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/promo-pricing/internal/domain/session"
)

var _ session.Backend = (*SessionBackend)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// SessionBackend keeps one value per session in a map. Expired values are
// dropped when read or when Sweep runs.
type SessionBackend struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewSessionBackend returns an empty SessionBackend.
func NewSessionBackend() *SessionBackend {
	return &SessionBackend{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the live value for sessionID or session.ErrNoEntry.
func (b *SessionBackend) Get(_ context.Context, sessionID string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[sessionID]
	if !ok {
		return nil, session.ErrNoEntry
	}
	if !e.expiresAt.IsZero() && !b.now().Before(e.expiresAt) {
		delete(b.entries, sessionID)
		return nil, session.ErrNoEntry
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores value for sessionID. A non-positive ttl never expires.
func (b *SessionBackend) Set(_ context.Context, sessionID string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := entry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = b.now().Add(ttl)
	}
	b.entries[sessionID] = e
	return nil
}

// Delete removes the value for sessionID. Deleting a missing value is not an error.
func (b *SessionBackend) Delete(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.entries, sessionID)
	return nil
}

// Sweep drops every expired value and returns how many were removed.
func (b *SessionBackend) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for id, e := range b.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(b.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored values, including expired ones not yet swept.
func (b *SessionBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
