// Package session persists the applied discount of one browsing session.
//
// The persisted copy is authoritative for restoring state after a reload and
// is valid for MaxAge after it was applied. Stale or unreadable entries are
// removed on read; there is no background sweep.
package session

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/promo"
)

// MaxAge is how long a persisted discount stays valid.
const MaxAge = 24 * time.Hour

var (
	// ErrNoEntry is returned by a Backend when the session has nothing stored.
	ErrNoEntry = errors.New("no persisted discount")
	// ErrExpiredState marks a persisted discount older than MaxAge.
	ErrExpiredState = errors.New("persisted discount expired")
)

// Backend stores one opaque value per session. Values written with a ttl
// disappear when it elapses, which ends the session's persistence.
type Backend interface {
	Get(ctx context.Context, sessionID string) ([]byte, error)
	Set(ctx context.Context, sessionID string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// Store is the applied-discount slot of a single session.
type Store struct {
	backend   Backend
	sessionID string
	lifetime  time.Duration
	lg        *zap.Logger
	now       func() time.Time
}

// NewStore binds a Store to sessionID. lifetime is the session's remaining
// lifetime and is passed to the backend as the value ttl.
func NewStore(backend Backend, sessionID string, lifetime time.Duration, lg *zap.Logger) *Store {
	return &Store{
		backend:   backend,
		sessionID: sessionID,
		lifetime:  lifetime,
		lg:        lg,
		now:       time.Now,
	}
}

// Save overwrites the persisted discount with d stamped at the current time
// and returns the stamped value. The stamp has millisecond precision so the
// returned value equals what Load reads back.
func (s *Store) Save(ctx context.Context, d promo.Draft) (promo.Applied, error) {
	a := promo.Applied{
		Draft:     d,
		AppliedAt: time.UnixMilli(s.now().UnixMilli()),
	}
	if err := s.backend.Set(ctx, s.sessionID, Encode(a), s.lifetime); err != nil {
		return a, errors.Wrap(err, "save discount")
	}
	return a, nil
}

// Load returns the persisted discount if it is younger than MaxAge. Expired
// and malformed entries are deleted and reported as absent.
func (s *Store) Load(ctx context.Context) (promo.Applied, bool, error) {
	a, err := s.read(ctx)
	if err == nil {
		return a, true, nil
	}
	if errors.Is(err, ErrNoEntry) {
		return promo.Applied{}, false, nil
	}
	if !isStale(err) {
		return promo.Applied{}, false, err
	}

	s.lg.Debug("Discarding persisted discount", zap.String("session", s.sessionID), zap.Error(err))
	if err := s.backend.Delete(ctx, s.sessionID); err != nil {
		return promo.Applied{}, false, errors.Wrap(err, "delete stale discount")
	}
	return promo.Applied{}, false, nil
}

// Peek is Load without the cleanup side effect.
func (s *Store) Peek(ctx context.Context) (promo.Applied, bool, error) {
	a, err := s.read(ctx)
	switch {
	case err == nil:
		return a, true, nil
	case errors.Is(err, ErrNoEntry), isStale(err):
		return promo.Applied{}, false, nil
	default:
		return promo.Applied{}, false, err
	}
}

// Clear removes the persisted discount.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.sessionID); err != nil {
		return errors.Wrap(err, "clear discount")
	}
	return nil
}

func (s *Store) read(ctx context.Context) (promo.Applied, error) {
	data, err := s.backend.Get(ctx, s.sessionID)
	if err != nil {
		if errors.Is(err, ErrNoEntry) {
			return promo.Applied{}, ErrNoEntry
		}
		return promo.Applied{}, errors.Wrap(err, "read discount")
	}

	a, err := Decode(data)
	if err != nil {
		return promo.Applied{}, err
	}
	if s.now().Sub(a.AppliedAt) >= MaxAge {
		return promo.Applied{}, ErrExpiredState
	}
	return a, nil
}

func isStale(err error) bool {
	var malformed *MalformedStateError
	return errors.Is(err, ErrExpiredState) || errors.As(err, &malformed)
}
