package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-pricing/internal/domain/session"
)

func TestSessionBackend_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	b := NewSessionBackend()

	_, err := b.Get(ctx, "s1")
	require.ErrorIs(t, err, session.ErrNoEntry)

	value := []byte(`{"code":"PRO30"}`)
	require.NoError(t, b.Set(ctx, "s1", value, time.Hour))

	// Stored values are copies.
	value[0] = 'x'
	got, err := b.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, `{"code":"PRO30"}`, string(got))

	_, err = b.Get(ctx, "s2")
	require.ErrorIs(t, err, session.ErrNoEntry)

	require.NoError(t, b.Delete(ctx, "s1"))
	require.NoError(t, b.Delete(ctx, "s1"))
	_, err = b.Get(ctx, "s1")
	require.ErrorIs(t, err, session.ErrNoEntry)
}

func TestSessionBackend_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	b := NewSessionBackend()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, b.Set(ctx, "forever", []byte("b"), 0))

	now = now.Add(59 * time.Second)
	_, err := b.Get(ctx, "short")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = b.Get(ctx, "short")
	require.ErrorIs(t, err, session.ErrNoEntry)

	now = now.Add(1000 * time.Hour)
	_, err = b.Get(ctx, "forever")
	require.NoError(t, err)
}

func TestSessionBackend_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	b := NewSessionBackend()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, b.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, b.Set(ctx, "c", []byte("3"), 0))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, b.Sweep())
	assert.Equal(t, 2, b.Len())
}
