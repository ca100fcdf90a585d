package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func passing(context.Context) error { return nil }

func get(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func runN(h *Health, n int) {
	for _, c := range h.checks {
		for range n {
			c.run(context.Background())
		}
	}
}

func TestLivez(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		runs   int
		code   int
		body   string
	}{
		{
			name: "no checks",
			code: http.StatusOK,
			body: `{"status":"ok"}`,
		},
		{
			name:   "all passing",
			checks: map[string]CheckFunc{"a": passing, "b": passing},
			runs:   1,
			code:   http.StatusOK,
			body:   `{"status":"ok"}`,
		},
		{
			name:   "failure below threshold",
			checks: map[string]CheckFunc{"a": failing("flaky")},
			runs:   FailureThreshold - 1,
			code:   http.StatusOK,
			body:   `{"status":"ok"}`,
		},
		{
			name:   "failure at threshold",
			checks: map[string]CheckFunc{"db": failing("connection refused"), "a": passing},
			runs:   FailureThreshold,
			code:   http.StatusServiceUnavailable,
			body:   `{"status":"unhealthy","checks":{"db":"connection refused"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			for name, fn := range tt.checks {
				h.Add(Liveness, name, time.Second, fn)
			}
			runN(h, tt.runs)

			w := get(h.Livez)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestReadyz(t *testing.T) {
	h := New()
	h.Add(Readiness, "redis", time.Second, failing("refused"))
	h.Add(Liveness, "goroutines", time.Second, failing("too many"))

	w := get(h.Readyz)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"service":"not ready"}}`, w.Body.String())

	h.SetReady(true)
	assert.True(t, h.Ready())
	assert.Equal(t, http.StatusOK, get(h.Readyz).Code)

	runN(h, FailureThreshold)
	assert.False(t, h.Ready())
	w = get(h.Readyz)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"redis":"refused"}}`, w.Body.String())

	h.SetReady(false)
	assert.False(t, h.Ready())
}

func TestCheck_Recovers(t *testing.T) {
	var fail bool
	h := New()
	h.Add(Readiness, "db", time.Second, func(context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	})
	h.SetReady(true)

	fail = true
	runN(h, FailureThreshold)
	require.False(t, h.Ready())

	fail = false
	runN(h, 1)
	assert.True(t, h.Ready())
}

func TestCheck_Timeout(t *testing.T) {
	h := New()
	h.Add(Liveness, "slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	runN(h, FailureThreshold)

	w := get(h.Livez)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "deadline exceeded")
}

func TestRun(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	h := New()
	h.Add(Liveness, "count", time.Second, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, time.Millisecond) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestConcurrentProbes(t *testing.T) {
	h := New()
	h.Add(Readiness, "a", time.Second, passing)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx, time.Millisecond) }()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_ = get(h.Readyz)
				_ = h.Ready()
			}
		}()
	}
	wg.Wait()
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestPingCheck(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	require.NoError(t, PingCheck(ok)(context.Background()))

	down := pingerFunc(func(context.Context) error { return errors.New("refused") })
	err := PingCheck(down)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}
