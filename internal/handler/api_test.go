package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
	"github.com/xenking/promo-pricing/internal/domain/selection"
	"github.com/xenking/promo-pricing/internal/domain/session"
	"github.com/xenking/promo-pricing/internal/storage/memory"
)

var inRamadan = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T, cfg Config) (*Handler, *httptest.Server) {
	t.Helper()
	return newTestHandlerWith(t, cfg, memory.NewSessionBackend())
}

func newTestHandlerWith(t *testing.T, cfg Config, backend session.Backend) (*Handler, *httptest.Server) {
	t.Helper()

	if cfg.Selection.Now == nil {
		cfg.Selection.Now = func() time.Time { return inRamadan }
	}
	h, err := New(cfg, catalog.Default(), promo.DefaultRegistry(), backend, zap.NewNop(), noop.NewMeterProvider())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api", h.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv
}

type testClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testClient{t: t, base: srv.URL, http: &http.Client{Jar: jar}}
}

func (c *testClient) do(method, path, body string) (int, []byte) {
	c.t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, data
}

func (c *testClient) state(method, path, body string) stateView {
	c.t.Helper()
	code, data := c.do(method, path, body)
	require.Equal(c.t, http.StatusOK, code, string(data))

	var v stateView
	require.NoError(c.t, json.Unmarshal(data, &v))
	return v
}

func (c *testClient) cookie() *http.Cookie {
	c.t.Helper()
	req := httptest.NewRequest(http.MethodGet, c.base, nil)
	cookies := c.http.Jar.Cookies(req.URL)
	require.Len(c.t, cookies, 1)
	return cookies[0]
}

func lastText(t *testing.T, v stateView) string {
	t.Helper()
	require.NotEmpty(t, v.Notifications)
	return v.Notifications[len(v.Notifications)-1].Text
}

func TestAPI_ListPackages(t *testing.T) {
	_, srv := newTestHandler(t, Config{})
	c := newClient(t, srv)

	code, data := c.do(http.MethodGet, "/api/packages", "")
	require.Equal(t, http.StatusOK, code)

	var pkgs []packageView
	require.NoError(t, json.Unmarshal(data, &pkgs))
	assert.Equal(t, []packageView{
		{ID: catalog.Standard, Name: "الباقة الأساسية", Price: 599, Codes: []string{"RAMADAN2026", "STANDARD35"}},
		{ID: catalog.Pro, Name: "باقة PRO", Price: 749, Default: true, Codes: []string{"RAMADAN2026", "PRO30"}},
		{ID: catalog.VIP, Name: "الباقة المميزة VIP", Price: 899, Codes: []string{"RAMADAN2026", "VIP25"}},
	}, pkgs)
}

func TestAPI_SessionFlow(t *testing.T) {
	_, srv := newTestHandler(t, Config{})
	c := newClient(t, srv)

	v := c.state(http.MethodPost, "/api/session", "")
	assert.Equal(t, catalog.Pro, v.Package.ID)
	assert.Nil(t, v.Discount)
	assert.True(t, v.SubmitEnabled)
	assert.Len(t, v.Codes, 4)
	require.Len(t, v.Banner, 1)
	assert.Equal(t, "RAMADAN2026", v.Banner[0].Code)
	assert.Empty(t, v.Notifications)

	cookie := c.cookie()
	assert.Equal(t, DefaultCookieName, cookie.Name)

	v = c.state(http.MethodPost, "/api/code", `{"code":" pro30 "}`)
	require.NotNil(t, v.Discount)
	assert.Equal(t, "PRO30", v.Discount.Code)
	assert.Equal(t, int64(225), v.Discount.Amount)
	assert.Equal(t, int64(524), v.Discount.FinalPrice)
	assert.Equal(t, int64(749), v.Discount.OriginalPrice)
	assert.Equal(t, "تم تطبيق الكود! خصم 30%", lastText(t, v))

	code, data := c.do(http.MethodGet, "/api/contact", "")
	require.Equal(t, http.StatusOK, code)
	var contact contactView
	require.NoError(t, json.Unmarshal(data, &contact))
	assert.True(t, strings.HasPrefix(contact.URL, "https://wa.me/201093191277?text="), contact.URL)
	assert.Contains(t, contact.URL, "PRO30")

	// A page reload restores the persisted discount.
	v = c.state(http.MethodPost, "/api/session", "")
	require.NotNil(t, v.Discount)
	assert.Equal(t, int64(524), v.Discount.FinalPrice)
	assert.Equal(t, "الكود PRO30 مطبق بالفعل", lastText(t, v))
	assert.Equal(t, cookie.Value, c.cookie().Value)

	v = c.state(http.MethodPut, "/api/package", `{"package":"VIP"}`)
	assert.Equal(t, catalog.VIP, v.Package.ID)
	assert.Nil(t, v.Discount)

	v = c.state(http.MethodPost, "/api/code", `{"code":"vip25"}`)
	require.NotNil(t, v.Discount)
	assert.Equal(t, int64(674), v.Discount.FinalPrice)

	v = c.state(http.MethodDelete, "/api/discount", "")
	assert.Nil(t, v.Discount)
	assert.Equal(t, catalog.VIP, v.Package.ID)
}

func TestAPI_CodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		kind    string
		message string
	}{
		{name: "unknown", body: `{"code":"FOO"}`, status: http.StatusUnprocessableEntity, kind: "unknown_code", message: "كود الخصم غير صحيح"},
		{name: "other package", body: `{"code":"VIP25"}`, status: http.StatusUnprocessableEntity, kind: "inapplicable_code", message: "هذا الكود غير صالح لهذه الباقة"},
		{name: "empty", body: `{"code":"   "}`, status: http.StatusUnprocessableEntity, kind: "empty_code", message: "يرجى إدخال كود الخصم"},
		{name: "malformed body", body: `{"code":`, status: http.StatusBadRequest, kind: "bad_request", message: "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newTestHandler(t, Config{})
			c := newClient(t, srv)
			c.state(http.MethodPost, "/api/session", "")

			code, data := c.do(http.MethodPost, "/api/code", tt.body)
			assert.Equal(t, tt.status, code)
			var e errorView
			require.NoError(t, json.Unmarshal(data, &e))
			assert.Equal(t, tt.kind, e.Error)
			assert.Equal(t, tt.message, e.Message)

			v := c.state(http.MethodGet, "/api/state", "")
			assert.Nil(t, v.Discount)
			assert.Equal(t, int64(749), v.Package.Price)
			assert.True(t, v.SubmitEnabled)
		})
	}
}

func TestAPI_UnknownPackage(t *testing.T) {
	_, srv := newTestHandler(t, Config{})
	c := newClient(t, srv)
	c.state(http.MethodPost, "/api/session", "")

	code, data := c.do(http.MethodPut, "/api/package", `{"package":"gold"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, string(data), "unknown_package")

	code, _ = c.do(http.MethodGet, "/api/contact/gold", "")
	assert.Equal(t, http.StatusNotFound, code)

	v := c.state(http.MethodGet, "/api/state", "")
	assert.Equal(t, catalog.Pro, v.Package.ID)
}

func TestAPI_ContactPackage(t *testing.T) {
	_, srv := newTestHandler(t, Config{})
	c := newClient(t, srv)
	c.state(http.MethodPut, "/api/package", `{"package":"vip"}`)
	c.state(http.MethodPost, "/api/code", `{"code":"VIP25"}`)

	link := func(pkg string) string {
		code, data := c.do(http.MethodGet, "/api/contact/"+pkg, "")
		require.Equal(t, http.StatusOK, code)
		var v contactView
		require.NoError(t, json.Unmarshal(data, &v))
		return v.URL
	}
	assert.Contains(t, link("vip"), "VIP25")
	assert.NotContains(t, link("standard"), "VIP25")
}

func TestAPI_PendingSubmission(t *testing.T) {
	_, srv := newTestHandler(t, Config{
		Selection: selection.Config{SubmitDelay: 300 * time.Millisecond},
	})
	c := newClient(t, srv)
	c.state(http.MethodPost, "/api/session", "")

	var (
		wg    sync.WaitGroup
		first int
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = c.do(http.MethodPost, "/api/code", `{"code":"PRO30"}`)
	}()

	require.Eventually(t, func() bool {
		return !c.state(http.MethodGet, "/api/state", "").SubmitEnabled
	}, 5*time.Second, 10*time.Millisecond)

	code, data := c.do(http.MethodPost, "/api/code", `{"code":"PRO30"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(data), "submission_pending")

	wg.Wait()
	assert.Equal(t, http.StatusOK, first)
	v := c.state(http.MethodGet, "/api/state", "")
	assert.True(t, v.SubmitEnabled)
	require.NotNil(t, v.Discount)
}

func TestAPI_ReloadCancelsPendingSubmission(t *testing.T) {
	_, srv := newTestHandler(t, Config{
		Selection: selection.Config{SubmitDelay: 300 * time.Millisecond},
	})
	c := newClient(t, srv)
	c.state(http.MethodPost, "/api/session", "")

	var (
		wg    sync.WaitGroup
		first int
		body  []byte
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, body = c.do(http.MethodPost, "/api/code", `{"code":"PRO30"}`)
	}()

	require.Eventually(t, func() bool {
		return !c.state(http.MethodGet, "/api/state", "").SubmitEnabled
	}, 5*time.Second, 10*time.Millisecond)

	v := c.state(http.MethodPost, "/api/session", "")
	assert.Nil(t, v.Discount)
	assert.True(t, v.SubmitEnabled)

	wg.Wait()
	assert.Equal(t, http.StatusConflict, first)
	assert.Contains(t, string(body), "submission_cancelled")

	// Wait out the old delay: the dropped code must not surface later.
	time.Sleep(400 * time.Millisecond)
	v = c.state(http.MethodGet, "/api/state", "")
	assert.Nil(t, v.Discount)
	assert.True(t, v.SubmitEnabled)
	v = c.state(http.MethodPost, "/api/session", "")
	assert.Nil(t, v.Discount)
}

// cancelAwareBackend fails reads under a done context, as a network store would.
type cancelAwareBackend struct {
	session.Backend
}

func (b cancelAwareBackend) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.Backend.Get(ctx, id)
}

func TestHandler_RestoreOutlivesRequest(t *testing.T) {
	h, srv := newTestHandlerWith(t, Config{}, cancelAwareBackend{memory.NewSessionBackend()})
	c := newClient(t, srv)
	c.state(http.MethodPost, "/api/session", "")
	v := c.state(http.MethodPost, "/api/code", `{"code":"PRO30"}`)
	require.NotNil(t, v.Discount)

	// A reload whose client is already gone still restores the discount.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodPost, "/api/session", nil).WithContext(ctx)
	r.AddCookie(c.cookie())
	vis := h.visitor(httptest.NewRecorder(), r, true)

	a, ok := vis.ctrl.CurrentDiscount()
	require.True(t, ok)
	assert.Equal(t, "PRO30", a.Code)

	v = c.state(http.MethodGet, "/api/state", "")
	require.NotNil(t, v.Discount)
	assert.Equal(t, int64(524), v.Discount.FinalPrice)
}

func TestAPI_CodeRateLimit(t *testing.T) {
	_, srv := newTestHandler(t, Config{})
	c := newClient(t, srv)
	c.state(http.MethodPost, "/api/session", "")

	for range 10 {
		code, _ := c.do(http.MethodPost, "/api/code", `{"code":"FOO"}`)
		require.Equal(t, http.StatusUnprocessableEntity, code)
	}
	code, _ := c.do(http.MethodPost, "/api/code", `{"code":"PRO30"}`)
	assert.Equal(t, http.StatusTooManyRequests, code)

	// Another session has its own budget.
	other := newClient(t, srv)
	code, _ = other.do(http.MethodPost, "/api/code", `{"code":"PRO30"}`)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPI_InvalidCookieGetsNewSession(t *testing.T) {
	_, srv := newTestHandler(t, Config{})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/state", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "not-a-uuid"})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.NotEqual(t, "not-a-uuid", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
}

func TestHandler_SweepRestoresLazily(t *testing.T) {
	h, srv := newTestHandler(t, Config{IdleTimeout: time.Minute})
	now := inRamadan
	h.now = func() time.Time { return now }

	c := newClient(t, srv)
	c.state(http.MethodPost, "/api/code", `{"code":"PRO30"}`)
	require.Equal(t, 1, h.Len())

	now = now.Add(30 * time.Second)
	assert.Zero(t, h.sweep())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, h.sweep())
	assert.Zero(t, h.Len())

	v := c.state(http.MethodGet, "/api/state", "")
	require.NotNil(t, v.Discount)
	assert.Equal(t, int64(524), v.Discount.FinalPrice)
	assert.Equal(t, "الكود PRO30 مطبق بالفعل", lastText(t, v))
	assert.Equal(t, 1, h.Len())
}

func TestAPI_EnglishErrors(t *testing.T) {
	_, srv := newTestHandler(t, Config{
		Selection: selection.Config{Messages: selection.MessagesFor("en")},
	})
	c := newClient(t, srv)

	code, data := c.do(http.MethodPost, "/api/code", `{"code":"nope"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.True(t, bytes.Contains(data, []byte("Invalid promo code")), string(data))
}
