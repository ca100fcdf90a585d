// Package handler exposes the pricing widget over HTTP. Every browser session
// gets its own selection controller, looked up by cookie.
package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
	"github.com/xenking/promo-pricing/internal/domain/selection"
	"github.com/xenking/promo-pricing/internal/domain/session"
	"github.com/xenking/promo-pricing/pkg/httpmiddleware"
)

// DefaultCookieName names the session cookie.
const DefaultCookieName = "promo_session"

// Config holds non-dependency settings of the Handler.
type Config struct {
	CookieName   string
	CookieSecure bool
	// SessionTTL bounds both the cookie and the persisted discount.
	SessionTTL time.Duration
	// IdleTimeout evicts controllers of sessions that stopped polling. Their
	// discount stays persisted and is restored on the next request.
	IdleTimeout time.Duration
	// SweepInterval is how often idle controllers are evicted.
	SweepInterval time.Duration
	// CodeRateLimit limits code submissions per session.
	CodeRateLimit httpmiddleware.RateLimitConfig
	Selection     selection.Config
}

func (c *Config) setDefaults() {
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = session.MaxAge
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.CodeRateLimit.Max <= 0 {
		c.CodeRateLimit.Max = 10
	}
	if c.CodeRateLimit.Window <= 0 {
		c.CodeRateLimit.Window = time.Minute
	}
	if c.Selection.Messages.Applied == "" {
		c.Selection.Messages = selection.MessagesFor("")
	}
	if c.Selection.Now == nil {
		c.Selection.Now = time.Now
	}
}

type visitor struct {
	ctrl     *selection.Controller
	feed     *selection.Feed
	started  sync.Once
	lastSeen time.Time
}

// Handler serves the /api routes.
type Handler struct {
	catalog *catalog.Catalog
	codes   *promo.Registry
	backend session.Backend
	cfg     Config
	lg      *zap.Logger
	limiter *httpmiddleware.Limiter
	metrics *metrics
	now     func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

// New builds a Handler. Controllers persist discounts through backend.
func New(
	cfg Config,
	cat *catalog.Catalog,
	codes *promo.Registry,
	backend session.Backend,
	lg *zap.Logger,
	mp metric.MeterProvider,
) (*Handler, error) {
	cfg.setDefaults()
	h := &Handler{
		catalog:  cat,
		codes:    codes,
		backend:  backend,
		cfg:      cfg,
		lg:       lg,
		now:      cfg.Selection.Now,
		visitors: make(map[string]*visitor),
	}
	h.cfg.CodeRateLimit.Key = h.rateKey
	h.limiter = httpmiddleware.NewLimiter(h.cfg.CodeRateLimit)

	m, err := newMetrics(mp, h.Len)
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}
	h.metrics = m
	return h, nil
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/packages", h.listPackages)
	r.Post("/session", h.openSession)
	r.Get("/state", h.getState)
	r.Put("/package", h.selectPackage)
	r.With(h.limiter.Middleware()).Post("/code", h.submitCode)
	r.Delete("/discount", h.clearDiscount)
	r.Get("/contact", h.contact)
	r.Get("/contact/{package}", h.contactPackage)
}

// Run evicts idle controllers and rate limiter keys until ctx is done.
func (h *Handler) Run(ctx context.Context) error {
	go func() { _ = h.limiter.Run(ctx) }()

	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := h.sweep(); n > 0 {
				h.lg.Debug("Evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of live controllers.
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.visitors)
}

func (h *Handler) sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-h.cfg.IdleTimeout)
	var n int
	for id, v := range h.visitors {
		if v.lastSeen.Before(cutoff) && !v.ctrl.Pending() {
			delete(h.visitors, id)
			n++
		}
	}
	return n
}

func (h *Handler) newVisitor(id string) *visitor {
	lg := h.lg.With(zap.String("session", id))
	store := session.NewStore(h.backend, id, h.cfg.SessionTTL, lg)
	feed := selection.NewFeed(h.cfg.Selection.Now)
	return &visitor{
		ctrl:     selection.New(h.catalog, h.codes, store, feed, lg, h.cfg.Selection),
		feed:     feed,
		lastSeen: h.now(),
	}
}

// visitor returns the controller of the request's session, issuing a cookie
// for new sessions. A fresh controller restores the persisted discount. With
// reload set the existing controller is replaced, as on a page load.
func (h *Handler) visitor(w http.ResponseWriter, r *http.Request, reload bool) *visitor {
	id, ok := h.sessionID(r)
	if !ok {
		id = uuid.NewString()
		h.setCookie(w, id)
	}

	h.mu.Lock()
	v, found := h.visitors[id]
	var replaced *visitor
	if found && !reload {
		v.lastSeen = h.now()
	} else {
		if found {
			replaced = v
		}
		v = h.newVisitor(id)
		h.visitors[id] = v
	}
	h.mu.Unlock()

	// A reload drops the old page, including a code it was still resolving.
	if replaced != nil {
		replaced.ctrl.Close()
	}

	// Concurrent first requests wait for the same restore, which must not
	// depend on the first client staying connected.
	v.started.Do(func() {
		ctx := context.WithoutCancel(r.Context())
		if v.ctrl.Start(ctx) {
			h.metrics.restores.Add(ctx, 1)
		}
	})
	return v
}

func (h *Handler) sessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(h.cfg.CookieName)
	if err != nil || uuid.Validate(c.Value) != nil {
		return "", false
	}
	return c.Value, true
}

func (h *Handler) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// rateKey limits by session, falling back to the client address for
// requests without a session.
func (h *Handler) rateKey(r *http.Request) string {
	if id, ok := h.sessionID(r); ok {
		return id
	}
	return httpmiddleware.ClientIP(r)
}
