// Package app wires the promo pricing server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/promo-pricing/internal/domain/selection"
	"github.com/xenking/promo-pricing/internal/handler"
	"github.com/xenking/promo-pricing/pkg/health"
	"github.com/xenking/promo-pricing/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("session_backend", cfg.Session.Backend),
		zap.Bool("database", cfg.DatabaseURL != ""),
	)

	hc := health.New()
	hc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	d, err := openDeps(ctx, lg, cfg, hc)
	if err != nil {
		return err
	}
	defer d.Close()

	h, err := handler.New(handler.Config{
		CookieName:   cfg.Session.CookieName,
		CookieSecure: cfg.Session.Secure,
		SessionTTL:   cfg.Session.TTL,
		IdleTimeout:  cfg.Session.IdleTimeout,
		CodeRateLimit: httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		},
		Selection: selection.Config{
			SubmitDelay: cfg.SubmitDelay,
			Messages:    selection.MessagesFor(cfg.Locale),
			Phone:       cfg.Phone,
		},
	}, d.catalog, d.codes, d.sessions, lg.Named("handler"), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Instrument("promo-api", m),
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", hc.Livez)
	r.Get("/readyz", hc.Readyz)
	r.Route("/api", h.Routes)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			cors.Handler(cors.Options{
				AllowedOrigins:   cfg.CORS.Origins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowedHeaders:   []string{"Content-Type", httpmiddleware.RequestIDHeader},
				ExposedHeaders:   []string{httpmiddleware.RequestIDHeader, "Retry-After", "X-RateLimit-Remaining"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hc.Run(gctx, 10*time.Second)
	})
	g.Go(func() error {
		return h.Run(gctx)
	})
	if d.sweep != nil {
		g.Go(func() error {
			return d.sweep(gctx)
		})
	}
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hc.SetReady(false)
		if ctx.Err() != nil {
			// Regular shutdown: let load balancers notice before draining.
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	hc.SetReady(true)
	return g.Wait()
}
