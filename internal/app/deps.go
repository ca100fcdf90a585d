package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
	"github.com/xenking/promo-pricing/internal/domain/session"
	"github.com/xenking/promo-pricing/internal/storage/memory"
	"github.com/xenking/promo-pricing/internal/storage/postgres"
	"github.com/xenking/promo-pricing/internal/storage/redis"
	"github.com/xenking/promo-pricing/pkg/health"
)

// deps are the storage-backed dependencies of the handler.
type deps struct {
	catalog  *catalog.Catalog
	codes    *promo.Registry
	sessions session.Backend
	// sweep, when set, runs until ctx is done to expire in-memory sessions.
	sweep func(ctx context.Context) error

	pool  *pgxpool.Pool
	redis *goredis.Client
}

func openDeps(ctx context.Context, lg *zap.Logger, cfg *Config, hc *health.Health) (_ *deps, rerr error) {
	d := &deps{}
	defer func() {
		if rerr != nil {
			d.Close()
		}
	}()

	if err := d.openPricing(ctx, lg, cfg, hc); err != nil {
		return nil, err
	}
	if err := d.openSessions(ctx, lg, cfg, hc); err != nil {
		return nil, err
	}
	return d, nil
}

// openPricing loads the package table and code registry from PostgreSQL, or
// uses the built-in tables when no database is configured.
func (d *deps) openPricing(ctx context.Context, lg *zap.Logger, cfg *Config, hc *health.Health) error {
	if cfg.DatabaseURL == "" {
		lg.Info("No database configured, using built-in packages and codes")
		d.catalog = catalog.Default()
		d.codes = promo.DefaultRegistry()
		return nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	d.pool = pool
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	hc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))

	d.catalog, err = catalog.Load(ctx, postgres.NewPackageRepository(pool))
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	d.codes, err = promo.LoadRegistry(ctx, postgres.NewCodeRepository(pool))
	if err != nil {
		return errors.Wrap(err, "load codes")
	}
	lg.Info("Loaded pricing tables",
		zap.Int("packages", len(d.catalog.List())),
		zap.Int("codes", len(d.codes.All())),
	)
	return nil
}

func (d *deps) openSessions(ctx context.Context, lg *zap.Logger, cfg *Config, hc *health.Health) error {
	switch cfg.Session.Backend {
	case BackendRedis:
		client, err := redis.NewClient(ctx, cfg.Session.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		d.redis = client
		backend := redis.NewSessionBackend(client)
		hc.Add(health.Readiness, "redis", 2*time.Second, health.PingCheck(backend))
		d.sessions = backend
	default:
		backend := memory.NewSessionBackend()
		d.sessions = backend
		d.sweep = func(ctx context.Context) error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if n := backend.Sweep(); n > 0 {
						lg.Debug("Swept expired sessions", zap.Int("count", n))
					}
				}
			}
		}
	}
	return nil
}

// Close releases connections. It is safe to call on partially opened deps.
func (d *deps) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}
