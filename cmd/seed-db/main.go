package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
	"github.com/xenking/promo-pricing/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		deactivate  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&deactivate, "deactivate", "", "comma-separated codes to hide after seeding")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, splitCodes(deactivate)); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, deactivate []string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedPackages(ctx, postgres.NewPackageRepository(pool)); err != nil {
		return errors.Wrap(err, "seed packages")
	}

	codes := postgres.NewCodeRepository(pool)
	if err := seedCodes(ctx, codes); err != nil {
		return errors.Wrap(err, "seed codes")
	}

	for _, code := range deactivate {
		if err := codes.Deactivate(ctx, code); err != nil {
			return err
		}
		slog.Info("deactivated code", slog.String("code", code))
	}

	return nil
}

func seedPackages(ctx context.Context, repo *postgres.PackageRepository) error {
	cat := catalog.Default()
	pkgs := cat.List()

	slog.Info("upserting packages", slog.Int("count", len(pkgs)))

	if err := repo.UpsertPackages(ctx, cat.Default().ID, pkgs...); err != nil {
		return err
	}
	for _, p := range pkgs {
		slog.Info("upserted package", slog.String("id", string(p.ID)), slog.Int64("price", p.Price))
	}

	return nil
}

func seedCodes(ctx context.Context, repo *postgres.CodeRepository) error {
	codes := promo.DefaultCodes()

	slog.Info("upserting promo codes", slog.Int("count", len(codes)))

	if err := repo.UpsertCodes(ctx, codes...); err != nil {
		return err
	}
	for _, c := range codes {
		slog.Info("upserted code", slog.String("code", c.Code), slog.Int("percent", c.Percent))
	}

	return nil
}

func splitCodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if code := promo.Normalize(part); code != "" {
			out = append(out, code)
		}
	}
	return out
}
