package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/promo-pricing/internal/domain/promo"
	"github.com/xenking/promo-pricing/internal/storage/postgres"
)

const (
	bloomFPR  = 0.001
	batchSize = 1000
)

// codeStore is the part of the code repository the import needs.
type codeStore interface {
	ListCodeKeys(ctx context.Context) ([]string, error)
	ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error)
	InsertCodes(ctx context.Context, base int, codes ...promo.Code) (int64, error)
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: promo-import [flags] FILE...\n\nFiles hold CODE;PERCENT;pkg1,pkg2;description[;from;until] records, optionally gzipped.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args()); err != nil {
		slog.Error("promo import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	slog.Info("parsing files", slog.Int("files", len(files)))

	codes, err := parseAll(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse")
	}

	codes, dups := dedupe(codes)
	for _, code := range dups {
		slog.Warn("duplicate code in input, keeping the first", slog.String("code", code))
	}
	slog.Info("parsed codes", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("no codes to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	inserted, skipped, err := importCodes(ctx, postgres.NewCodeRepository(pool), codes)
	if err != nil {
		return err
	}

	slog.Info("import summary", slog.Int64("inserted", inserted), slog.Int("skipped", skipped))
	return nil
}

// parseAll parses every file concurrently and concatenates the results in
// argument order.
func parseAll(ctx context.Context, files []string) ([]promo.Code, error) {
	results := make([][]promo.Code, len(files))

	var mu sync.Mutex
	bad := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		slog.Warn("skipping malformed record", slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			codes, err := parseFile(ctx, path, bad)
			if err != nil {
				return err
			}
			slog.Info("parsed file", slog.String("path", path), slog.Int("codes", len(codes)))
			results[i] = codes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []promo.Code
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// importCodes inserts codes that are not stored yet. Stored codes are never
// overwritten. A bloom filter over the stored keys avoids querying codes that
// are certainly new; its positives are confirmed against the database.
func importCodes(ctx context.Context, store codeStore, codes []promo.Code) (inserted int64, skipped int, _ error) {
	keys, err := store.ListCodeKeys(ctx)
	if err != nil {
		return 0, 0, errors.Wrap(err, "list stored codes")
	}

	filter := bloom.NewWithEstimates(uint(max(len(keys), batchSize)), bloomFPR)
	for _, k := range keys {
		filter.AddString(k)
	}

	var maybe []string
	for _, c := range codes {
		if filter.TestString(c.Code) {
			maybe = append(maybe, c.Code)
		}
	}
	exists := map[string]bool{}
	if len(maybe) > 0 {
		exists, err = store.ExistingCodes(ctx, maybe)
		if err != nil {
			return 0, 0, errors.Wrap(err, "check stored codes")
		}
	}
	slog.Info("checked stored codes",
		slog.Int("stored", len(keys)),
		slog.Int("filter_hits", len(maybe)),
		slog.Int("existing", len(exists)),
	)

	fresh := make([]promo.Code, 0, len(codes))
	for _, c := range codes {
		if exists[c.Code] {
			skipped++
			continue
		}
		fresh = append(fresh, c)
	}

	base := len(keys)
	for start := 0; start < len(fresh); start += batchSize {
		end := min(start+batchSize, len(fresh))
		n, err := store.InsertCodes(ctx, base+start, fresh[start:end]...)
		inserted += n
		if err != nil {
			return inserted, skipped, errors.Wrap(err, "insert codes")
		}
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(fresh)))
	}
	// Rows lost to a concurrent writer count as skipped.
	skipped += len(fresh) - int(inserted)
	return inserted, skipped, nil
}
