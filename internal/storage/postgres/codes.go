package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
)

const (
	listCodesSQL = `SELECT code, percent, description, packages, valid_from, valid_until
		FROM promo_codes WHERE active ORDER BY position, code`

	listCodeKeysSQL = `SELECT code FROM promo_codes`

	existingCodesSQL = `SELECT code FROM promo_codes WHERE code = ANY($1)`

	upsertCodeSQL = `INSERT INTO promo_codes (code, percent, description, packages, valid_from, valid_until, position, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (code) DO UPDATE
		SET percent = EXCLUDED.percent, description = EXCLUDED.description,
			packages = EXCLUDED.packages, valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until, position = EXCLUDED.position, active = TRUE`

	insertCodeSQL = `INSERT INTO promo_codes (code, percent, description, packages, valid_from, valid_until, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO NOTHING`

	deactivateCodeSQL = `UPDATE promo_codes SET active = FALSE WHERE code = $1`
)

var _ promo.Repository = (*CodeRepository)(nil)

// CodeRepository implements promo.Repository.
type CodeRepository struct {
	pool *pgxpool.Pool
}

// NewCodeRepository returns a CodeRepository using pool.
func NewCodeRepository(pool *pgxpool.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

// ListCodes returns active codes ordered by position.
func (r *CodeRepository) ListCodes(ctx context.Context) ([]promo.Code, error) {
	rows, err := r.pool.Query(ctx, listCodesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "query codes")
	}
	codes, err := pgx.CollectRows(rows, scanCode)
	if err != nil {
		return nil, errors.Wrap(err, "scan codes")
	}
	return codes, nil
}

// ListCodeKeys returns every stored code, active or not.
func (r *CodeRepository) ListCodeKeys(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCodeKeysSQL)
	if err != nil {
		return nil, errors.Wrap(err, "query code keys")
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "scan code keys")
	}
	return keys, nil
}

// ExistingCodes returns the subset of codes already stored.
func (r *CodeRepository) ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, existingCodesSQL, codes)
	if err != nil {
		return nil, errors.Wrap(err, "query existing codes")
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "scan existing codes")
	}
	out := make(map[string]bool, len(found))
	for _, c := range found {
		out[c] = true
	}
	return out, nil
}

// UpsertCodes writes codes in one batch, overwriting existing rows and
// reactivating them. Positions follow the slice order.
func (r *CodeRepository) UpsertCodes(ctx context.Context, codes ...promo.Code) error {
	batch := &pgx.Batch{}
	for i, c := range codes {
		batch.Queue(upsertCodeSQL, codeArgs(c, i)...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert codes")
	}
	return nil
}

// InsertCodes adds codes that are not stored yet and reports how many were
// inserted. Rows are positioned from base on.
func (r *CodeRepository) InsertCodes(ctx context.Context, base int, codes ...promo.Code) (int64, error) {
	batch := &pgx.Batch{}
	for i, c := range codes {
		batch.Queue(insertCodeSQL, codeArgs(c, base+i)...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	var inserted int64
	for _, c := range codes {
		tag, err := br.Exec()
		if err != nil {
			return inserted, errors.Wrapf(err, "insert code %s", c.Code)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// Deactivate hides code from ListCodes without deleting it.
func (r *CodeRepository) Deactivate(ctx context.Context, code string) error {
	if _, err := r.pool.Exec(ctx, deactivateCodeSQL, promo.Normalize(code)); err != nil {
		return errors.Wrapf(err, "deactivate %s", code)
	}
	return nil
}

func codeArgs(c promo.Code, position int) []any {
	pkgs := make([]string, len(c.Packages))
	for i, id := range c.Packages {
		pkgs[i] = string(id)
	}
	var from, until *time.Time
	if w := c.Window; w != nil {
		if !w.From.IsZero() {
			from = &w.From
		}
		if !w.Until.IsZero() {
			until = &w.Until
		}
	}
	return []any{c.Code, int16(c.Percent), c.Description, pkgs, from, until, position}
}

func scanCode(row pgx.CollectableRow) (promo.Code, error) {
	var (
		c          promo.Code
		percent    int16
		pkgs       []string
		validFrom  *time.Time
		validUntil *time.Time
	)
	if err := row.Scan(&c.Code, &percent, &c.Description, &pkgs, &validFrom, &validUntil); err != nil {
		return c, err
	}
	c.Percent = int(percent)
	c.Packages = make([]catalog.ID, len(pkgs))
	for i, p := range pkgs {
		c.Packages[i] = catalog.ID(p)
	}
	if validFrom != nil || validUntil != nil {
		c.Window = &promo.Window{}
		if validFrom != nil {
			c.Window.From = *validFrom
		}
		if validUntil != nil {
			c.Window.Until = *validUntil
		}
	}
	return c, nil
}
