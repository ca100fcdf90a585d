package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
)

const (
	listPackagesSQL = `SELECT id, name, price, is_default FROM packages ORDER BY position, id`

	upsertPackageSQL = `INSERT INTO packages (id, name, price, position, is_default)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price,
			position = EXCLUDED.position, is_default = EXCLUDED.is_default`

	clearDefaultSQL = `UPDATE packages SET is_default = FALSE WHERE is_default AND id <> $1`
)

var _ catalog.Repository = (*PackageRepository)(nil)

// PackageRepository implements catalog.Repository.
type PackageRepository struct {
	pool *pgxpool.Pool
}

// NewPackageRepository returns a PackageRepository using pool.
func NewPackageRepository(pool *pgxpool.Pool) *PackageRepository {
	return &PackageRepository{pool: pool}
}

type packageRow struct {
	pkg       catalog.Package
	isDefault bool
}

// ListPackages returns packages ordered by position. Prices are stored with
// cents and rounded to whole units.
func (r *PackageRepository) ListPackages(ctx context.Context) ([]catalog.Package, catalog.ID, error) {
	rows, err := r.pool.Query(ctx, listPackagesSQL)
	if err != nil {
		return nil, "", errors.Wrap(err, "query packages")
	}
	list, err := pgx.CollectRows(rows, scanPackage)
	if err != nil {
		return nil, "", errors.Wrap(err, "scan packages")
	}

	var def catalog.ID
	pkgs := make([]catalog.Package, len(list))
	for i, row := range list {
		pkgs[i] = row.pkg
		if row.isDefault {
			def = row.pkg.ID
		}
	}
	return pkgs, def, nil
}

// UpsertPackages writes pkgs in one transaction. Their order becomes the
// display order and def becomes the only default.
func (r *PackageRepository) UpsertPackages(ctx context.Context, def catalog.ID, pkgs ...catalog.Package) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearDefaultSQL, string(def)); err != nil {
			return errors.Wrap(err, "clear default")
		}
		for i, p := range pkgs {
			if _, err := tx.Exec(ctx, upsertPackageSQL,
				string(p.ID), p.Name, decimal.NewFromInt(p.Price), i, p.ID == def,
			); err != nil {
				return errors.Wrapf(err, "upsert package %s", p.ID)
			}
		}
		return nil
	})
}

func scanPackage(row pgx.CollectableRow) (packageRow, error) {
	var (
		out   packageRow
		id    string
		price decimal.Decimal
	)
	if err := row.Scan(&id, &out.pkg.Name, &price, &out.isDefault); err != nil {
		return out, err
	}
	out.pkg.ID = catalog.ID(id)
	out.pkg.Price = price.Round(0).IntPart()
	return out, nil
}
