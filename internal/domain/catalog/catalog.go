// Package catalog holds the static table of subscribable service packages.
package catalog

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ID identifies a service package.
type ID string

const (
	Standard ID = "standard"
	Pro      ID = "pro"
	VIP      ID = "vip"
)

// ErrNotFound is returned when a requested package does not exist.
var ErrNotFound = errors.New("package not found")

// ParseID normalizes s and checks it against the known package ids.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	switch id {
	case Standard, Pro, VIP:
		return id, nil
	default:
		return "", errors.Wrapf(ErrNotFound, "parse %q", s)
	}
}

// Package is a subscribable service tier with a fixed base price in whole
// currency units.
type Package struct {
	ID    ID
	Name  string
	Price int64
}

// Catalog is an immutable, ordered set of packages.
type Catalog struct {
	order []ID
	byID  map[ID]Package
	def   ID
}

// New validates pkgs and builds a Catalog preserving their order. def names
// the default selection; an empty def selects the first package.
func New(def ID, pkgs ...Package) (*Catalog, error) {
	if len(pkgs) == 0 {
		return nil, errors.New("catalog is empty")
	}

	c := &Catalog{
		order: make([]ID, 0, len(pkgs)),
		byID:  make(map[ID]Package, len(pkgs)),
	}
	for _, p := range pkgs {
		if _, err := ParseID(string(p.ID)); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, errors.Errorf("duplicate package %q", p.ID)
		}
		if p.Name == "" {
			return nil, errors.Errorf("package %q has no name", p.ID)
		}
		if p.Price < 0 {
			return nil, errors.Errorf("package %q has negative price %d", p.ID, p.Price)
		}
		c.order = append(c.order, p.ID)
		c.byID[p.ID] = p
	}

	if def == "" {
		def = c.order[0]
	}
	if _, ok := c.byID[def]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "default %q", def)
	}
	c.def = def
	return c, nil
}

// Default returns the built-in package table with pro as the default selection.
func Default() *Catalog {
	c, err := New(Pro,
		Package{ID: Standard, Name: "الباقة الأساسية", Price: 599},
		Package{ID: Pro, Name: "باقة PRO", Price: 749},
		Package{ID: VIP, Name: "الباقة المميزة VIP", Price: 899},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the package with the given id.
func (c *Catalog) Get(id ID) (Package, error) {
	p, ok := c.byID[id]
	if !ok {
		return Package{}, errors.Wrapf(ErrNotFound, "get %q", id)
	}
	return p, nil
}

// Default returns the package selected when nothing else is.
func (c *Catalog) Default() Package {
	return c.byID[c.def]
}

// List returns packages in catalog order.
func (c *Catalog) List() []Package {
	out := make([]Package, len(c.order))
	for i, id := range c.order {
		out[i] = c.byID[id]
	}
	return out
}

// Repository loads the package table from persistent storage.
type Repository interface {
	// ListPackages returns packages in display order along with the id of
	// the default package.
	ListPackages(ctx context.Context) ([]Package, ID, error)
}

// Load builds a Catalog from r.
func Load(ctx context.Context, r Repository) (*Catalog, error) {
	pkgs, def, err := r.ListPackages(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list packages")
	}
	return New(def, pkgs...)
}
