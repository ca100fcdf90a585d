package promo

import (
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
)

// Cairo is the fixed offset seasonal windows are expressed in.
var Cairo = time.FixedZone("EET", 2*60*60)

// Registry is an immutable, insertion-ordered table of promo codes.
type Registry struct {
	codes []Code
	index map[string]int
}

// NewRegistry validates codes and builds a Registry preserving their order.
func NewRegistry(codes ...Code) (*Registry, error) {
	r := &Registry{
		codes: make([]Code, 0, len(codes)),
		index: make(map[string]int, len(codes)),
	}
	for _, c := range codes {
		if err := c.Validate(); err != nil {
			return nil, errors.Wrap(err, "validate")
		}
		if _, dup := r.index[c.Code]; dup {
			return nil, errors.Errorf("duplicate code %s", c.Code)
		}
		r.index[c.Code] = len(r.codes)
		r.codes = append(r.codes, c)
	}
	return r, nil
}

// DefaultCodes returns the built-in promo table.
func DefaultCodes() []Code {
	all := []catalog.ID{catalog.Standard, catalog.Pro, catalog.VIP}
	return []Code{
		{
			Code:        "RAMADAN2026",
			Percent:     40,
			Description: "عرض رمضان المبارك 🌙",
			Packages:    all,
			Window: &Window{
				From:  time.Date(2026, time.February, 28, 0, 0, 0, 0, Cairo),
				Until: time.Date(2026, time.March, 30, 0, 0, 0, 0, Cairo),
			},
		},
		{Code: "PRO30", Percent: 30, Description: "خصم 30% لباقة PRO", Packages: []catalog.ID{catalog.Pro}},
		{Code: "VIP25", Percent: 25, Description: "خصم 25% للباقة VIP", Packages: []catalog.ID{catalog.VIP}},
		{Code: "STANDARD35", Percent: 35, Description: "خصم 35% للباقة STANDARD", Packages: []catalog.ID{catalog.Standard}},
	}
}

// DefaultRegistry returns a Registry over DefaultCodes.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultCodes()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the raw entry for the normalized input, ignoring windows.
func (r *Registry) Lookup(raw string) (Code, bool) {
	i, ok := r.index[Normalize(raw)]
	if !ok {
		return Code{}, false
	}
	return r.codes[i], true
}

// Resolve is the effective-use lookup: a code outside its window is reported
// as unknown, with OutOfWindow set.
func (r *Registry) Resolve(raw string, at time.Time) (Code, error) {
	key := Normalize(raw)
	if key == "" {
		return Code{}, ErrEmptyInput
	}
	c, ok := r.Lookup(key)
	if !ok {
		return Code{}, &UnknownCodeError{Code: key}
	}
	if !c.ActiveAt(at) {
		return Code{}, &UnknownCodeError{Code: key, OutOfWindow: true}
	}
	return c, nil
}

// ListApplicable returns the codes usable for the package at t.
func (r *Registry) ListApplicable(id catalog.ID, at time.Time) []Code {
	var out []Code
	for _, c := range r.codes {
		if IsApplicable(c, id, at) {
			out = append(out, c)
		}
	}
	return out
}

// Card is a code as shown in the codes grid.
type Card struct {
	Code       Code
	Applicable bool
}

// Cards returns every code inside its window, flagged by whether it covers
// the package. Inapplicable codes are rendered disabled.
func (r *Registry) Cards(id catalog.ID, at time.Time) []Card {
	out := make([]Card, 0, len(r.codes))
	for _, c := range r.codes {
		if !c.ActiveAt(at) {
			continue
		}
		out = append(out, Card{Code: c, Applicable: c.Covers(id)})
	}
	return out
}

// Seasonal returns the window-bound codes that are active at t.
func (r *Registry) Seasonal(at time.Time) []Code {
	var out []Code
	for _, c := range r.codes {
		if c.Window != nil && c.Window.Contains(at) {
			out = append(out, c)
		}
	}
	return out
}

// All returns every registered code in insertion order.
func (r *Registry) All() []Code {
	out := make([]Code, len(r.codes))
	copy(out, r.codes)
	return out
}
