// Package promo holds promo codes, the registry that resolves them and the
// discount engine that prices a package under a code.
package promo

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
)

var (
	// ErrEmptyInput is returned when a blank code is submitted.
	ErrEmptyInput = errors.New("empty promo code")
	// ErrUnknownCode is matched by every *UnknownCodeError.
	ErrUnknownCode = errors.New("unknown promo code")
	// ErrInapplicableCode is matched by every *InapplicableCodeError.
	ErrInapplicableCode = errors.New("promo code not applicable to package")
)

// UnknownCodeError reports a code that cannot be used right now. OutOfWindow
// separates a registered seasonal code from one that was never registered.
type UnknownCodeError struct {
	Code        string
	OutOfWindow bool
}

func (e *UnknownCodeError) Error() string {
	if e.OutOfWindow {
		return fmt.Sprintf("promo code %s is outside its availability window", e.Code)
	}
	return fmt.Sprintf("promo code %s not found", e.Code)
}

// Is reports whether target is ErrUnknownCode.
func (e *UnknownCodeError) Is(target error) bool {
	return target == ErrUnknownCode
}

// InapplicableCodeError reports a code that exists but excludes the package.
type InapplicableCodeError struct {
	Code      string
	PackageID catalog.ID
}

func (e *InapplicableCodeError) Error() string {
	return fmt.Sprintf("promo code %s does not apply to package %s", e.Code, e.PackageID)
}

// Is reports whether target is ErrInapplicableCode.
func (e *InapplicableCodeError) Is(target error) bool {
	return target == ErrInapplicableCode
}

// Window is a half-open availability interval [From, Until). A zero bound is
// unbounded on that side.
type Window struct {
	From  time.Time
	Until time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.Until.IsZero() && !t.Before(w.Until) {
		return false
	}
	return true
}

// Code is an immutable registry entry.
type Code struct {
	Code        string
	Percent     int
	Description string
	Packages    []catalog.ID
	// Window is nil for codes that are always available.
	Window *Window
}

// ActiveAt reports whether the code is inside its availability window at t.
func (c Code) ActiveAt(t time.Time) bool {
	return c.Window == nil || c.Window.Contains(t)
}

// Covers reports whether the code lists the package.
func (c Code) Covers(id catalog.ID) bool {
	return slices.Contains(c.Packages, id)
}

// IsApplicable reports whether code may be used for the package at t.
func IsApplicable(code Code, id catalog.ID, at time.Time) bool {
	return code.Covers(id) && code.ActiveAt(at)
}

// Normalize trims and upper-cases raw user input into a lookup key.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Validate checks that c is a well-formed registry entry.
func (c Code) Validate() error {
	if c.Code == "" || c.Code != Normalize(c.Code) {
		return errors.Errorf("code %q is not normalized", c.Code)
	}
	if c.Percent < 0 || c.Percent > 100 {
		return errors.Errorf("code %s: percent %d out of range", c.Code, c.Percent)
	}
	if len(c.Packages) == 0 {
		return errors.Errorf("code %s applies to no package", c.Code)
	}
	for _, id := range c.Packages {
		if _, err := catalog.ParseID(string(id)); err != nil {
			return errors.Wrapf(err, "code %s", c.Code)
		}
	}
	if w := c.Window; w != nil && !w.From.IsZero() && !w.Until.IsZero() && !w.Until.After(w.From) {
		return errors.Errorf("code %s: window ends before it starts", c.Code)
	}
	return nil
}

// Draft is the result of pricing a package under a code.
type Draft struct {
	PackageID     catalog.ID
	Code          string
	Percent       int
	Amount        int64
	FinalPrice    int64
	OriginalPrice int64
}

// Applied is a draft that became the session's active discount.
type Applied struct {
	Draft
	AppliedAt time.Time
}

// Repository loads registry entries from persistent storage.
type Repository interface {
	// ListCodes returns active codes in display order.
	ListCodes(ctx context.Context) ([]Code, error)
}

// LoadRegistry builds a Registry from r.
func LoadRegistry(ctx context.Context, r Repository) (*Registry, error) {
	codes, err := r.ListCodes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list codes")
	}
	return NewRegistry(codes...)
}
