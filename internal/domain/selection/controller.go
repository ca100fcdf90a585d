// Package selection holds the per-visitor state machine of the pricing
// widget: which package is selected, which discount is applied, and the
// delayed submission of promo codes.
package selection

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
	"github.com/xenking/promo-pricing/internal/domain/session"
)

// ErrSubmissionPending is returned when a code is submitted while another
// submission has not resolved yet.
var ErrSubmissionPending = errors.New("code submission already pending")

// ErrClosed is returned by a Controller that was closed, and fails the
// submission that was pending when it closed.
var ErrClosed = errors.New("controller closed")

// Config tunes a Controller.
type Config struct {
	// SubmitDelay is applied before every code resolution, 1.2s in
	// production. Zero resolves on the next scheduling point.
	SubmitDelay time.Duration
	// Messages are the localized texts used for notifications and handoff.
	Messages Messages
	// Phone is the contact number for handoff links.
	Phone string
	// Now overrides the clock used for code windows.
	Now func() time.Time
}

// Controller is the state machine of a single visitor. All methods are safe
// for concurrent use; transitions run to completion under one lock.
type Controller struct {
	catalog *catalog.Catalog
	codes   *promo.Registry
	store   *session.Store
	view    Presenter
	lg      *zap.Logger

	delay time.Duration
	msgs  Messages
	phone string
	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu       sync.Mutex
	selected catalog.Package
	applied  *promo.Applied
	pending  *Submission
	closed   bool
	quit     chan struct{}
}

// New returns a Controller with the catalog's default package selected and no
// discount. Nothing is rendered until Start.
func New(cat *catalog.Catalog, codes *promo.Registry, store *session.Store, view Presenter, lg *zap.Logger, cfg Config) *Controller {
	msgs := cfg.Messages
	if msgs.Applied == "" {
		msgs = MessagesFor("")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		catalog:  cat,
		codes:    codes,
		store:    store,
		view:     view,
		lg:       lg,
		delay:    cfg.SubmitDelay,
		msgs:     msgs,
		phone:    cfg.Phone,
		now:      now,
		after:    time.After,
		selected: cat.Default(),
		quit:     make(chan struct{}),
	}
}

// Start renders the initial view and restores a persisted discount, if any.
// It reports whether a discount was restored.
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := c.now()
	c.view.ShowBanner(c.codes.Seasonal(at))
	c.renderLocked(at)
	c.view.SetSubmitEnabled(c.pending == nil)
	return c.restoreLocked(ctx)
}

// RestoreFromStore reinstates a persisted discount together with its package.
// Persisted values are trusted as written. Missing, stale and unreadable
// entries leave the controller untouched.
func (c *Controller) RestoreFromStore(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restoreLocked(ctx)
}

func (c *Controller) restoreLocked(ctx context.Context) bool {
	a, ok, err := c.store.Load(ctx)
	if err != nil {
		c.lg.Warn("Restore discount", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}

	pkg, err := c.catalog.Get(a.PackageID)
	if err != nil {
		c.lg.Warn("Persisted discount references unknown package",
			zap.String("package", string(a.PackageID)),
		)
		if err := c.store.Clear(ctx); err != nil {
			c.lg.Warn("Clear discount", zap.Error(err))
		}
		return false
	}

	c.selected = pkg
	c.applied = &a
	c.renderLocked(c.now())
	c.notifyLocked(KindInfo, c.msgs.restored(a.Code))
	return true
}

// SelectPackage makes id the current package. Any applied discount is
// dropped, including its persisted copy. An unknown id changes nothing.
func (c *Controller) SelectPackage(ctx context.Context, id catalog.ID) error {
	pkg, err := c.catalog.Get(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.selected = pkg
	c.applied = nil
	if err := c.store.Clear(ctx); err != nil {
		c.lg.Warn("Clear discount", zap.Error(err))
	}
	c.renderLocked(c.now())
	return nil
}

// ClearDiscount drops the applied discount. It is a no-op without one.
func (c *Controller) ClearDiscount(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.applied == nil {
		return
	}
	c.applied = nil
	if err := c.store.Clear(ctx); err != nil {
		c.lg.Warn("Clear discount", zap.Error(err))
	}
	c.view.ShowPrice(c.selected, nil)
}

// SubmitCode accepts raw input for delayed resolution. Empty input is
// rejected at once with promo.ErrEmptyInput. The returned Submission resolves
// against whichever package is selected when the delay elapses. Cancelling
// ctx during the delay fails the submission with ctx.Err().
func (c *Controller) SubmitCode(ctx context.Context, raw string) (*Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.pending != nil {
		return nil, ErrSubmissionPending
	}
	code := promo.Normalize(raw)
	if code == "" {
		c.notifyLocked(KindError, c.msgs.Reject(promo.ErrEmptyInput))
		return nil, promo.ErrEmptyInput
	}

	sub := newSubmission(code)
	c.pending = sub
	c.view.SetSubmitEnabled(false)

	go c.resolve(ctx, sub)
	return sub, nil
}

func (c *Controller) resolve(ctx context.Context, sub *Submission) {
	if c.delay > 0 {
		select {
		case <-c.after(c.delay):
		case <-c.quit:
			return
		case <-ctx.Done():
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.pending == sub {
				c.finishLocked(sub, promo.Applied{}, ctx.Err())
			}
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Close may have failed the submission while we waited for the lock.
	if c.pending != sub {
		return
	}
	a, err := c.applyLocked(ctx, sub.code)
	c.finishLocked(sub, a, err)
}

// Close abandons the controller, as when its page is reloaded. A pending
// submission fails with ErrClosed and is neither applied nor persisted.
// Later submissions are rejected with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Controller) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.quit)
	if c.pending != nil {
		c.lg.Debug("Abandoning pending submission", zap.String("code", c.pending.code))
		c.finishLocked(c.pending, promo.Applied{}, ErrClosed)
	}
}

func (c *Controller) finishLocked(sub *Submission, a promo.Applied, err error) {
	c.pending = nil
	c.view.SetSubmitEnabled(true)
	sub.finish(a, err)
}

func (c *Controller) applyLocked(ctx context.Context, code string) (promo.Applied, error) {
	at := c.now()
	pkg := c.selected

	pc, err := c.codes.Resolve(code, at)
	if err != nil {
		c.rejectLocked(err)
		return promo.Applied{}, err
	}
	d, err := promo.ComputeDiscount(pkg, pc, at)
	if err != nil {
		c.rejectLocked(err)
		return promo.Applied{}, err
	}

	// A failed write keeps the discount in memory for this page.
	a, err := c.store.Save(ctx, d)
	if err != nil {
		c.lg.Warn("Persist discount", zap.Error(err))
	}
	c.applied = &a
	c.view.ShowPrice(pkg, c.applied)
	c.notifyLocked(KindSuccess, c.msgs.applied(d.Percent))

	c.lg.Debug("Discount applied",
		zap.String("code", d.Code),
		zap.String("package", string(d.PackageID)),
		zap.Int64("final_price", d.FinalPrice),
	)
	return a, nil
}

func (c *Controller) rejectLocked(err error) {
	c.notifyLocked(KindError, c.msgs.Reject(err))
	c.lg.Debug("Code rejected", zap.Error(err))
}

func (c *Controller) renderLocked(at time.Time) {
	c.view.ShowCodes(c.selected, c.codes.Cards(c.selected.ID, at))
	c.view.ShowPrice(c.selected, c.applied)
}

func (c *Controller) notifyLocked(kind Kind, text string) {
	c.view.Notify(Notification{Text: text, Kind: kind, At: c.now()})
}

// CurrentPackage returns the selected package.
func (c *Controller) CurrentPackage() catalog.Package {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// CurrentDiscount returns the applied discount, if any.
func (c *Controller) CurrentDiscount() (promo.Applied, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied == nil {
		return promo.Applied{}, false
	}
	return *c.applied, true
}

// ApplicableCodes lists codes usable with the selected package right now.
func (c *Controller) ApplicableCodes() []promo.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes.ListApplicable(c.selected.ID, c.now())
}

// Cards returns the codes grid for the selected package.
func (c *Controller) Cards() []promo.Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes.Cards(c.selected.ID, c.now())
}

// Banner returns the seasonal codes currently on offer.
func (c *Controller) Banner() []promo.Code {
	return c.codes.Seasonal(c.now())
}

// Pending reports whether a submission is awaiting resolution.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Submission is the eventual result of SubmitCode.
type Submission struct {
	code string
	done chan struct{}

	applied promo.Applied
	err     error
}

func newSubmission(code string) *Submission {
	return &Submission{code: code, done: make(chan struct{})}
}

// Code is the normalized code being resolved.
func (s *Submission) Code() string { return s.code }

// Done is closed once the submission resolved.
func (s *Submission) Done() <-chan struct{} { return s.done }

// Wait blocks until the submission resolves or ctx is done. Abandoning the
// wait does not cancel the submission.
func (s *Submission) Wait(ctx context.Context) (promo.Applied, error) {
	select {
	case <-s.done:
		return s.applied, s.err
	case <-ctx.Done():
		return promo.Applied{}, ctx.Err()
	}
}

func (s *Submission) finish(a promo.Applied, err error) {
	s.applied = a
	s.err = err
	close(s.done)
}
