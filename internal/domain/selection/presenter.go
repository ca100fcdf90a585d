package selection

import (
	"sync"
	"time"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
)

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// DismissAfter is how long a notification stays visible.
const DismissAfter = 5 * time.Second

// Notification is a short message shown to the visitor.
type Notification struct {
	Text string
	Kind Kind
	At   time.Time
}

// Expired reports whether n should no longer be shown at now.
func (n Notification) Expired(now time.Time) bool {
	return now.Sub(n.At) >= DismissAfter
}

// Presenter renders controller state. The controller never touches display
// elements directly.
type Presenter interface {
	ShowCodes(pkg catalog.Package, cards []promo.Card)
	ShowBanner(seasonal []promo.Code)
	ShowPrice(pkg catalog.Package, applied *promo.Applied)
	SetSubmitEnabled(enabled bool)
	Notify(n Notification)
}

// View is a snapshot of everything a Feed has been told to render.
type View struct {
	Package       catalog.Package
	Cards         []promo.Card
	Banner        []promo.Code
	Discount      *promo.Applied
	SubmitEnabled bool
	Notifications []Notification
}

var _ Presenter = (*Feed)(nil)

// Feed is a Presenter that keeps the latest rendered view so that a remote
// client can poll it. Notifications are dropped once they expire.
type Feed struct {
	mu   sync.Mutex
	view View
	now  func() time.Time
}

// NewFeed returns an empty Feed. now decides notification expiry and should
// be the controller's clock; nil means time.Now.
func NewFeed(now func() time.Time) *Feed {
	if now == nil {
		now = time.Now
	}
	return &Feed{now: now}
}

func (f *Feed) ShowCodes(pkg catalog.Package, cards []promo.Card) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.Package = pkg
	f.view.Cards = cards
}

func (f *Feed) ShowBanner(seasonal []promo.Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.Banner = seasonal
}

func (f *Feed) ShowPrice(pkg catalog.Package, applied *promo.Applied) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.Package = pkg
	if applied == nil {
		f.view.Discount = nil
		return
	}
	a := *applied
	f.view.Discount = &a
}

func (f *Feed) SetSubmitEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.SubmitEnabled = enabled
}

func (f *Feed) Notify(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.Notifications = append(f.view.Notifications, n)
}

// Snapshot returns a copy of the current view without expired notifications.
func (f *Feed) Snapshot() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	live := f.view.Notifications[:0]
	for _, n := range f.view.Notifications {
		if !n.Expired(now) {
			live = append(live, n)
		}
	}
	f.view.Notifications = live

	v := f.view
	v.Cards = append([]promo.Card(nil), f.view.Cards...)
	v.Banner = append([]promo.Code(nil), f.view.Banner...)
	v.Notifications = append([]Notification(nil), live...)
	if f.view.Discount != nil {
		a := *f.view.Discount
		v.Discount = &a
	}
	return v
}
