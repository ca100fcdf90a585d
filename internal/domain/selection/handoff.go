package selection

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
)

// DefaultPhone is the sales contact used for handoff links.
const DefaultPhone = "201093191277"

// ContactURL returns a WhatsApp link announcing the current selection and,
// when applied, its discount.
func (c *Controller) ContactURL() string {
	c.mu.Lock()
	pkg := c.selected
	var applied *promo.Applied
	if c.applied != nil {
		a := *c.applied
		applied = &a
	}
	c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, c.msgs.Subscribe, pkg.Name, pkg.Price, c.msgs.Currency)
	if applied != nil {
		c.writeDetails(&b, applied.Draft)
	}
	return whatsAppURL(c.phone, b.String())
}

// ContactPackageURL returns a WhatsApp inquiry link for package id. The
// persisted discount is included only when it was applied to that package.
func (c *Controller) ContactPackageURL(ctx context.Context, id catalog.ID) (string, error) {
	pkg, err := c.catalog.Get(id)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, c.msgs.Inquire, pkg.Name, pkg.Price, c.msgs.Currency)

	a, ok, err := c.store.Peek(ctx)
	if err != nil {
		c.lg.Warn("Read discount for handoff", zap.Error(err))
	}
	if ok && a.PackageID == id {
		c.writeDetails(&b, a.Draft)
		fmt.Fprintf(&b, c.msgs.AmountLine, a.Amount, c.msgs.Currency, a.Percent)
	}
	return whatsAppURL(c.phone, b.String()), nil
}

func (c *Controller) writeDetails(b *strings.Builder, d promo.Draft) {
	fmt.Fprintf(b, c.msgs.Details, d.Code, d.OriginalPrice, c.msgs.Currency, d.FinalPrice, c.msgs.Currency)
}

// componentUnescaper turns url.QueryEscape output into encodeURIComponent
// form: spaces as %20 and the marks ! ' ( ) * left bare. A literal + is
// already %2B at that point.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func whatsAppURL(phone, text string) string {
	if phone == "" {
		phone = DefaultPhone
	}
	return "https://wa.me/" + phone + "?text=" + componentUnescaper.Replace(url.QueryEscape(text))
}
