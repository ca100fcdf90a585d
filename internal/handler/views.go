package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
	"github.com/xenking/promo-pricing/internal/domain/selection"
)

type packageView struct {
	ID      catalog.ID `json:"id"`
	Name    string     `json:"name"`
	Price   int64      `json:"price"`
	Default bool       `json:"default"`
	// Codes lists codes usable with the package right now.
	Codes []string `json:"codes"`
}

type codeView struct {
	Code        string       `json:"code"`
	Percentage  int          `json:"percentage"`
	Description string       `json:"description"`
	Packages    []catalog.ID `json:"packages"`
	Applicable  bool         `json:"applicable"`
}

type discountView struct {
	Package       catalog.ID `json:"package"`
	Code          string     `json:"code"`
	Percentage    int        `json:"percentage"`
	Amount        int64      `json:"amount"`
	FinalPrice    int64      `json:"finalPrice"`
	OriginalPrice int64      `json:"originalPrice"`
	AppliedAt     time.Time  `json:"appliedAt"`
}

type notificationView struct {
	Text      string         `json:"text"`
	Kind      selection.Kind `json:"kind"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

type stateView struct {
	Package       packageView        `json:"package"`
	Discount      *discountView      `json:"discount"`
	Codes         []codeView         `json:"codes"`
	Banner        []codeView         `json:"banner"`
	Notifications []notificationView `json:"notifications"`
	SubmitEnabled bool               `json:"submitEnabled"`
}

type contactView struct {
	URL string `json:"url"`
}

type errorView struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type packageRequest struct {
	Package string `json:"package"`
}

type codeRequest struct {
	Code string `json:"code"`
}

func newCodeView(c promo.Code, applicable bool) codeView {
	pkgs := c.Packages
	if pkgs == nil {
		pkgs = []catalog.ID{}
	}
	return codeView{
		Code:        c.Code,
		Percentage:  c.Percent,
		Description: c.Description,
		Packages:    pkgs,
		Applicable:  applicable,
	}
}

func newStateView(v selection.View) stateView {
	out := stateView{
		Package: packageView{
			ID:    v.Package.ID,
			Name:  v.Package.Name,
			Price: v.Package.Price,
		},
		Codes:         make([]codeView, 0, len(v.Cards)),
		Banner:        make([]codeView, 0, len(v.Banner)),
		Notifications: make([]notificationView, 0, len(v.Notifications)),
		SubmitEnabled: v.SubmitEnabled,
	}
	for _, card := range v.Cards {
		out.Codes = append(out.Codes, newCodeView(card.Code, card.Applicable))
	}
	for _, c := range v.Banner {
		out.Banner = append(out.Banner, newCodeView(c, c.Covers(v.Package.ID)))
	}
	for _, n := range v.Notifications {
		out.Notifications = append(out.Notifications, notificationView{
			Text:      n.Text,
			Kind:      n.Kind,
			ExpiresAt: n.At.Add(selection.DismissAfter),
		})
	}
	if d := v.Discount; d != nil {
		out.Discount = &discountView{
			Package:       d.PackageID,
			Code:          d.Code,
			Percentage:    d.Percent,
			Amount:        d.Amount,
			FinalPrice:    d.FinalPrice,
			OriginalPrice: d.OriginalPrice,
			AppliedAt:     d.AppliedAt.UTC(),
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zctx.From(r.Context()).Debug("Write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	writeJSON(w, r, status, errorView{Error: kind, Message: message})
}

// readJSON decodes a small request body into dst.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
	return dec.Decode(dst)
}
