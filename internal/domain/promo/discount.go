package promo

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
)

var hundred = decimal.NewFromInt(100)

// ComputeDiscount prices pkg under code at t. The amount is rounded half away
// from zero to a whole currency unit.
func ComputeDiscount(pkg catalog.Package, code Code, at time.Time) (Draft, error) {
	if !IsApplicable(code, pkg.ID, at) {
		return Draft{}, &InapplicableCodeError{Code: code.Code, PackageID: pkg.ID}
	}

	price := decimal.NewFromInt(pkg.Price)
	amount := price.Mul(decimal.NewFromInt(int64(code.Percent))).Div(hundred).Round(0)
	if amount.GreaterThan(price) {
		amount = price
	}

	return Draft{
		PackageID:     pkg.ID,
		Code:          code.Code,
		Percent:       code.Percent,
		Amount:        amount.IntPart(),
		FinalPrice:    price.Sub(amount).IntPart(),
		OriginalPrice: pkg.Price,
	}, nil
}
