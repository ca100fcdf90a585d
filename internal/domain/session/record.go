package session

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/promo"
)

// MalformedStateError reports a persisted entry that could not be decoded.
type MalformedStateError struct {
	Err error
}

func (e *MalformedStateError) Error() string {
	return fmt.Sprintf("malformed persisted discount: %v", e.Err)
}

func (e *MalformedStateError) Unwrap() error {
	return e.Err
}

const (
	fieldPackage uint8 = 1 << iota
	fieldCode
	fieldPercentage
	fieldAmount
	fieldFinalPrice
	fieldOriginalPrice
	fieldTimestamp

	allFields = fieldPackage | fieldCode | fieldPercentage | fieldAmount |
		fieldFinalPrice | fieldOriginalPrice | fieldTimestamp
)

// Encode serializes a as the persisted record
// {package, code, percentage, amount, finalPrice, originalPrice, timestamp}
// with timestamp in Unix milliseconds.
func Encode(a promo.Applied) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("package")
	e.Str(string(a.PackageID))
	e.FieldStart("code")
	e.Str(a.Code)
	e.FieldStart("percentage")
	e.Int(a.Percent)
	e.FieldStart("amount")
	e.Int64(a.Amount)
	e.FieldStart("finalPrice")
	e.Int64(a.FinalPrice)
	e.FieldStart("originalPrice")
	e.Int64(a.OriginalPrice)
	e.FieldStart("timestamp")
	e.Int64(a.AppliedAt.UnixMilli())
	e.ObjEnd()
	return e.Bytes()
}

// Decode parses a persisted record. Any syntax error, missing field or
// out-of-range value yields a *MalformedStateError.
func Decode(data []byte) (promo.Applied, error) {
	var (
		a    promo.Applied
		seen uint8
		ts   int64
	)

	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "package":
			var s string
			s, err = d.Str()
			a.PackageID = catalog.ID(s)
			seen |= fieldPackage
		case "code":
			a.Code, err = d.Str()
			seen |= fieldCode
		case "percentage":
			a.Percent, err = d.Int()
			seen |= fieldPercentage
		case "amount":
			a.Amount, err = d.Int64()
			seen |= fieldAmount
		case "finalPrice":
			a.FinalPrice, err = d.Int64()
			seen |= fieldFinalPrice
		case "originalPrice":
			a.OriginalPrice, err = d.Int64()
			seen |= fieldOriginalPrice
		case "timestamp":
			ts, err = d.Int64()
			seen |= fieldTimestamp
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %s", key)
		}
		return nil
	})
	if err != nil {
		return promo.Applied{}, &MalformedStateError{Err: err}
	}
	if seen != allFields {
		return promo.Applied{}, &MalformedStateError{Err: errors.New("missing fields")}
	}
	if a.Code == "" || a.Percent < 0 || a.Percent > 100 || a.Amount < 0 || a.FinalPrice < 0 {
		return promo.Applied{}, &MalformedStateError{Err: errors.New("values out of range")}
	}

	a.AppliedAt = time.UnixMilli(ts)
	return a, nil
}
