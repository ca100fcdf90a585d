package selection

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/promo-pricing/internal/domain/promo"
)

// Messages holds the localized texts the controller emits. Format strings use
// fmt verbs in the order documented on each field.
type Messages struct {
	EmptyInput   string
	UnknownCode  string
	Inapplicable string
	// Applied takes the discount percent.
	Applied string
	// Restored takes the code.
	Restored string

	Currency string
	// Subscribe takes package name, price and currency.
	Subscribe string
	// Inquire takes package name, price and currency.
	Inquire string
	// Details takes code, original price, currency, final price, currency.
	Details string
	// AmountLine takes amount, currency and percent.
	AmountLine string
}

var arabic = Messages{
	EmptyInput:   "يرجى إدخال كود الخصم",
	UnknownCode:  "كود الخصم غير صحيح",
	Inapplicable: "هذا الكود غير صالح لهذه الباقة",
	Applied:      "تم تطبيق الكود! خصم %d%%",
	Restored:     "الكود %s مطبق بالفعل",

	Currency:   "جنيه",
	Subscribe:  "السلام عليكم، اريد الاشتراك ب%s بسعر %d %s",
	Inquire:    "السلام عليكم، أريد الاستفسار عن %s بسعر %d %s شهرياً",
	Details:    "\n\nتم تطبيق كود الخصم: %s\nالسعر الأصلي: %d %s\nالسعر بعد الخصم: %d %s",
	AmountLine: "\nمقدار الخصم: %d %s (%d%%)",
}

var english = Messages{
	EmptyInput:   "Please enter a promo code",
	UnknownCode:  "Invalid promo code",
	Inapplicable: "This code is not valid for the selected package",
	Applied:      "Code applied! %d%% off",
	Restored:     "Code %s is already applied",

	Currency:   "EGP",
	Subscribe:  "Hello, I would like to subscribe to %s for %d %s",
	Inquire:    "Hello, I would like to ask about %s for %d %s per month",
	Details:    "\n\nPromo code applied: %s\nOriginal price: %d %s\nDiscounted price: %d %s",
	AmountLine: "\nDiscount: %d %s (%d%%)",
}

// MessagesFor returns the texts for locale. Unknown locales fall back to Arabic.
func MessagesFor(locale string) Messages {
	if locale == "en" {
		return english
	}
	return arabic
}

func (m Messages) applied(percent int) string {
	return fmt.Sprintf(m.Applied, percent)
}

func (m Messages) restored(code string) string {
	return fmt.Sprintf(m.Restored, code)
}

// Reject returns the text shown when a code submission fails with err.
func (m Messages) Reject(err error) string {
	switch {
	case errors.Is(err, promo.ErrEmptyInput):
		return m.EmptyInput
	case errors.Is(err, promo.ErrInapplicableCode):
		return m.Inapplicable
	default:
		return m.UnknownCode
	}
}
