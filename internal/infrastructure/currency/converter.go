package currency

import (
	"github.com/shopspring/decimal"
)

// Converter translates store-currency amounts into the provider's
// settlement currency. When the store already trades in a settlement
// currency the amount passes through untouched.
type Converter struct {
	rate       decimal.Decimal
	hasRate    bool
	settlement map[string]struct{}
}

// New creates a Converter. supported lists the currencies the provider
// settles natively; rate converts one unit of any other store currency into
// the settlement currency.
func New(rate string, supported []string) Converter {
	c := Converter{settlement: make(map[string]struct{}, len(supported))}
	for _, cur := range supported {
		c.settlement[cur] = struct{}{}
	}
	if r, err := decimal.NewFromString(rate); err == nil && r.IsPositive() {
		c.rate = r
		c.hasRate = true
	}
	return c
}

// Supported reports whether the store currency needs no conversion.
func (c Converter) Supported(storeCurrency string) bool {
	_, ok := c.settlement[storeCurrency]
	return ok
}

// RequiresRate reports whether conversion is needed but no usable rate is
// configured.
func (c Converter) RequiresRate(storeCurrency string) bool {
	return !c.Supported(storeCurrency) && !c.hasRate
}

// Convert maps a store-currency amount into the settlement currency using
// the minor-unit round trip: to integer cents, times rate, back down,
// rounded to 2 decimals. Keeping the intermediate in cents matches what the
// provider was sent at trade creation, so the webhook amount gate compares
// equal.
func (c Converter) Convert(amount decimal.Decimal, storeCurrency string) decimal.Decimal {
	if c.Supported(storeCurrency) || !c.hasRate {
		return amount.Round(2)
	}
	cents := amount.Mul(decimal.NewFromInt(100)).Truncate(0)
	converted := cents.Mul(c.rate).Round(2)
	return converted.Div(decimal.NewFromInt(100)).Round(2)
}

// WireAmount renders a converted amount the way the provider expects it on
// the wire: plain decimal string with exactly two fraction digits.
func (c Converter) WireAmount(amount decimal.Decimal, storeCurrency string) string {
	return c.Convert(amount, storeCurrency).StringFixed(2)
}

// AmountMatches compares a wire amount from a notification against the
// expected store amount after conversion.
func (c Converter) AmountMatches(expected decimal.Decimal, storeCurrency, wire string) bool {
	got, err := decimal.NewFromString(wire)
	if err != nil {
		return false
	}
	return c.Convert(expected, storeCurrency).Equal(got.Round(2))
}
