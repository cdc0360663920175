// Package money fixes the ledger's decimal discipline: every stored or
// compared amount is truncated to the same fractional precision so two
// representations of the same value can never disagree.
package money

import "github.com/shopspring/decimal"

// Places is the fractional precision carried by every ledger amount.
const Places = 18

// Epsilon bounds the quote-leg equality check on deposit adjustments.
var Epsilon = decimal.New(1, -9)

func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Places)
}

// WithinEpsilon reports whether a and b differ by less than Epsilon.
func WithinEpsilon(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Epsilon)
}
