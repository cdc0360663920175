package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	a := decimal.RequireFromString("1.1234567890123456789999")
	b := decimal.RequireFromString("1.123456789012345678")
	assert.True(t, Normalize(a).Equal(b))

	// truncation, not rounding
	c := decimal.RequireFromString("0.9999999999999999999")
	assert.True(t, Normalize(c).LessThan(decimal.NewFromInt(1)))

	// already-normal values pass through
	d := decimal.RequireFromString("42.5")
	assert.True(t, Normalize(d).Equal(d))
}

func TestWithinEpsilon(t *testing.T) {
	a := decimal.RequireFromString("100")
	assert.True(t, WithinEpsilon(a, decimal.RequireFromString("100.0000000009")))
	assert.True(t, WithinEpsilon(a, decimal.RequireFromString("99.9999999991")))
	assert.False(t, WithinEpsilon(a, decimal.RequireFromString("100.000000001")))
	assert.False(t, WithinEpsilon(a, decimal.RequireFromString("99.999999999")))
}
