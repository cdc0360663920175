package rates

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStaticOracle(t *testing.T) {
	ctx := context.Background()
	o := NewStaticOracle(map[string]decimal.Decimal{
		"btc":  decimal.NewFromInt(60000),
		"DEAD": decimal.Zero,
	})

	p, ok := o.GetPrice(ctx, "BTC")
	assert.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(60000)))

	// lookup is case-insensitive
	_, ok = o.GetPrice(ctx, "btc")
	assert.True(t, ok)

	// zero and missing are both unavailable
	_, ok = o.GetPrice(ctx, "DEAD")
	assert.False(t, ok)
	_, ok = o.GetPrice(ctx, "XYZ")
	assert.False(t, ok)

	o.Set("eth", decimal.NewFromInt(3000))
	p, ok = o.GetPrice(ctx, "ETH")
	assert.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(3000)))

	prices := o.GetPrices(ctx, []string{"BTC", "XYZ"})
	assert.Len(t, prices, 2)
	assert.True(t, prices[0].OK)
	assert.False(t, prices[1].OK)
}
