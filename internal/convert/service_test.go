package convert

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bx-custody/internal/errs"
	"bx-custody/internal/money"
	"bx-custody/internal/rates"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testOracle() *rates.StaticOracle {
	return rates.NewStaticOracle(map[string]decimal.Decimal{
		"BTC": dec("60000"),
		"ETH": dec("3000"),
	})
}

func TestMakeQuote(t *testing.T) {
	ctx := context.Background()
	oracle := testOracle()

	t.Run("crosses through the quote currency", func(t *testing.T) {
		q, err := MakeQuote(ctx, oracle, "USDT", "BTC", "ETH", dec("0.5"))
		require.NoError(t, err)
		assert.True(t, q.ToAmount.Equal(dec("10")), "got %s", q.ToAmount)
		assert.True(t, q.Rate.Equal(dec("20")))
	})

	t.Run("quote currency is priced at one", func(t *testing.T) {
		q, err := MakeQuote(ctx, oracle, "USDT", "USDT", "ETH", dec("3000"))
		require.NoError(t, err)
		assert.True(t, q.ToAmount.Equal(dec("1")), "got %s", q.ToAmount)
	})

	t.Run("same currency is rejected", func(t *testing.T) {
		_, err := MakeQuote(ctx, oracle, "USDT", "BTC", "BTC", dec("1"))
		assert.True(t, errs.IsValidation(err))
	})

	t.Run("unknown currency means no rate", func(t *testing.T) {
		_, err := MakeQuote(ctx, oracle, "USDT", "XYZ", "BTC", dec("1"))
		assert.ErrorIs(t, err, errs.ErrRateUnavailable)
	})

	t.Run("non-positive amounts are rejected", func(t *testing.T) {
		_, err := MakeQuote(ctx, oracle, "USDT", "BTC", "ETH", dec("0"))
		assert.True(t, errs.IsValidation(err))
		_, err = MakeQuote(ctx, oracle, "USDT", "BTC", "ETH", dec("-1"))
		assert.True(t, errs.IsValidation(err))
	})

	t.Run("round trip loses at most a truncation step", func(t *testing.T) {
		start := dec("0.123456789")
		there, err := MakeQuote(ctx, oracle, "USDT", "BTC", "ETH", start)
		require.NoError(t, err)
		back, err := MakeQuote(ctx, oracle, "USDT", "ETH", "BTC", there.ToAmount)
		require.NoError(t, err)
		assert.True(t, money.WithinEpsilon(back.ToAmount, start),
			"round trip drifted: %s vs %s", back.ToAmount, start)
	})
}
