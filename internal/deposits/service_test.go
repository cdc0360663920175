package deposits

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bx-custody/internal/errs"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAdjustedCreditAmount(t *testing.T) {
	t.Run("scales crypto by the quote ratio", func(t *testing.T) {
		// claimed 0.5 BTC worth 30000, admin says it was really 15000
		credit, err := adjustedCreditAmount(dec("30000"), dec("15000"), dec("0.5"), "BTC", "USDT")
		require.NoError(t, err)
		assert.True(t, credit.Equal(dec("0.25")), "got %s", credit)
	})

	t.Run("quote currency deposit keeps both legs equal", func(t *testing.T) {
		credit, err := adjustedCreditAmount(dec("100"), dec("75"), dec("100"), "USDT", "USDT")
		require.NoError(t, err)
		assert.True(t, credit.Equal(dec("75")), "got %s", credit)
	})

	t.Run("quote currency mismatch is a data integrity failure", func(t *testing.T) {
		// crypto leg disagrees with the quote leg for the quote currency itself
		_, err := adjustedCreditAmount(dec("100"), dec("75"), dec("90"), "USDT", "USDT")
		assert.ErrorIs(t, err, errs.ErrDataIntegrity)
	})

	t.Run("zero original quote cannot be scaled", func(t *testing.T) {
		_, err := adjustedCreditAmount(dec("0"), dec("50"), dec("1"), "BTC", "USDT")
		assert.ErrorIs(t, err, errs.ErrDataIntegrity)
	})

	t.Run("fractional ratio yields a positive credit", func(t *testing.T) {
		credit, err := adjustedCreditAmount(dec("3"), dec("1"), dec("1"), "ETH", "USDT")
		require.NoError(t, err)
		assert.True(t, credit.GreaterThan(decimal.Zero))
		assert.True(t, credit.LessThan(dec("0.34")))
		assert.True(t, credit.GreaterThan(dec("0.33")))
	})
}
