package withdrawals

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bx-custody/internal/balance"
	"bx-custody/internal/errs"
	"bx-custody/internal/model"
	"bx-custody/internal/rates"
	"bx-custody/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// The freeze, burn and refund legs below are the same adjustments the
// service sends through the guarded write. Driving them through Apply pins
// the ledger arithmetic without a database.

func freezeLeg(total decimal.Decimal) balance.Adjustment {
	return balance.Adjustment{Amount: total.Neg(), Real: total.Neg(), Frozen: total}
}

func refundLeg(total decimal.Decimal) balance.Adjustment {
	return balance.Adjustment{Amount: total, Real: total, Frozen: total.Neg()}
}

func burnLeg(total decimal.Decimal) balance.Adjustment {
	return balance.Adjustment{Frozen: total.Neg()}
}

func TestWithdrawalLegs(t *testing.T) {
	start := model.Balance{
		Amount:      dec("100"),
		RealBalance: dec("60"),
	}
	total := dec("25.5") // 25 requested + 0.5 fee

	t.Run("request then reject is a round trip", func(t *testing.T) {
		frozen, err := balance.Apply(start, freezeLeg(total), nil)
		require.NoError(t, err)
		assert.True(t, frozen.Amount.Equal(dec("74.5")))
		assert.True(t, frozen.RealBalance.Equal(dec("34.5")))
		assert.True(t, frozen.FrozenBalance.Equal(total))

		back, err := balance.Apply(frozen, refundLeg(total), nil)
		require.NoError(t, err)
		assert.True(t, back.Amount.Equal(start.Amount))
		assert.True(t, back.RealBalance.Equal(start.RealBalance))
		assert.True(t, back.FrozenBalance.IsZero())
	})

	t.Run("request then approve burns the hold", func(t *testing.T) {
		frozen, err := balance.Apply(start, freezeLeg(total), nil)
		require.NoError(t, err)

		done, err := balance.Apply(frozen, burnLeg(total), nil)
		require.NoError(t, err)
		assert.True(t, done.Amount.Equal(dec("74.5")))
		assert.True(t, done.FrozenBalance.IsZero())
	})

	t.Run("freeze beyond spendable amount is refused", func(t *testing.T) {
		_, err := balance.Apply(start, freezeLeg(dec("100.01")), nil)
		assert.ErrorIs(t, err, errs.ErrInsufficientFunds)
	})

	t.Run("real balance clamps at zero when provenance is thin", func(t *testing.T) {
		thin := model.Balance{Amount: dec("100"), RealBalance: dec("10")}
		frozen, err := balance.Apply(thin, freezeLeg(dec("50")), nil)
		require.NoError(t, err)
		assert.True(t, frozen.RealBalance.IsZero())
		assert.True(t, frozen.Amount.Equal(dec("50")))
	})
}

func TestQuoteLeg(t *testing.T) {
	ctx := context.Background()
	oracle := rates.NewStaticOracle(map[string]decimal.Decimal{"BTC": dec("60000")})

	t.Run("pins rate and quote value at request time", func(t *testing.T) {
		quote, rate, err := quoteLeg(ctx, oracle, "USDT", "BTC", dec("0.5"))
		require.NoError(t, err)
		assert.True(t, rate.Equal(dec("60000")))
		assert.True(t, quote.Equal(dec("30000")))
	})

	t.Run("quote currency is its own unit", func(t *testing.T) {
		quote, rate, err := quoteLeg(ctx, oracle, "USDT", "USDT", dec("125.5"))
		require.NoError(t, err)
		assert.True(t, rate.Equal(dec("1")))
		assert.True(t, quote.Equal(dec("125.5")))
	})

	t.Run("missing price fails closed", func(t *testing.T) {
		_, _, err := quoteLeg(ctx, oracle, "USDT", "DOGE", dec("10"))
		assert.ErrorIs(t, err, errs.ErrRateUnavailable)
	})
}

func TestApprovedAuditRecordsFullOutflow(t *testing.T) {
	wd := model.Withdrawal{
		ID:          "wd-1",
		Wallet:      "w1",
		Currency:    "BTC",
		Amount:      dec("25"),
		Fee:         dec("0.5"),
		QuoteAmount: dec("1500000"),
		Rate:        dec("60000"),
	}
	act := approvedAudit(wd, "admin-1", "0xdeadbeef")

	assert.Equal(t, types.ActivityWithdrawApproved, act.Type)
	assert.True(t, act.Amount.Equal(dec("25")))
	assert.True(t, act.QuoteAmount.Equal(dec("1500000")))
	assert.Equal(t, "0.5", act.Metadata["fee"])
	assert.Equal(t, "25.5", act.Metadata["total_debited"])
	assert.Equal(t, "admin-1", act.Metadata["admin_id"])
	assert.Equal(t, "0xdeadbeef", act.Metadata["tx_ref"])
}
