package trades

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bx-custody/internal/balance"
	"bx-custody/internal/model"
	"bx-custody/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSettleOutcome(t *testing.T) {
	trade := model.Trade{
		Side:       types.TradeSideBuy,
		Stake:      dec("10"),
		EntryPrice: dec("60000"),
	}

	t.Run("loss of 0.2 percent on a 10 stake is minus 0.02", func(t *testing.T) {
		out := settleOutcome(trade, types.TradeResultLoss, dec("0.2"))
		assert.True(t, out.PnL.Equal(dec("-0.02")), "got %s", out.PnL)
		assert.True(t, out.ExitPrice.Equal(dec("59880")), "got %s", out.ExitPrice)
	})

	t.Run("win credits stake times percentage", func(t *testing.T) {
		out := settleOutcome(trade, types.TradeResultWin, dec("80"))
		assert.True(t, out.PnL.Equal(dec("8")), "got %s", out.PnL)
		assert.True(t, out.ExitPrice.Equal(dec("108000")), "got %s", out.ExitPrice)
	})

	t.Run("sell side mirrors the price move", func(t *testing.T) {
		short := trade
		short.Side = types.TradeSideSell
		win := settleOutcome(short, types.TradeResultWin, dec("80"))
		assert.True(t, win.ExitPrice.LessThan(short.EntryPrice))
		assert.True(t, win.PnL.Equal(dec("8")))

		loss := settleOutcome(short, types.TradeResultLoss, dec("0.2"))
		assert.True(t, loss.ExitPrice.GreaterThan(short.EntryPrice))
		assert.True(t, loss.PnL.Equal(dec("-0.02")))
	})

	t.Run("exit price never goes negative", func(t *testing.T) {
		cheap := model.Trade{Side: types.TradeSideBuy, Stake: dec("1"), EntryPrice: dec("1")}
		out := settleOutcome(cheap, types.TradeResultLoss, dec("150"))
		assert.False(t, out.ExitPrice.IsNegative())
	})
}

func TestAppliedPct(t *testing.T) {
	p := Policy{WinMinPct: dec("70"), WinMaxPct: dec("90"), LossPct: dec("0.2")}
	rnd := rand.New(rand.NewSource(1))

	t.Run("loss is the fixed sliver", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			assert.True(t, p.appliedPct(types.TradeResultLoss, rnd).Equal(dec("0.2")))
		}
	})

	t.Run("win stays inside the band", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			pct := p.appliedPct(types.TradeResultWin, rnd)
			assert.True(t, pct.GreaterThanOrEqual(p.WinMinPct), "got %s", pct)
			assert.True(t, pct.LessThanOrEqual(p.WinMaxPct), "got %s", pct)
		}
	})

	t.Run("degenerate band is deterministic", func(t *testing.T) {
		flat := Policy{WinMinPct: dec("75"), WinMaxPct: dec("75"), LossPct: dec("0.2")}
		assert.True(t, flat.appliedPct(types.TradeResultWin, rnd).Equal(dec("75")))
	})
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, Policy{WinMinPct: dec("70"), WinMaxPct: dec("90"), LossPct: dec("0.2")}.validate())
	assert.Error(t, Policy{WinMinPct: dec("90"), WinMaxPct: dec("70"), LossPct: dec("0.2")}.validate())
	assert.Error(t, Policy{WinMinPct: dec("-1"), WinMaxPct: dec("1"), LossPct: dec("0.2")}.validate())
	assert.NoError(t, Policy{WinMaxPct: dec("1"), WinProbability: dec("0.35")}.validate())
	assert.Error(t, Policy{WinMaxPct: dec("1"), WinProbability: dec("1.01")}.validate())
	assert.Error(t, Policy{WinMaxPct: dec("1"), WinProbability: dec("-0.01")}.validate())
}

func TestDrawResult(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	t.Run("probability one always wins", func(t *testing.T) {
		p := Policy{WinProbability: dec("1")}
		for i := 0; i < 100; i++ {
			assert.Equal(t, types.TradeResultWin, p.drawResult(rnd))
		}
	})

	t.Run("probability zero always loses", func(t *testing.T) {
		p := Policy{WinProbability: dec("0")}
		for i := 0; i < 100; i++ {
			assert.Equal(t, types.TradeResultLoss, p.drawResult(rnd))
		}
	})

	t.Run("a skewed coin lands on both sides eventually", func(t *testing.T) {
		p := Policy{WinProbability: dec("0.3")}
		wins, losses := 0, 0
		for i := 0; i < 1000; i++ {
			if p.drawResult(rnd) == types.TradeResultWin {
				wins++
			} else {
				losses++
			}
		}
		assert.Greater(t, wins, 0)
		assert.Greater(t, losses, wins)
	})
}

// Settlement net effect through the ledger arithmetic: open debits the
// stake, settle credits stake+pnl, so the balance moves by exactly pnl.
func TestSettlementBalanceEffect(t *testing.T) {
	start := model.Balance{Amount: dec("100"), RealBalance: dec("100")}
	stake := dec("10")

	open, err := balance.Apply(start, balance.Adjustment{Amount: stake.Neg()}, nil)
	require.NoError(t, err)
	assert.True(t, open.Amount.Equal(dec("90")))

	t.Run("loss", func(t *testing.T) {
		out := settleOutcome(model.Trade{Side: types.TradeSideBuy, Stake: stake, EntryPrice: dec("100")}, types.TradeResultLoss, dec("0.2"))
		after, err := balance.Apply(open, balance.Adjustment{
			Amount: stake.Add(out.PnL),
			Real:   out.PnL,
		}, nil)
		require.NoError(t, err)
		assert.True(t, after.Amount.Equal(dec("99.98")), "got %s", after.Amount)
		assert.True(t, after.RealBalance.Equal(dec("99.98")), "got %s", after.RealBalance)
		assert.True(t, after.RealWinnings.IsZero())
	})

	t.Run("win", func(t *testing.T) {
		out := settleOutcome(model.Trade{Side: types.TradeSideBuy, Stake: stake, EntryPrice: dec("100")}, types.TradeResultWin, dec("80"))
		after, err := balance.Apply(open, balance.Adjustment{
			Amount:   stake.Add(out.PnL),
			Winnings: out.PnL,
		}, nil)
		require.NoError(t, err)
		assert.True(t, after.Amount.Equal(dec("108")), "got %s", after.Amount)
		assert.True(t, after.RealBalance.Equal(dec("100")))
		assert.True(t, after.RealWinnings.Equal(dec("8")))
	})
}
