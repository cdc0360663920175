package trades

import (
	"context"
	"errors"
	"math/rand"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"bx-custody/internal/errs"
	"bx-custody/internal/model"
	"bx-custody/internal/money"
	"bx-custody/internal/types"
)

// Policy is the house settlement rule. Percentages are magnitudes in
// percent units (0.2 means 0.2%). The win band is wide and randomized, the
// loss band is a fixed sliver; the asymmetry is the product, keep it.
// WinProbability drives automatic settlement only; an admin force-settle
// names its result explicitly.
type Policy struct {
	WinMinPct      decimal.Decimal `json:"winMinPct"`
	WinMaxPct      decimal.Decimal `json:"winMaxPct"`
	LossPct        decimal.Decimal `json:"lossPct"`
	WinProbability decimal.Decimal `json:"winProbability"`
}

func (p Policy) validate() error {
	if p.WinMinPct.IsNegative() || p.LossPct.IsNegative() {
		return errs.Validation("percentages must not be negative")
	}
	if p.WinMaxPct.LessThan(p.WinMinPct) {
		return errs.Validation("winMaxPct must be >= winMinPct")
	}
	if p.WinProbability.IsNegative() || p.WinProbability.GreaterThan(decimal.NewFromInt(1)) {
		return errs.Validation("winProbability must be between 0 and 1")
	}
	return nil
}

// drawResult decides an automatic outcome with the policy's win probability.
func (p Policy) drawResult(rnd *rand.Rand) types.TradeResult {
	if decimal.NewFromFloat(rnd.Float64()).LessThan(p.WinProbability) {
		return types.TradeResultWin
	}
	return types.TradeResultLoss
}

// appliedPct picks the settlement percentage for a result. Wins draw
// uniformly from [WinMinPct, WinMaxPct]; losses always use LossPct.
func (p Policy) appliedPct(result types.TradeResult, rnd *rand.Rand) decimal.Decimal {
	if result == types.TradeResultLoss {
		return p.LossPct
	}
	span := p.WinMaxPct.Sub(p.WinMinPct)
	if span.IsZero() {
		return p.WinMinPct
	}
	f := rnd.Float64()
	return p.WinMinPct.Add(span.Mul(decimal.NewFromFloat(f)))
}

// Outcome is the money-moving result of settling one trade. PnL is
// authoritative; the exit price is derived from the same applied percentage
// so the displayed price always agrees with the money that moved.
type Outcome struct {
	Pct       decimal.Decimal
	PnL       decimal.Decimal
	ExitPrice decimal.Decimal
}

// settleOutcome computes pnl = ±stake × pct/100 and moves the exit price by
// the same fraction in the direction the result implies for the trade side.
func settleOutcome(t model.Trade, result types.TradeResult, pct decimal.Decimal) Outcome {
	hundred := decimal.NewFromInt(100)
	fraction := pct.Div(hundred)
	pnl := money.Normalize(t.Stake.Mul(fraction))

	// price moves with the position on a win, against it on a loss
	move := t.EntryPrice.Mul(fraction)
	favorable := t.Side == types.TradeSideBuy
	if result == types.TradeResultLoss {
		pnl = pnl.Neg()
		favorable = !favorable
	}
	exit := t.EntryPrice.Sub(move)
	if favorable {
		exit = t.EntryPrice.Add(move)
	}
	if exit.IsNegative() {
		exit = decimal.Zero
	}
	return Outcome{Pct: pct, PnL: pnl, ExitPrice: money.Normalize(exit)}
}

// PolicyStore keeps the single global policy row.
type PolicyStore struct {
	pool *pgxpool.Pool
}

func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

func (ps *PolicyStore) Get(ctx context.Context) (Policy, error) {
	var p Policy
	err := ps.pool.QueryRow(ctx, `
		SELECT win_min_pct, win_max_pct, loss_pct, win_probability FROM trade_policy WHERE id = 1
	`).Scan(&p.WinMinPct, &p.WinMaxPct, &p.LossPct, &p.WinProbability)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, errs.ErrNotFound
		}
		return Policy{}, err
	}
	return p, nil
}

func (ps *PolicyStore) Update(ctx context.Context, p Policy) error {
	if err := p.validate(); err != nil {
		return err
	}
	tag, err := ps.pool.Exec(ctx, `
		UPDATE trade_policy
		SET win_min_pct = $1, win_max_pct = $2, loss_pct = $3, win_probability = $4, updated_at = NOW()
		WHERE id = 1
	`, p.WinMinPct, p.WinMaxPct, p.LossPct, p.WinProbability)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
