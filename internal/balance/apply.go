package balance

import (
	"github.com/shopspring/decimal"

	"bx-custody/internal/errs"
	"bx-custody/internal/model"
	"bx-custody/internal/money"
)

// Adjustment is a signed delta over the four sub-amounts of one balance row.
type Adjustment struct {
	Amount   decimal.Decimal
	Real     decimal.Decimal
	Winnings decimal.Decimal
	Frozen   decimal.Decimal
}

// Apply is the single source of truth for what a guarded adjustment does to
// a balance row. The SQL in Store.GuardedAdjust expresses exactly these
// semantics; tests exercise them through an in-memory ledger.
//
// Rules: the optional guard requires amount >= guard before anything moves;
// amount may never go negative; real/winnings are provenance tags clamped
// at zero on decrement; frozen decrements are clamped so corrective admin
// edits cannot push it negative.
func Apply(b model.Balance, adj Adjustment, guard *decimal.Decimal) (model.Balance, error) {
	if guard != nil && b.Amount.LessThan(money.Normalize(*guard)) {
		return b, errs.ErrInsufficientFunds
	}
	amount := money.Normalize(b.Amount.Add(adj.Amount))
	if amount.IsNegative() {
		return b, errs.ErrInsufficientFunds
	}
	b.Amount = amount
	b.RealBalance = clampZero(b.RealBalance.Add(adj.Real))
	b.RealWinnings = clampZero(b.RealWinnings.Add(adj.Winnings))
	b.FrozenBalance = clampZero(b.FrozenBalance.Add(adj.Frozen))
	return b, nil
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	d = money.Normalize(d)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
