package convert

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"bx-custody/internal/activity"
	"bx-custody/internal/balance"
	"bx-custody/internal/errs"
	"bx-custody/internal/model"
	"bx-custody/internal/money"
	"bx-custody/internal/rates"
	"bx-custody/internal/types"
)

// Service converts between currencies at oracle cross rates. Both legs land
// in one serializable transaction: the debit is guarded, and a failed credit
// rolls the debit back with it, so funds are never stranded mid-swap.
type Service struct {
	pool          *pgxpool.Pool
	balances      *balance.Store
	log           *activity.Log
	bus           *activity.Bus
	notifier      activity.TxNotifier
	oracle        rates.Oracle
	quoteCurrency string
}

func NewService(pool *pgxpool.Pool, balances *balance.Store, logStore *activity.Log, bus *activity.Bus, notifier activity.TxNotifier, oracle rates.Oracle, quoteCurrency string) *Service {
	return &Service{
		pool:          pool,
		balances:      balances,
		log:           logStore,
		bus:           bus,
		notifier:      notifier,
		oracle:        oracle,
		quoteCurrency: quoteCurrency,
	}
}

// Quote prices fromAmount of from in to, crossing through the quote
// currency. The rate is the cross rate actually applied, returned so the
// caller can pin it on the persisted row.
type Quote struct {
	FromAmount decimal.Decimal
	ToAmount   decimal.Decimal
	Rate       decimal.Decimal
}

func MakeQuote(ctx context.Context, oracle rates.Oracle, quoteCurrency, from, to string, fromAmount decimal.Decimal) (Quote, error) {
	if from == to {
		return Quote{}, errs.Validation("cannot convert a currency to itself")
	}
	amount := money.Normalize(fromAmount)
	if !amount.GreaterThan(decimal.Zero) {
		return Quote{}, errs.Validation("amount must be positive")
	}
	fromPrice, ok := priceOf(ctx, oracle, quoteCurrency, from)
	if !ok {
		return Quote{}, errs.ErrRateUnavailable
	}
	toPrice, ok := priceOf(ctx, oracle, quoteCurrency, to)
	if !ok {
		return Quote{}, errs.ErrRateUnavailable
	}
	// multiply before dividing so exact price ratios stay exact
	rate := fromPrice.Div(toPrice)
	toAmount := money.Normalize(amount.Mul(fromPrice).Div(toPrice))
	if !toAmount.GreaterThan(decimal.Zero) {
		return Quote{}, errs.Validation("amount is too small to convert")
	}
	return Quote{FromAmount: amount, ToAmount: toAmount, Rate: rate}, nil
}

func priceOf(ctx context.Context, oracle rates.Oracle, quoteCurrency, currency string) (decimal.Decimal, bool) {
	if currency == quoteCurrency {
		return decimal.NewFromInt(1), true
	}
	return oracle.GetPrice(ctx, currency)
}

// Convert executes a quote atomically. The source debit moves amount and
// real_balance together, the destination credit mirrors it, and provenance
// follows the funds: converted value stays "real" on the destination side.
func (s *Service) Convert(ctx context.Context, wallet, from, to string, fromAmount decimal.Decimal) (model.Conversion, error) {
	q, err := MakeQuote(ctx, s.oracle, s.quoteCurrency, from, to, fromAmount)
	if err != nil {
		return model.Conversion{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.Conversion{}, err
	}
	defer tx.Rollback(ctx)

	if err := s.balances.GuardedAdjust(ctx, tx, wallet, from, balance.Adjustment{
		Amount: q.FromAmount.Neg(),
		Real:   q.FromAmount.Neg(),
	}, nil); err != nil {
		return model.Conversion{}, err
	}
	if err := s.balances.EnsureBalance(ctx, tx, wallet, to); err != nil {
		return model.Conversion{}, err
	}
	if err := s.balances.GuardedAdjust(ctx, tx, wallet, to, balance.Adjustment{
		Amount: q.ToAmount,
		Real:   q.ToAmount,
	}, nil); err != nil {
		return model.Conversion{}, err
	}

	conv := model.Conversion{
		Wallet:       wallet,
		FromCurrency: from,
		ToCurrency:   to,
		FromAmount:   q.FromAmount,
		ToAmount:     q.ToAmount,
		Rate:         q.Rate,
		Fee:          decimal.Zero,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO conversions (wallet, from_currency, to_currency, from_amount, to_amount, rate, fee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text, created_at
	`, conv.Wallet, conv.FromCurrency, conv.ToCurrency, conv.FromAmount, conv.ToAmount, conv.Rate, conv.Fee,
		time.Now().UTC()).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return model.Conversion{}, err
	}
	if err := s.notifier.NotifyTx(ctx, tx, wallet, "conversion",
		"Conversion completed",
		fmt.Sprintf("Converted %s %s to %s %s.", q.FromAmount.String(), from, q.ToAmount.String(), to),
		"#conversions"); err != nil {
		return model.Conversion{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Conversion{}, err
	}

	s.log.AppendLogged(ctx, model.Activity{
		Actor:       wallet,
		Type:        types.ActivityConvert,
		Category:    types.ActivityCategoryConversion,
		Currency:    from,
		Amount:      q.FromAmount,
		Status:      types.ActivityStatusCompleted,
		ReferenceID: conv.ID,
		Metadata: map[string]any{
			"to_currency": to,
			"to_amount":   q.ToAmount.String(),
			"rate":        q.Rate.String(),
		},
	})
	s.bus.Publish(activity.BalanceTopic(wallet), "balance_changed", map[string]string{
		"currency": fmt.Sprintf("%s,%s", from, to),
	})
	s.bus.Publish(activity.TopicConversions, "conversion_created", conv)
	return conv, nil
}

func (s *Service) ListByWallet(ctx context.Context, wallet string, limit int) ([]model.Conversion, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, wallet, from_currency, to_currency, from_amount, to_amount, rate, fee, created_at
		FROM conversions
		WHERE wallet = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, wallet, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Conversion
	for rows.Next() {
		var c model.Conversion
		if err := rows.Scan(&c.ID, &c.Wallet, &c.FromCurrency, &c.ToCurrency, &c.FromAmount, &c.ToAmount, &c.Rate, &c.Fee, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
