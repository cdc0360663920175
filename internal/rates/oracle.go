// Package rates is the price-feed boundary. The engine only ever asks for a
// currency's price in the quote currency and treats anything missing or
// non-positive as unavailable; it never holds a lock while asking.
package rates

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Price struct {
	Currency string          `json:"currency"`
	Price    decimal.Decimal `json:"price"`
	OK       bool            `json:"ok"`
}

type Oracle interface {
	// GetPrice returns the currency's price in the quote currency and
	// ok=false when no usable price exists. Implementations must return
	// ok=false rather than a stale or zero price.
	GetPrice(ctx context.Context, currency string) (decimal.Decimal, bool)
	GetPrices(ctx context.Context, currencies []string) []Price
}

// StaticOracle serves a fixed price table. Used in tests and local runs.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStaticOracle(prices map[string]decimal.Decimal) *StaticOracle {
	table := make(map[string]decimal.Decimal, len(prices))
	for k, v := range prices {
		table[strings.ToUpper(k)] = v
	}
	return &StaticOracle{prices: table}
}

func (o *StaticOracle) Set(currency string, price decimal.Decimal) {
	o.mu.Lock()
	o.prices[strings.ToUpper(currency)] = price
	o.mu.Unlock()
}

func (o *StaticOracle) GetPrice(ctx context.Context, currency string) (decimal.Decimal, bool) {
	o.mu.RLock()
	p, ok := o.prices[strings.ToUpper(currency)]
	o.mu.RUnlock()
	if !ok || p.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return p, true
}

func (o *StaticOracle) GetPrices(ctx context.Context, currencies []string) []Price {
	out := make([]Price, 0, len(currencies))
	for _, c := range currencies {
		p, ok := o.GetPrice(ctx, c)
		out = append(out, Price{Currency: strings.ToUpper(c), Price: p, OK: ok})
	}
	return out
}

// StoreOracle reads admin-maintained prices from the currency_prices table.
type StoreOracle struct {
	pool *pgxpool.Pool
}

func NewStoreOracle(pool *pgxpool.Pool) *StoreOracle {
	return &StoreOracle{pool: pool}
}

func (o *StoreOracle) GetPrice(ctx context.Context, currency string) (decimal.Decimal, bool) {
	var p decimal.Decimal
	err := o.pool.QueryRow(ctx, `
		SELECT price
		FROM currency_prices
		WHERE currency = $1
	`, strings.ToUpper(strings.TrimSpace(currency))).Scan(&p)
	if err != nil || p.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return p, true
}

func (o *StoreOracle) GetPrices(ctx context.Context, currencies []string) []Price {
	out := make([]Price, 0, len(currencies))
	for _, c := range currencies {
		p, ok := o.GetPrice(ctx, c)
		out = append(out, Price{Currency: strings.ToUpper(c), Price: p, OK: ok})
	}
	return out
}

// SetPrice upserts an admin-supplied price. Non-positive prices are stored
// as-is and simply render the currency unavailable to the engine.
func (o *StoreOracle) SetPrice(ctx context.Context, currency string, price decimal.Decimal) error {
	_, err := o.pool.Exec(ctx, `
		INSERT INTO currency_prices (currency, price, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (currency) DO UPDATE
		SET price = EXCLUDED.price, updated_at = NOW()
	`, strings.ToUpper(strings.TrimSpace(currency)), price)
	return err
}
