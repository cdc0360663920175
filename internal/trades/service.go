package trades

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
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

// Service runs the trade lifecycle. Stakes are debited from the spendable
// amount at open; settlement credits back stake+pnl, so the net balance
// effect of a finished trade is exactly its pnl.
type Service struct {
	pool          *pgxpool.Pool
	balances      *balance.Store
	policies      *PolicyStore
	log           *activity.Log
	bus           *activity.Bus
	notifier      activity.TxNotifier
	oracle        rates.Oracle
	quoteCurrency string

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewService(pool *pgxpool.Pool, balances *balance.Store, policies *PolicyStore, logStore *activity.Log, bus *activity.Bus, notifier activity.TxNotifier, oracle rates.Oracle, quoteCurrency string) *Service {
	return &Service{
		pool:          pool,
		balances:      balances,
		policies:      policies,
		log:           logStore,
		bus:           bus,
		notifier:      notifier,
		oracle:        oracle,
		quoteCurrency: quoteCurrency,
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type OpenInput struct {
	Wallet   string
	Asset    string
	Side     types.TradeSide
	Stake    decimal.Decimal
	Duration time.Duration
}

// Open debits the stake and creates the active trade in one transaction.
// The entry price is fetched before the transaction so no oracle call sits
// inside the unit of work.
func (s *Service) Open(ctx context.Context, in OpenInput) (model.Trade, error) {
	if in.Wallet == "" || in.Asset == "" {
		return model.Trade{}, errs.Validation("wallet and asset are required")
	}
	if in.Side != types.TradeSideBuy && in.Side != types.TradeSideSell {
		return model.Trade{}, errs.Validation("side must be buy or sell")
	}
	stake := money.Normalize(in.Stake)
	if !stake.GreaterThan(decimal.Zero) {
		return model.Trade{}, errs.Validation("stake must be positive")
	}
	if in.Duration < time.Second {
		return model.Trade{}, errs.Validation("duration must be at least one second")
	}
	entry, ok := s.oracle.GetPrice(ctx, in.Asset)
	if !ok {
		return model.Trade{}, errs.ErrRateUnavailable
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.Trade{}, err
	}
	defer tx.Rollback(ctx)

	if err := s.balances.GuardedAdjust(ctx, tx, in.Wallet, s.quoteCurrency, balance.Adjustment{
		Amount: stake.Neg(),
	}, nil); err != nil {
		return model.Trade{}, err
	}

	now := time.Now().UTC()
	t := model.Trade{
		Wallet:     in.Wallet,
		Asset:      in.Asset,
		Side:       in.Side,
		Stake:      stake,
		EntryPrice: entry,
		Status:     types.TradeStatusActive,
		OpenedAt:   now,
		ExpiresAt:  now.Add(in.Duration),
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO trades (wallet, asset, side, stake, entry_price, status, opened_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, $7)
		RETURNING id::text
	`, t.Wallet, t.Asset, string(t.Side), t.Stake, t.EntryPrice, t.OpenedAt, t.ExpiresAt).Scan(&t.ID)
	if err != nil {
		return model.Trade{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Trade{}, err
	}

	s.log.AppendLogged(ctx, model.Activity{
		Actor:       t.Wallet,
		Type:        types.ActivityTradeOpen,
		Category:    types.ActivityCategoryTrade,
		Currency:    s.quoteCurrency,
		Amount:      t.Stake,
		Status:      types.ActivityStatusPending,
		ReferenceID: t.ID,
		Metadata: map[string]any{
			"asset":       t.Asset,
			"side":        string(t.Side),
			"entry_price": t.EntryPrice.String(),
			"expires_at":  t.ExpiresAt.Format(time.RFC3339),
		},
	})
	s.bus.Publish(activity.BalanceTopic(t.Wallet), "balance_changed", map[string]string{"currency": s.quoteCurrency})
	s.bus.Publish(activity.TopicTrades, "trade_opened", t)
	return t, nil
}

// Settle finishes one trade. The sweeper and admin force-settle both funnel
// into settleTx: whoever wins the active->finished flip performs the single
// balance mutation, the loser gets ErrAlreadyProcessed.
func (s *Service) Settle(ctx context.Context, tradeID string, result types.TradeResult, adminID string) (model.Trade, error) {
	if result != types.TradeResultWin && result != types.TradeResultLoss {
		return model.Trade{}, errs.Validation("result must be WIN or LOSS")
	}
	policy, err := s.policies.Get(ctx)
	if err != nil {
		return model.Trade{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.Trade{}, err
	}
	defer tx.Rollback(ctx)

	t, err := s.settleTx(ctx, tx, tradeID, result, adminID, policy)
	if err != nil {
		return model.Trade{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Trade{}, err
	}
	s.announceSettled(ctx, t, adminID)
	return t, nil
}

// settleTx performs every in-transaction step of one settlement: the
// status-guarded flip, the pnl write and the balance credit.
func (s *Service) settleTx(ctx context.Context, tx pgx.Tx, tradeID string, result types.TradeResult, adminID string, policy Policy) (model.Trade, error) {
	t, err := s.finish(ctx, tx, tradeID, result, adminID)
	if err != nil {
		return model.Trade{}, err
	}

	s.rndMu.Lock()
	pct := policy.appliedPct(result, s.rnd)
	s.rndMu.Unlock()
	out := settleOutcome(t, result, pct)

	if _, err := tx.Exec(ctx, `
		UPDATE trades SET exit_price = $2, pnl = $3 WHERE id = $1::uuid
	`, t.ID, out.ExitPrice, out.PnL); err != nil {
		return model.Trade{}, err
	}
	t.ExitPrice = &out.ExitPrice
	t.PnL = &out.PnL

	// return stake+pnl; provenance follows the result
	returned := t.Stake.Add(out.PnL)
	adj := balance.Adjustment{Amount: returned}
	if result == types.TradeResultWin {
		adj.Winnings = out.PnL
	} else {
		adj.Real = out.PnL
	}
	if err := s.balances.GuardedAdjust(ctx, tx, t.Wallet, s.quoteCurrency, adj, nil); err != nil {
		return model.Trade{}, err
	}
	if err := s.notifier.NotifyTx(ctx, tx, t.Wallet, "trade",
		fmt.Sprintf("Trade %s", result),
		fmt.Sprintf("Your %s trade on %s finished %s with pnl %s %s.", t.Side, t.Asset, result, out.PnL.String(), s.quoteCurrency),
		"#trades"); err != nil {
		return model.Trade{}, err
	}
	return t, nil
}

func (s *Service) announceSettled(ctx context.Context, t model.Trade, adminID string) {
	meta := map[string]any{
		"result":     string(t.Result),
		"pnl":        t.PnL.String(),
		"exit_price": t.ExitPrice.String(),
	}
	if adminID != "" {
		meta["admin_id"] = adminID
	}
	s.log.EvolveOrAppend(ctx, model.Activity{
		Actor:       t.Wallet,
		Type:        types.ActivityTradeSettled,
		Category:    types.ActivityCategoryTrade,
		Currency:    s.quoteCurrency,
		Amount:      t.Stake,
		Status:      types.ActivityStatusCompleted,
		ReferenceID: t.ID,
		Metadata:    meta,
	})
	s.bus.Publish(activity.BalanceTopic(t.Wallet), "balance_changed", map[string]string{"currency": s.quoteCurrency})
	s.bus.Publish(activity.TopicTrades, "trade_settled", t)
}

func (s *Service) finish(ctx context.Context, tx pgx.Tx, tradeID string, result types.TradeResult, adminID string) (model.Trade, error) {
	var t model.Trade
	var side, status string
	err := tx.QueryRow(ctx, `
		UPDATE trades
		SET status = 'finished', result = $2, admin_id = NULLIF($3, ''), closed_at = NOW()
		WHERE id = $1::uuid AND status = 'active'
		RETURNING id::text, wallet, asset, side, stake, entry_price, status, opened_at, expires_at, closed_at
	`, tradeID, string(result), adminID).Scan(
		&t.ID, &t.Wallet, &t.Asset, &side, &t.Stake, &t.EntryPrice, &status, &t.OpenedAt, &t.ExpiresAt, &t.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trades WHERE id = $1::uuid)`, tradeID).Scan(&exists); err != nil {
				return t, err
			}
			if !exists {
				return t, errs.ErrNotFound
			}
			return t, errs.ErrAlreadyProcessed
		}
		return t, err
	}
	t.Side = types.TradeSide(side)
	t.Status = types.TradeStatus(status)
	t.Result = result
	t.AdminID = adminID
	return t, nil
}

// RunSweeper settles expired trades until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	log.Printf("[trade-sweep] started, interval %s", every)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[trade-sweep] stopped")
			return
		case <-ticker.C:
			if err := s.sweepExpired(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[trade-sweep] sweep failed: %v", err)
			}
		}
	}
}

// SweepNow runs one sweep on demand, for operators that drive expiry from
// an external scheduler instead of the built-in ticker.
func (s *Service) SweepNow(ctx context.Context) error {
	return s.sweepExpired(ctx)
}

// sweepExpired settles each expired trade in its own transaction, so one
// persistently failing row is skipped and cannot block the rest of the
// batch. Concurrent sweepers and admin force-settles racing over the same
// trade are resolved by the status guard inside Settle: exactly one wins,
// the rest see ErrAlreadyProcessed and move on.
func (s *Service) sweepExpired(ctx context.Context) error {
	policy, err := s.policies.Get(ctx)
	if err != nil {
		return err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text FROM trades
		WHERE status = 'active' AND expires_at <= NOW()
		ORDER BY expires_at ASC
		LIMIT 100
	`)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	settled := 0
	for _, id := range ids {
		if _, err := s.Settle(ctx, id, s.draw(policy), ""); err != nil {
			if errors.Is(err, errs.ErrAlreadyProcessed) || errors.Is(err, errs.ErrNotFound) {
				continue
			}
			log.Printf("[trade-sweep] trade %s not settled: %v", id, err)
			continue
		}
		settled++
	}
	if settled > 0 {
		log.Printf("[trade-sweep] settled %d expired trades", settled)
	}
	return nil
}

func (s *Service) draw(policy Policy) types.TradeResult {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return policy.drawResult(s.rnd)
}

func (s *Service) Get(ctx context.Context, wallet, tradeID string) (model.Trade, error) {
	trades, err := s.list(ctx, `WHERE id = $1::uuid AND wallet = $2`, 1, tradeID, wallet)
	if err != nil {
		return model.Trade{}, err
	}
	if len(trades) == 0 {
		return model.Trade{}, errs.ErrNotFound
	}
	return trades[0], nil
}

func (s *Service) ListByWallet(ctx context.Context, wallet string, limit int) ([]model.Trade, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.list(ctx, `WHERE wallet = $1`, limit, wallet)
}

func (s *Service) ListActive(ctx context.Context, limit int) ([]model.Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.list(ctx, `WHERE status = 'active'`, limit)
}

func (s *Service) list(ctx context.Context, where string, limit int, args ...any) ([]model.Trade, error) {
	query := `
		SELECT id::text, wallet, asset, side, stake, entry_price, exit_price, pnl, status,
			COALESCE(result, ''), COALESCE(admin_id, ''), opened_at, expires_at, closed_at
		FROM trades ` + where + fmt.Sprintf(`
		ORDER BY opened_at DESC, id DESC
		LIMIT %d`, limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, status, result string
		if err := rows.Scan(&t.ID, &t.Wallet, &t.Asset, &side, &t.Stake, &t.EntryPrice, &t.ExitPrice, &t.PnL,
			&status, &result, &t.AdminID, &t.OpenedAt, &t.ExpiresAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		t.Side = types.TradeSide(side)
		t.Status = types.TradeStatus(status)
		t.Result = types.TradeResult(result)
		out = append(out, t)
	}
	return out, rows.Err()
}
