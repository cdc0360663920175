package withdrawals

import (
	"context"
	"errors"
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

// Service is the withdrawal state machine. Funds leave the spendable amount
// at request time: the full requested+fee sum moves into frozen_balance, so
// nothing else can spend it while the request sits in the admin queue.
// Approve burns the hold, reject returns it.
type Service struct {
	pool          *pgxpool.Pool
	balances      *balance.Store
	log           *activity.Log
	bus           *activity.Bus
	notifier      activity.TxNotifier
	oracle        rates.Oracle
	quoteCurrency string
	fee           decimal.Decimal
}

func NewService(pool *pgxpool.Pool, balances *balance.Store, logStore *activity.Log, bus *activity.Bus, notifier activity.TxNotifier, oracle rates.Oracle, quoteCurrency string, fee decimal.Decimal) *Service {
	return &Service{
		pool:          pool,
		balances:      balances,
		log:           logStore,
		bus:           bus,
		notifier:      notifier,
		oracle:        oracle,
		quoteCurrency: quoteCurrency,
		fee:           fee,
	}
}

type RequestInput struct {
	Wallet   string
	Currency string
	Amount   decimal.Decimal
	Address  string
}

// Request freezes requested+fee in one guarded write and records the pending
// row in the same transaction. The oracle is consulted before the transaction
// so the quote-currency value and the rate are pinned on the row the admin
// later reviews, the same way deposits pin theirs. The guard is the frozen
// move itself: if the spendable amount cannot cover the total, the
// conditional update moves nothing and the request is refused.
func (s *Service) Request(ctx context.Context, in RequestInput) (model.Withdrawal, error) {
	if in.Wallet == "" || in.Currency == "" {
		return model.Withdrawal{}, errs.Validation("wallet and currency are required")
	}
	if in.Address == "" {
		return model.Withdrawal{}, errs.Validation("destination address is required")
	}
	amount := money.Normalize(in.Amount)
	if !amount.GreaterThan(decimal.Zero) {
		return model.Withdrawal{}, errs.Validation("amount must be positive")
	}
	fee := money.Normalize(s.fee)
	total := amount.Add(fee)
	quoteAmount, rate, err := quoteLeg(ctx, s.oracle, s.quoteCurrency, in.Currency, amount)
	if err != nil {
		return model.Withdrawal{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.Withdrawal{}, err
	}
	defer tx.Rollback(ctx)

	if err := s.balances.GuardedAdjust(ctx, tx, in.Wallet, in.Currency, balance.Adjustment{
		Amount: total.Neg(),
		Real:   total.Neg(),
		Frozen: total,
	}, nil); err != nil {
		return model.Withdrawal{}, err
	}

	wd := model.Withdrawal{
		Wallet:      in.Wallet,
		Currency:    in.Currency,
		Amount:      amount,
		Fee:         fee,
		QuoteAmount: quoteAmount,
		Rate:        rate,
		Address:     in.Address,
		Status:      types.WithdrawalStatusPending,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO withdrawals (wallet, currency, amount, fee, quote_amount, rate, address, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
		RETURNING id::text, created_at
	`, wd.Wallet, wd.Currency, wd.Amount, wd.Fee, wd.QuoteAmount, wd.Rate, wd.Address, time.Now().UTC()).Scan(&wd.ID, &wd.CreatedAt)
	if err != nil {
		return model.Withdrawal{}, err
	}
	if err := s.notifier.NotifyTx(ctx, tx, wd.Wallet, "withdrawal",
		"Withdrawal requested",
		fmt.Sprintf("Your withdrawal of %s %s is pending review.", wd.Amount.String(), wd.Currency),
		"#withdrawals"); err != nil {
		return model.Withdrawal{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Withdrawal{}, err
	}

	s.log.AppendLogged(ctx, model.Activity{
		Actor:       wd.Wallet,
		Type:        types.ActivityWithdrawRequest,
		Category:    types.ActivityCategoryWithdrawal,
		Currency:    wd.Currency,
		Amount:      wd.Amount,
		QuoteAmount: wd.QuoteAmount,
		Status:      types.ActivityStatusPending,
		ReferenceID: wd.ID,
		Metadata:    map[string]any{"fee": wd.Fee.String(), "rate": wd.Rate.String(), "address": wd.Address},
	})
	s.bus.Publish(activity.BalanceTopic(wd.Wallet), "balance_changed", map[string]string{"currency": wd.Currency})
	s.bus.Publish(activity.TopicWithdrawals, "withdrawal_created", wd)
	return wd, nil
}

// Approve burns the hold: frozen_balance drops by requested+fee and nothing
// is returned to the spendable amount. The amount guard is satisfied by
// construction since the hold was taken at request time.
func (s *Service) Approve(ctx context.Context, adminID, withdrawalID, txRef string) (model.Withdrawal, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.Withdrawal{}, err
	}
	defer tx.Rollback(ctx)

	wd, err := s.transition(ctx, tx, withdrawalID, types.WithdrawalStatusApproved, adminID, txRef)
	if err != nil {
		return model.Withdrawal{}, err
	}
	total := wd.Amount.Add(wd.Fee)
	if err := s.balances.GuardedAdjust(ctx, tx, wd.Wallet, wd.Currency, balance.Adjustment{
		Frozen: total.Neg(),
	}, nil); err != nil {
		return model.Withdrawal{}, err
	}
	if err := s.notifier.NotifyTx(ctx, tx, wd.Wallet, "withdrawal",
		"Withdrawal approved",
		fmt.Sprintf("Your withdrawal of %s %s was sent.", wd.Amount.String(), wd.Currency),
		"#withdrawals"); err != nil {
		return model.Withdrawal{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Withdrawal{}, err
	}

	s.log.EvolveOrAppend(ctx, approvedAudit(wd, adminID, txRef))
	s.bus.Publish(activity.BalanceTopic(wd.Wallet), "balance_changed", map[string]string{"currency": wd.Currency})
	s.bus.Publish(activity.TopicWithdrawals, "withdrawal_updated", wd)
	return wd, nil
}

// approvedAudit is the terminal audit form of an approved withdrawal. The
// fee leg rides in the metadata because the evolve path merges metadata but
// never rewrites the amount of the original request row; the total is what
// actually left the wallet.
func approvedAudit(wd model.Withdrawal, adminID, txRef string) model.Activity {
	total := wd.Amount.Add(wd.Fee)
	return model.Activity{
		Actor:       wd.Wallet,
		Type:        types.ActivityWithdrawApproved,
		Category:    types.ActivityCategoryWithdrawal,
		Currency:    wd.Currency,
		Amount:      wd.Amount,
		QuoteAmount: wd.QuoteAmount,
		Status:      types.ActivityStatusCompleted,
		ReferenceID: wd.ID,
		Metadata: map[string]any{
			"admin_id":      adminID,
			"tx_ref":        txRef,
			"fee":           wd.Fee.String(),
			"total_debited": total.String(),
		},
	}
}

// Reject returns the exact frozen sum to the spendable amount. The refund
// mirrors the freeze leg for leg, so a request+reject round trip leaves the
// row where it started.
func (s *Service) Reject(ctx context.Context, adminID, withdrawalID, notes string) (model.Withdrawal, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.Withdrawal{}, err
	}
	defer tx.Rollback(ctx)

	wd, err := s.transition(ctx, tx, withdrawalID, types.WithdrawalStatusRejected, adminID, notes)
	if err != nil {
		return model.Withdrawal{}, err
	}
	total := wd.Amount.Add(wd.Fee)
	if err := s.balances.GuardedAdjust(ctx, tx, wd.Wallet, wd.Currency, balance.Adjustment{
		Amount: total,
		Real:   total,
		Frozen: total.Neg(),
	}, nil); err != nil {
		return model.Withdrawal{}, err
	}
	if err := s.notifier.NotifyTx(ctx, tx, wd.Wallet, "withdrawal",
		"Withdrawal rejected",
		fmt.Sprintf("Your withdrawal of %s %s was rejected and refunded.", wd.Amount.String(), wd.Currency),
		"#withdrawals"); err != nil {
		return model.Withdrawal{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Withdrawal{}, err
	}

	s.log.EvolveOrAppend(ctx, model.Activity{
		Actor:       wd.Wallet,
		Type:        types.ActivityWithdrawRejected,
		Category:    types.ActivityCategoryWithdrawal,
		Currency:    wd.Currency,
		Amount:      wd.Amount,
		QuoteAmount: wd.QuoteAmount,
		Status:      types.ActivityStatusRejected,
		ReferenceID: wd.ID,
		Metadata:    map[string]any{"admin_id": adminID, "notes": notes},
	})
	s.bus.Publish(activity.BalanceTopic(wd.Wallet), "balance_changed", map[string]string{"currency": wd.Currency})
	s.bus.Publish(activity.TopicWithdrawals, "withdrawal_updated", wd)
	return wd, nil
}

func (s *Service) transition(ctx context.Context, tx pgx.Tx, withdrawalID string, target types.WithdrawalStatus, adminID, notes string) (model.Withdrawal, error) {
	var wd model.Withdrawal
	var status string
	err := tx.QueryRow(ctx, `
		UPDATE withdrawals
		SET status = $2, admin_id = $3, notes = $4, processed_at = NOW()
		WHERE id = $1::uuid AND status = 'pending'
		RETURNING id::text, wallet, currency, amount, fee, quote_amount, rate, address, status, created_at, processed_at
	`, withdrawalID, string(target), adminID, notes).Scan(
		&wd.ID, &wd.Wallet, &wd.Currency, &wd.Amount, &wd.Fee, &wd.QuoteAmount, &wd.Rate, &wd.Address, &status, &wd.CreatedAt, &wd.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM withdrawals WHERE id = $1::uuid)`, withdrawalID).Scan(&exists); err != nil {
				return wd, err
			}
			if !exists {
				return wd, errs.ErrNotFound
			}
			return wd, errs.ErrAlreadyProcessed
		}
		return wd, err
	}
	wd.Status = types.WithdrawalStatus(status)
	wd.AdminID = adminID
	wd.Notes = notes
	return wd, nil
}

func (s *Service) ListByWallet(ctx context.Context, wallet string, limit int) ([]model.Withdrawal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, wallet, currency, amount, fee, quote_amount, rate, address, status, COALESCE(admin_id, ''), COALESCE(notes, ''), created_at, processed_at
		FROM withdrawals
		WHERE wallet = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, wallet, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWithdrawals(rows)
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]model.Withdrawal, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, wallet, currency, amount, fee, quote_amount, rate, address, status, COALESCE(admin_id, ''), COALESCE(notes, ''), created_at, processed_at
		FROM withdrawals
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWithdrawals(rows)
}

// quoteLeg values a crypto amount in the quote currency at request time. The
// quote currency itself is its own unit; any other currency fails closed
// when the oracle has no usable price.
func quoteLeg(ctx context.Context, oracle rates.Oracle, quoteCurrency, currency string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	rate := decimal.NewFromInt(1)
	if currency != quoteCurrency {
		var ok bool
		rate, ok = oracle.GetPrice(ctx, currency)
		if !ok {
			return decimal.Decimal{}, decimal.Decimal{}, errs.ErrRateUnavailable
		}
	}
	return money.Normalize(amount.Mul(rate)), rate, nil
}

func scanWithdrawals(rows pgx.Rows) ([]model.Withdrawal, error) {
	var out []model.Withdrawal
	for rows.Next() {
		var wd model.Withdrawal
		var status string
		if err := rows.Scan(&wd.ID, &wd.Wallet, &wd.Currency, &wd.Amount, &wd.Fee, &wd.QuoteAmount, &wd.Rate, &wd.Address, &status,
			&wd.AdminID, &wd.Notes, &wd.CreatedAt, &wd.ProcessedAt); err != nil {
			return nil, err
		}
		wd.Status = types.WithdrawalStatus(status)
		out = append(out, wd)
	}
	return out, rows.Err()
}
