package deposits

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

// Service is the deposit state machine: pending -> approved|rejected|adjusted,
// exactly one terminal transition per deposit. The credit happens only on the
// request that wins the status-guarded flip.
type Service struct {
	pool          *pgxpool.Pool
	balances      *balance.Store
	log           *activity.Log
	bus           *activity.Bus
	notifier      activity.TxNotifier
	oracle        rates.Oracle
	quoteCurrency string
	addressHint   string
}

func NewService(pool *pgxpool.Pool, balances *balance.Store, logStore *activity.Log, bus *activity.Bus, notifier activity.TxNotifier, oracle rates.Oracle, quoteCurrency, addressHint string) *Service {
	return &Service{
		pool:          pool,
		balances:      balances,
		log:           logStore,
		bus:           bus,
		notifier:      notifier,
		oracle:        oracle,
		quoteCurrency: quoteCurrency,
		addressHint:   addressHint,
	}
}

type RequestInput struct {
	Wallet       string
	Currency     string
	CryptoAmount decimal.Decimal
	ProofRef     string
}

// Request records the user's claim that they sent crypto off-platform. The
// oracle is consulted before anything is written so the rate is pinned on
// the row the admin later reviews.
func (s *Service) Request(ctx context.Context, in RequestInput) (model.Deposit, error) {
	if in.Wallet == "" || in.Currency == "" {
		return model.Deposit{}, errs.Validation("wallet and currency are required")
	}
	amount := money.Normalize(in.CryptoAmount)
	if !amount.GreaterThan(decimal.Zero) {
		return model.Deposit{}, errs.Validation("amount must be positive")
	}
	rate, ok := s.priceOf(ctx, in.Currency)
	if !ok {
		return model.Deposit{}, errs.ErrRateUnavailable
	}
	quoteAmount := money.Normalize(amount.Mul(rate))

	d := model.Deposit{
		Wallet:       in.Wallet,
		Currency:     in.Currency,
		CryptoAmount: amount,
		QuoteAmount:  quoteAmount,
		Rate:         rate,
		Address:      s.addressHint,
		ProofRef:     in.ProofRef,
		Status:       types.DepositStatusPending,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO deposits (wallet, currency, crypto_amount, quote_amount, rate, address, proof_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
		RETURNING id::text, created_at
	`, d.Wallet, d.Currency, d.CryptoAmount, d.QuoteAmount, d.Rate, d.Address, d.ProofRef, time.Now().UTC()).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return model.Deposit{}, err
	}

	s.log.AppendLogged(ctx, model.Activity{
		Actor:       d.Wallet,
		Type:        types.ActivityDepositRequest,
		Category:    types.ActivityCategoryDeposit,
		Currency:    d.Currency,
		Amount:      d.CryptoAmount,
		QuoteAmount: d.QuoteAmount,
		Status:      types.ActivityStatusPending,
		ReferenceID: d.ID,
		Metadata:    map[string]any{"rate": d.Rate.String(), "address": d.Address},
	})
	s.bus.Publish(activity.TopicDeposits, "deposit_created", d)
	return d, nil
}

// Approve flips pending->approved and credits amount+real_balance by the
// deposit's crypto amount, all in one serializable transaction. Two
// concurrent approvals resolve to exactly one credit: the loser's guarded
// update affects zero rows and returns ErrAlreadyProcessed.
func (s *Service) Approve(ctx context.Context, adminID, depositID, notes string) (model.Deposit, error) {
	return s.finalize(ctx, adminID, depositID, notes, nil, "")
}

// Reject flips pending->rejected. The deposit was never credited, so there
// is no balance effect.
func (s *Service) Reject(ctx context.Context, adminID, depositID, notes string) (model.Deposit, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.Deposit{}, err
	}
	defer tx.Rollback(ctx)

	d, err := s.transition(ctx, tx, depositID, types.DepositStatusRejected, adminID, notes)
	if err != nil {
		return model.Deposit{}, err
	}
	if err := s.notifier.NotifyTx(ctx, tx, d.Wallet, "deposit",
		"Deposit rejected",
		fmt.Sprintf("Your deposit of %s %s was rejected.", d.CryptoAmount.String(), d.Currency),
		"#deposits"); err != nil {
		return model.Deposit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Deposit{}, err
	}

	s.log.EvolveOrAppend(ctx, model.Activity{
		Actor:       d.Wallet,
		Type:        types.ActivityDepositRejected,
		Category:    types.ActivityCategoryDeposit,
		Currency:    d.Currency,
		Amount:      d.CryptoAmount,
		QuoteAmount: d.QuoteAmount,
		Status:      types.ActivityStatusRejected,
		ReferenceID: d.ID,
		Metadata:    map[string]any{"admin_id": adminID, "notes": notes},
	})
	s.bus.Publish(activity.TopicDeposits, "deposit_updated", d)
	return d, nil
}

// AdjustAndApprove corrects the claimed quote amount before crediting. The
// credited crypto amount is recomputed by the ratio the adjustment implies;
// a recompute that is not finite-positive, or that disagrees with the
// adjusted quote amount for the quote currency itself, hard-fails the whole
// transition as a data-integrity violation.
func (s *Service) AdjustAndApprove(ctx context.Context, adminID, depositID string, adjustedQuote decimal.Decimal, reason string) (model.Deposit, error) {
	if !adjustedQuote.GreaterThan(decimal.Zero) {
		return model.Deposit{}, errs.Validation("adjusted amount must be positive")
	}
	if reason == "" {
		return model.Deposit{}, errs.Validation("adjustment reason is required")
	}
	adj := money.Normalize(adjustedQuote)
	return s.finalize(ctx, adminID, depositID, "", &adj, reason)
}

// finalize is the shared credit path for Approve and AdjustAndApprove.
func (s *Service) finalize(ctx context.Context, adminID, depositID, notes string, adjustedQuote *decimal.Decimal, adjustReason string) (model.Deposit, error) {
	target := types.DepositStatusApproved
	activityType := types.ActivityDepositApproved
	if adjustedQuote != nil {
		target = types.DepositStatusAdjusted
		activityType = types.ActivityDepositAdjusted
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.Deposit{}, err
	}
	defer tx.Rollback(ctx)

	d, err := s.transition(ctx, tx, depositID, target, adminID, notes)
	if err != nil {
		return model.Deposit{}, err
	}

	credit := d.CryptoAmount
	if adjustedQuote != nil {
		credit, err = adjustedCreditAmount(d.QuoteAmount, *adjustedQuote, d.CryptoAmount, d.Currency, s.quoteCurrency)
		if err != nil {
			return model.Deposit{}, err
		}
		orig := d.QuoteAmount
		if _, err := tx.Exec(ctx, `
			UPDATE deposits
			SET original_quote_amount = $2, adjusted_quote_amount = $3, adjust_reason = $4,
				crypto_amount = $5, quote_amount = $3
			WHERE id = $1::uuid
		`, d.ID, orig, *adjustedQuote, adjustReason, credit); err != nil {
			return model.Deposit{}, err
		}
		d.OriginalQuote = &orig
		d.AdjustedQuote = adjustedQuote
		d.AdjustReason = adjustReason
		d.CryptoAmount = credit
		d.QuoteAmount = *adjustedQuote
	}

	if err := s.balances.EnsureBalance(ctx, tx, d.Wallet, d.Currency); err != nil {
		return model.Deposit{}, err
	}
	if err := s.balances.GuardedAdjust(ctx, tx, d.Wallet, d.Currency, balance.Adjustment{
		Amount: credit,
		Real:   credit,
	}, nil); err != nil {
		return model.Deposit{}, err
	}
	if err := s.notifier.NotifyTx(ctx, tx, d.Wallet, "deposit",
		"Deposit approved",
		fmt.Sprintf("Your deposit of %s %s was credited.", credit.String(), d.Currency),
		"#deposits"); err != nil {
		return model.Deposit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Deposit{}, err
	}

	meta := map[string]any{"admin_id": adminID}
	if notes != "" {
		meta["notes"] = notes
	}
	if adjustedQuote != nil {
		meta["adjust_reason"] = adjustReason
		meta["adjusted_quote_amount"] = adjustedQuote.String()
	}
	s.log.EvolveOrAppend(ctx, model.Activity{
		Actor:       d.Wallet,
		Type:        activityType,
		Category:    types.ActivityCategoryDeposit,
		Currency:    d.Currency,
		Amount:      credit,
		QuoteAmount: d.QuoteAmount,
		Status:      types.ActivityStatusCompleted,
		ReferenceID: d.ID,
		Metadata:    meta,
	})
	s.bus.Publish(activity.BalanceTopic(d.Wallet), "balance_changed", map[string]string{"currency": d.Currency})
	s.bus.Publish(activity.TopicDeposits, "deposit_updated", d)
	return d, nil
}

// transition is the status-guarded flip out of pending. Zero affected rows
// means someone else already processed the deposit; that is a terminal
// business outcome, never a retry.
func (s *Service) transition(ctx context.Context, tx pgx.Tx, depositID string, target types.DepositStatus, adminID, notes string) (model.Deposit, error) {
	var d model.Deposit
	var status string
	err := tx.QueryRow(ctx, `
		UPDATE deposits
		SET status = $2, admin_id = $3, notes = $4, processed_at = NOW()
		WHERE id = $1::uuid AND status = 'pending'
		RETURNING id::text, wallet, currency, crypto_amount, quote_amount, rate, address, COALESCE(proof_ref, ''), status, created_at, processed_at
	`, depositID, string(target), adminID, notes).Scan(
		&d.ID, &d.Wallet, &d.Currency, &d.CryptoAmount, &d.QuoteAmount, &d.Rate, &d.Address, &d.ProofRef, &status, &d.CreatedAt, &d.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM deposits WHERE id = $1::uuid)`, depositID).Scan(&exists); err != nil {
				return d, err
			}
			if !exists {
				return d, errs.ErrNotFound
			}
			return d, errs.ErrAlreadyProcessed
		}
		return d, err
	}
	d.Status = types.DepositStatus(status)
	d.AdminID = adminID
	d.Notes = notes
	return d, nil
}

// adjustedCreditAmount recomputes the credited crypto amount from the ratio
// the admin adjustment implies. Rate drift upstream is exactly the failure
// mode the quote-leg equality check exists to catch.
func adjustedCreditAmount(originalQuote, adjustedQuote, originalCrypto decimal.Decimal, currency, quoteCurrency string) (decimal.Decimal, error) {
	if !originalQuote.GreaterThan(decimal.Zero) || !originalCrypto.GreaterThan(decimal.Zero) {
		return decimal.Zero, errs.ErrDataIntegrity
	}
	credit := money.Normalize(adjustedQuote.Div(originalQuote).Mul(originalCrypto))
	if !credit.GreaterThan(decimal.Zero) {
		return decimal.Zero, errs.ErrDataIntegrity
	}
	if currency == quoteCurrency && !money.WithinEpsilon(credit, adjustedQuote) {
		return decimal.Zero, errs.ErrDataIntegrity
	}
	return credit, nil
}

func (s *Service) priceOf(ctx context.Context, currency string) (decimal.Decimal, bool) {
	if currency == s.quoteCurrency {
		return decimal.NewFromInt(1), true
	}
	return s.oracle.GetPrice(ctx, currency)
}

func (s *Service) ListByWallet(ctx context.Context, wallet string, limit int) ([]model.Deposit, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, wallet, currency, crypto_amount, quote_amount, rate, address, COALESCE(proof_ref, ''), status,
			COALESCE(admin_id, ''), COALESCE(notes, ''), original_quote_amount, adjusted_quote_amount, COALESCE(adjust_reason, ''),
			created_at, processed_at
		FROM deposits
		WHERE wallet = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, wallet, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeposits(rows)
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]model.Deposit, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, wallet, currency, crypto_amount, quote_amount, rate, address, COALESCE(proof_ref, ''), status,
			COALESCE(admin_id, ''), COALESCE(notes, ''), original_quote_amount, adjusted_quote_amount, COALESCE(adjust_reason, ''),
			created_at, processed_at
		FROM deposits
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeposits(rows)
}

func scanDeposits(rows pgx.Rows) ([]model.Deposit, error) {
	var out []model.Deposit
	for rows.Next() {
		var d model.Deposit
		var status string
		if err := rows.Scan(&d.ID, &d.Wallet, &d.Currency, &d.CryptoAmount, &d.QuoteAmount, &d.Rate, &d.Address, &d.ProofRef, &status,
			&d.AdminID, &d.Notes, &d.OriginalQuote, &d.AdjustedQuote, &d.AdjustReason, &d.CreatedAt, &d.ProcessedAt); err != nil {
			return nil, err
		}
		d.Status = types.DepositStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}
