package balance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"bx-custody/internal/errs"
	"bx-custody/internal/model"
	"bx-custody/internal/money"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetBalance(ctx context.Context, wallet, currency string) (model.Balance, error) {
	var b model.Balance
	err := s.pool.QueryRow(ctx, `
		SELECT wallet, currency, amount, real_balance, real_winnings, frozen_balance, updated_at
		FROM balances
		WHERE wallet = $1 AND currency = $2
	`, wallet, currency).Scan(&b.Wallet, &b.Currency, &b.Amount, &b.RealBalance, &b.RealWinnings, &b.FrozenBalance, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return b, errs.ErrNotFound
		}
		return b, err
	}
	return b, nil
}

func (s *Store) ListByWallet(ctx context.Context, wallet string) ([]model.Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet, currency, amount, real_balance, real_winnings, frozen_balance, updated_at
		FROM balances
		WHERE wallet = $1
		ORDER BY currency ASC
	`, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Balance
	for rows.Next() {
		var b model.Balance
		if err := rows.Scan(&b.Wallet, &b.Currency, &b.Amount, &b.RealBalance, &b.RealWinnings, &b.FrozenBalance, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// EnsureBalance lazily creates the (wallet, currency) row on first credit.
// Rows are never deleted afterwards, only reset, to preserve audit
// continuity.
func (s *Store) EnsureBalance(ctx context.Context, tx pgx.Tx, wallet, currency string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO balances (wallet, currency, amount, real_balance, real_winnings, frozen_balance, updated_at)
		VALUES ($1, $2, 0, 0, 0, 0, NOW())
		ON CONFLICT (wallet, currency) DO NOTHING
	`, wallet, currency)
	return err
}

// GuardedAdjust applies one signed adjustment as a single conditional
// write. The guard predicate and the amount floor live in the WHERE clause,
// so a failed guard affects zero rows and nothing moves; the caller gets
// ErrInsufficientFunds and must treat it as terminal, not retry blindly.
// See Apply for the exact semantics the statement encodes.
func (s *Store) GuardedAdjust(ctx context.Context, tx pgx.Tx, wallet, currency string, adj Adjustment, guard *decimal.Decimal) error {
	if guard != nil {
		g := money.Normalize(*guard)
		guard = &g
	}
	tag, err := tx.Exec(ctx, `
		UPDATE balances
		SET amount = amount + $3,
			real_balance = GREATEST(real_balance + $4, 0),
			real_winnings = GREATEST(real_winnings + $5, 0),
			frozen_balance = GREATEST(frozen_balance + $6, 0),
			updated_at = NOW()
		WHERE wallet = $1
		  AND currency = $2
		  AND amount + $3 >= 0
		  AND ($7::numeric IS NULL OR amount >= $7::numeric)
	`, wallet, currency,
		money.Normalize(adj.Amount), money.Normalize(adj.Real),
		money.Normalize(adj.Winnings), money.Normalize(adj.Frozen), guard)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM balances WHERE wallet = $1 AND currency = $2)`, wallet, currency).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return errs.ErrNotFound
		}
		return errs.ErrInsufficientFunds
	}
	return nil
}

func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, wallet, currency string) (model.Balance, error) {
	var b model.Balance
	err := tx.QueryRow(ctx, `
		SELECT wallet, currency, amount, real_balance, real_winnings, frozen_balance, updated_at
		FROM balances
		WHERE wallet = $1 AND currency = $2
		FOR UPDATE
	`, wallet, currency).Scan(&b.Wallet, &b.Currency, &b.Amount, &b.RealBalance, &b.RealWinnings, &b.FrozenBalance, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return b, errs.ErrNotFound
		}
		return b, err
	}
	return b, nil
}

// SetAmounts overwrites a row for the admin manual-edit path. It refuses
// negative amount or frozen outright; this path must never bypass the
// amount >= 0 invariant.
func (s *Store) SetAmounts(ctx context.Context, tx pgx.Tx, b model.Balance) error {
	if b.Amount.IsNegative() || b.FrozenBalance.IsNegative() {
		return errs.Validation("amount and frozen_balance must not be negative")
	}
	tag, err := tx.Exec(ctx, `
		UPDATE balances
		SET amount = $3,
			real_balance = GREATEST($4, 0),
			real_winnings = GREATEST($5, 0),
			frozen_balance = $6,
			updated_at = NOW()
		WHERE wallet = $1 AND currency = $2
	`, b.Wallet, b.Currency,
		money.Normalize(b.Amount), money.Normalize(b.RealBalance),
		money.Normalize(b.RealWinnings), money.Normalize(b.FrozenBalance))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
