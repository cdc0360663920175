package model

import (
	"time"

	"github.com/shopspring/decimal"

	"bx-custody/internal/types"
)

// Balance is one row per (wallet, currency). Amount is the only field that
// gates a spend; real_balance and real_winnings are provenance tags.
type Balance struct {
	Wallet        string          `json:"wallet"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	RealBalance   decimal.Decimal `json:"real_balance"`
	RealWinnings  decimal.Decimal `json:"real_winnings"`
	FrozenBalance decimal.Decimal `json:"frozen_balance"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Deposit struct {
	ID            string              `json:"id"`
	Wallet        string              `json:"wallet"`
	Currency      string              `json:"currency"`
	CryptoAmount  decimal.Decimal     `json:"crypto_amount"`
	QuoteAmount   decimal.Decimal     `json:"quote_amount"`
	Rate          decimal.Decimal     `json:"rate"`
	Address       string              `json:"address"`
	ProofRef      string              `json:"proof_ref,omitempty"`
	Status        types.DepositStatus `json:"status"`
	AdminID       string              `json:"admin_id,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	OriginalQuote *decimal.Decimal    `json:"original_quote_amount,omitempty"`
	AdjustedQuote *decimal.Decimal    `json:"adjusted_quote_amount,omitempty"`
	AdjustReason  string              `json:"adjust_reason,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	ProcessedAt   *time.Time          `json:"processed_at,omitempty"`
}

// Withdrawal holds requested+fee in frozen_balance from creation until the
// admin decision burns or refunds the hold. QuoteAmount and Rate are pinned
// at request time so the admin reviews the value the user saw.
type Withdrawal struct {
	ID          string                 `json:"id"`
	Wallet      string                 `json:"wallet"`
	Currency    string                 `json:"currency"`
	Amount      decimal.Decimal        `json:"amount"`
	Fee         decimal.Decimal        `json:"fee"`
	QuoteAmount decimal.Decimal        `json:"quote_amount"`
	Rate        decimal.Decimal        `json:"rate"`
	Address     string                 `json:"address"`
	Status      types.WithdrawalStatus `json:"status"`
	AdminID     string                 `json:"admin_id,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
}

// Conversion is a completed, non-reversible exchange record. There is no
// pending state: a conversion either fully succeeds atomically or does not
// exist.
type Conversion struct {
	ID           string          `json:"id"`
	Wallet       string          `json:"wallet"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	Rate         decimal.Decimal `json:"rate"`
	Fee          decimal.Decimal `json:"fee"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Trade struct {
	ID         string            `json:"id"`
	Wallet     string            `json:"wallet"`
	Asset      string            `json:"asset"`
	Side       types.TradeSide   `json:"side"`
	Stake      decimal.Decimal   `json:"stake"`
	EntryPrice decimal.Decimal   `json:"entry_price"`
	ExitPrice  *decimal.Decimal  `json:"exit_price,omitempty"`
	PnL        *decimal.Decimal  `json:"pnl,omitempty"`
	Status     types.TradeStatus `json:"status"`
	Result     types.TradeResult `json:"result,omitempty"`
	AdminID    string            `json:"admin_id,omitempty"`
	OpenedAt   time.Time         `json:"opened_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	ClosedAt   *time.Time        `json:"closed_at,omitempty"`
}

// Activity is the append-only audit record behind every ledger-affecting
// action. The only allowed mutation is the status/type evolution by
// reference id.
type Activity struct {
	ID          string                 `json:"id"`
	Actor       string                 `json:"actor"`
	Type        types.ActivityType     `json:"type"`
	Category    types.ActivityCategory `json:"category"`
	Currency    string                 `json:"currency"`
	Amount      decimal.Decimal        `json:"amount"`
	QuoteAmount decimal.Decimal        `json:"quote_amount"`
	Status      types.ActivityStatus   `json:"status"`
	ReferenceID string                 `json:"reference_id"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// User is keyed by wallet; UID is a human-facing display number only and
// never used for lookups.
type User struct {
	Wallet       string    `json:"wallet"`
	UID          int64     `json:"uid"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type AdminUser struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Rights       []string  `json:"rights"`
	CreatedAt    time.Time `json:"created_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	Wallet    string    `json:"wallet"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
