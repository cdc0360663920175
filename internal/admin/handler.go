package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bx-custody/internal/activity"
	"bx-custody/internal/balance"
	"bx-custody/internal/deposits"
	"bx-custody/internal/errs"
	"bx-custody/internal/httputil"
	"bx-custody/internal/model"
	"bx-custody/internal/rates"
	"bx-custody/internal/trades"
	"bx-custody/internal/types"
	"bx-custody/internal/withdrawals"
)

// Handler exposes the admin surface: review queues, the terminal
// deposit/withdrawal decisions, force settlement, policy and price
// management, and the audited manual balance edit.
type Handler struct {
	pool        *pgxpool.Pool
	deposits    *deposits.Service
	withdrawals *withdrawals.Service
	trades      *trades.Service
	policies    *trades.PolicyStore
	balances    *balance.Store
	log         *activity.Log
	bus         *activity.Bus
	oracle      *rates.StoreOracle
	jwtSecret   []byte
	tokenTTL    time.Duration
}

func NewHandler(pool *pgxpool.Pool, dep *deposits.Service, wd *withdrawals.Service, tr *trades.Service, policies *trades.PolicyStore, balances *balance.Store, logStore *activity.Log, bus *activity.Bus, oracle *rates.StoreOracle, jwtSecret string, tokenTTL time.Duration) *Handler {
	return &Handler{
		pool:        pool,
		deposits:    dep,
		withdrawals: wd,
		trades:      tr,
		policies:    policies,
		balances:    balances,
		log:         logStore,
		bus:         bus,
		oracle:      oracle,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
	}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	var a model.AdminUser
	err := h.pool.QueryRow(r.Context(), `
		SELECT id::text, login, password_hash, role, rights FROM admin_users WHERE login = $1
	`, req.Login).Scan(&a.ID, &a.Login, &a.PasswordHash, &a.Role, &a.Rights)
	if err != nil {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(req.Password)); err != nil {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid credentials"})
		return
	}

	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    a.ID,
		"role":   a.Role,
		"rights": a.Rights,
		"iat":    now.Unix(),
		"exp":    now.Add(h.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(h.jwtSecret)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "login failed"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"token":  signed,
		"role":   a.Role,
		"rights": a.Rights,
	})
}

func (h *Handler) PendingDeposits(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.deposits.ListPending(r.Context(), limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list deposits"})
		return
	}
	if items == nil {
		items = []model.Deposit{}
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

type decisionRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	_ = httputil.ReadJSON(r, &req)
	d, err := h.deposits.Approve(r.Context(), adminIDFrom(r), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	_ = httputil.ReadJSON(r, &req)
	d, err := h.deposits.Reject(r.Context(), adminIDFrom(r), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

type adjustRequest struct {
	AdjustedQuoteAmount string `json:"adjustedQuoteAmount"`
	Reason              string `json:"reason"`
}

func (h *Handler) AdjustDeposit(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.AdjustedQuoteAmount)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid adjusted amount"})
		return
	}
	d, err := h.deposits.AdjustAndApprove(r.Context(), adminIDFrom(r), chi.URLParam(r, "id"), amount, req.Reason)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.withdrawals.ListPending(r.Context(), limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list withdrawals"})
		return
	}
	if items == nil {
		items = []model.Withdrawal{}
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

type approveWithdrawalRequest struct {
	TxRef string `json:"txRef"`
}

func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req approveWithdrawalRequest
	_ = httputil.ReadJSON(r, &req)
	wd, err := h.withdrawals.Approve(r.Context(), adminIDFrom(r), chi.URLParam(r, "id"), req.TxRef)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wd)
}

func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	_ = httputil.ReadJSON(r, &req)
	wd, err := h.withdrawals.Reject(r.Context(), adminIDFrom(r), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wd)
}

func (h *Handler) ActiveTrades(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.trades.ListActive(r.Context(), limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list trades"})
		return
	}
	if items == nil {
		items = []model.Trade{}
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

type settleRequest struct {
	Result string `json:"result"`
}

func (h *Handler) SettleTrade(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	t, err := h.trades.Settle(r.Context(), chi.URLParam(r, "id"), types.TradeResult(req.Result), adminIDFrom(r))
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.Get(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var p trades.Policy
	if err := httputil.ReadJSON(r, &p); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := h.policies.Update(r.Context(), p); err != nil {
		writeAdminError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")
	items, err := h.balances.ListByWallet(r.Context(), wallet)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list balances"})
		return
	}
	if items == nil {
		items = []model.Balance{}
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

type setBalanceRequest struct {
	Currency      string `json:"currency"`
	Amount        string `json:"amount"`
	RealBalance   string `json:"realBalance"`
	RealWinnings  string `json:"realWinnings"`
	FrozenBalance string `json:"frozenBalance"`
	Reason        string `json:"reason"`
}

// SetBalance is the break-glass manual edit. It overwrites the row in a
// transaction and records a BALANCE_EDIT audit entry with the before and
// after values, since this is the one mutation no state machine explains.
func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")
	var req setBalanceRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Reason == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "reason is required"})
		return
	}
	target := model.Balance{Wallet: wallet, Currency: req.Currency}
	var err error
	if target.Amount, err = decimal.NewFromString(req.Amount); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	if target.RealBalance, err = decimal.NewFromString(req.RealBalance); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid realBalance"})
		return
	}
	if target.RealWinnings, err = decimal.NewFromString(req.RealWinnings); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid realWinnings"})
		return
	}
	if target.FrozenBalance, err = decimal.NewFromString(req.FrozenBalance); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid frozenBalance"})
		return
	}

	ctx := r.Context()
	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	defer tx.Rollback(ctx)

	before, err := h.balances.GetForUpdate(ctx, tx, wallet, req.Currency)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	if err := h.balances.SetAmounts(ctx, tx, target); err != nil {
		writeAdminError(w, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}

	h.log.AppendLogged(ctx, model.Activity{
		Actor:       adminIDFrom(r),
		Type:        types.ActivityBalanceEdit,
		Category:    types.ActivityCategoryAdjustment,
		Currency:    req.Currency,
		Amount:      target.Amount,
		Status:      types.ActivityStatusCompleted,
		ReferenceID: wallet,
		Metadata: map[string]any{
			"reason":        req.Reason,
			"wallet":        wallet,
			"before_amount": before.Amount.String(),
			"before_frozen": before.FrozenBalance.String(),
			"after_amount":  target.Amount.String(),
			"after_frozen":  target.FrozenBalance.String(),
			"real_balance":  target.RealBalance.String(),
			"real_winnings": target.RealWinnings.String(),
		},
	})
	h.bus.Publish(activity.BalanceTopic(wallet), "balance_changed", map[string]string{"currency": req.Currency})
	httputil.WriteJSON(w, http.StatusOK, target)
}

type setPriceRequest struct {
	Currency string `json:"currency"`
	Price    string `json:"price"`
}

func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req setPriceRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || req.Currency == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "currency and a numeric price are required"})
		return
	}
	if err := h.oracle.SetPrice(r.Context(), req.Currency, price); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to store price"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"currency": req.Currency, "price": price.String()})
}

func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	category := types.ActivityCategory(r.URL.Query().Get("category"))
	status := types.ActivityStatus(r.URL.Query().Get("status"))
	items, err := h.log.List(r.Context(), category, status, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list activity"})
		return
	}
	if items == nil {
		items = []model.Activity{}
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsValidation(err):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "not found"})
	case errors.Is(err, errs.ErrAlreadyProcessed):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: "already processed"})
	case errors.Is(err, errs.ErrInsufficientFunds):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.ErrorResponse{Error: "insufficient funds"})
	case errors.Is(err, errs.ErrDataIntegrity):
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "data integrity violation"})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}
