package withdrawals

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"bx-custody/internal/errs"
	"bx-custody/internal/httputil"
	"bx-custody/internal/model"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
	Address  string `json:"address"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request, wallet string) {
	var req createRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	wd, err := h.svc.Request(r.Context(), RequestInput{
		Wallet:   wallet,
		Currency: req.Currency,
		Amount:   amount,
		Address:  req.Address,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, wd)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, wallet string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.svc.ListByWallet(r.Context(), wallet, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list withdrawals"})
		return
	}
	if items == nil {
		items = []model.Withdrawal{}
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsValidation(err):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrRateUnavailable):
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "price unavailable"})
	case errors.Is(err, errs.ErrInsufficientFunds):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.ErrorResponse{Error: "insufficient funds"})
	case errors.Is(err, errs.ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "not found"})
	case errors.Is(err, errs.ErrAlreadyProcessed):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: "already processed"})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}
