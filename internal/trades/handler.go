package trades

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"bx-custody/internal/errs"
	"bx-custody/internal/httputil"
	"bx-custody/internal/model"
	"bx-custody/internal/types"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type openRequest struct {
	Asset       string `json:"asset"`
	Side        string `json:"side"`
	Stake       string `json:"stake"`
	DurationSec int    `json:"durationSec"`
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request, wallet string) {
	var req openRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	stake, err := decimal.NewFromString(req.Stake)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid stake"})
		return
	}
	t, err := h.svc.Open(r.Context(), OpenInput{
		Wallet:   wallet,
		Asset:    req.Asset,
		Side:     types.TradeSide(req.Side),
		Stake:    stake,
		Duration: time.Duration(req.DurationSec) * time.Second,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, wallet string) {
	t, err := h.svc.Get(r.Context(), wallet, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, wallet string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.svc.ListByWallet(r.Context(), wallet, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list trades"})
		return
	}
	if items == nil {
		items = []model.Trade{}
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
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: "already settled"})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}
