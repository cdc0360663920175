package convert

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

type convertRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type quoteResponse struct {
	From       string `json:"from"`
	To         string `json:"to"`
	FromAmount string `json:"fromAmount"`
	ToAmount   string `json:"toAmount"`
	Rate       string `json:"rate"`
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request, wallet string) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	q, err := MakeQuote(r.Context(), h.svc.oracle, h.svc.quoteCurrency, from, to, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, quoteResponse{
		From:       from,
		To:         to,
		FromAmount: q.FromAmount.String(),
		ToAmount:   q.ToAmount.String(),
		Rate:       q.Rate.String(),
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request, wallet string) {
	var req convertRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	conv, err := h.svc.Convert(r.Context(), wallet, req.From, req.To, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, conv)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, wallet string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.svc.ListByWallet(r.Context(), wallet, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list conversions"})
		return
	}
	if items == nil {
		items = []model.Conversion{}
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
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}
