package balance

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bx-custody/internal/errs"
	"bx-custody/internal/httputil"
	"bx-custody/internal/model"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, wallet string) {
	items, err := h.store.ListByWallet(r.Context(), wallet)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list balances"})
		return
	}
	if items == nil {
		items = []model.Balance{}
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, wallet string) {
	b, err := h.store.GetBalance(r.Context(), wallet, chi.URLParam(r, "currency"))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}
