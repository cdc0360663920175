package activity

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bx-custody/internal/httputil"
	"bx-custody/internal/model"
)

type Handler struct {
	log      *Log
	notifier *PGNotifier
}

func NewHandler(log *Log, notifier *PGNotifier) *Handler {
	return &Handler{log: log, notifier: notifier}
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, wallet string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.log.ListByActor(r.Context(), wallet, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list activity"})
		return
	}
	if items == nil {
		items = []model.Activity{}
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request, wallet string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.notifier.ListByWallet(r.Context(), wallet, limit)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list notifications"})
		return
	}
	if items == nil {
		items = []model.Notification{}
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request, wallet string) {
	if err := h.notifier.MarkRead(r.Context(), wallet, chi.URLParam(r, "id")); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to mark notification"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
