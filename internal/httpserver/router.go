package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bx-custody/internal/activity"
	"bx-custody/internal/admin"
	"bx-custody/internal/auth"
	"bx-custody/internal/balance"
	"bx-custody/internal/convert"
	"bx-custody/internal/deposits"
	"bx-custody/internal/health"
	"bx-custody/internal/httputil"
	"bx-custody/internal/trades"
	"bx-custody/internal/withdrawals"
)

type RouterDeps struct {
	AuthHandler        *auth.Handler
	BalanceHandler     *balance.Handler
	DepositHandler     *deposits.Handler
	WithdrawalHandler  *withdrawals.Handler
	ConvertHandler     *convert.Handler
	TradeHandler       *trades.Handler
	ActivityHandler    *activity.Handler
	AdminHandler       *admin.Handler
	HealthHandler      *health.Handler
	AuthService        *auth.Service
	TradeService       *trades.Service
	EventsWSHandler    http.Handler
	AdminEventsHandler http.Handler
	JWTSecret          string
	InternalToken      string
}

// walletHandler adapts a (w, r, wallet) handler into a chi route behind
// WithAuth.
func walletHandler(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, ok := Wallet(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		fn(w, r, wallet)
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS middleware for development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)

	r.Get("/health", d.HealthHandler.Live)
	r.Get("/health/ready", d.HealthHandler.Ready)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.AuthHandler.Register)
			r.Post("/login", d.AuthHandler.Login)
		})

		r.Get("/events/ws", d.EventsWSHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))

			r.Get("/me", walletHandler(d.AuthHandler.Me))

			r.Get("/balances", walletHandler(d.BalanceHandler.List))
			r.Get("/balances/{currency}", walletHandler(d.BalanceHandler.Get))

			r.Post("/deposits", walletHandler(d.DepositHandler.Create))
			r.Get("/deposits", walletHandler(d.DepositHandler.List))

			r.Post("/withdrawals", walletHandler(d.WithdrawalHandler.Create))
			r.Get("/withdrawals", walletHandler(d.WithdrawalHandler.List))

			r.Get("/convert/quote", walletHandler(d.ConvertHandler.Quote))
			r.Post("/convert", walletHandler(d.ConvertHandler.Create))
			r.Get("/conversions", walletHandler(d.ConvertHandler.List))

			r.Post("/trades", walletHandler(d.TradeHandler.Open))
			r.Get("/trades", walletHandler(d.TradeHandler.List))
			r.Get("/trades/{id}", walletHandler(d.TradeHandler.Get))

			r.Get("/activity", walletHandler(d.ActivityHandler.History))
			r.Get("/notifications", walletHandler(d.ActivityHandler.Notifications))
			r.Post("/notifications/{id}/read", walletHandler(d.ActivityHandler.MarkNotificationRead))
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuth(d.InternalToken))
		r.Post("/trades/sweep", func(w http.ResponseWriter, req *http.Request) {
			if err := d.TradeService.SweepNow(req.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "sweep failed"})
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", d.AdminHandler.Login)
		r.Get("/events/ws", d.AdminEventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(admin.AdminAuthMiddleware(d.JWTSecret))

			r.With(admin.RequireRight("deposits")).Group(func(r chi.Router) {
				r.Get("/deposits/pending", d.AdminHandler.PendingDeposits)
				r.Post("/deposits/{id}/approve", d.AdminHandler.ApproveDeposit)
				r.Post("/deposits/{id}/reject", d.AdminHandler.RejectDeposit)
				r.Post("/deposits/{id}/adjust", d.AdminHandler.AdjustDeposit)
			})

			r.With(admin.RequireRight("withdrawals")).Group(func(r chi.Router) {
				r.Get("/withdrawals/pending", d.AdminHandler.PendingWithdrawals)
				r.Post("/withdrawals/{id}/approve", d.AdminHandler.ApproveWithdrawal)
				r.Post("/withdrawals/{id}/reject", d.AdminHandler.RejectWithdrawal)
			})

			r.With(admin.RequireRight("trades")).Group(func(r chi.Router) {
				r.Get("/trades/active", d.AdminHandler.ActiveTrades)
				r.Post("/trades/{id}/settle", d.AdminHandler.SettleTrade)
			})

			r.With(admin.RequireRight("policy")).Group(func(r chi.Router) {
				r.Get("/policy", d.AdminHandler.GetPolicy)
				r.Put("/policy", d.AdminHandler.UpdatePolicy)
			})

			r.With(admin.RequireRight("balances")).Group(func(r chi.Router) {
				r.Get("/balances/{wallet}", d.AdminHandler.GetBalances)
				r.Put("/balances/{wallet}", d.AdminHandler.SetBalance)
			})

			r.With(admin.RequireRight("prices")).Group(func(r chi.Router) {
				r.Post("/prices", d.AdminHandler.SetPrice)
			})

			r.Get("/activity", d.AdminHandler.ListActivity)
		})
	})

	return r
}
