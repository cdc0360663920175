package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"bx-custody/internal/activity"
	"bx-custody/internal/admin"
	"bx-custody/internal/auth"
	"bx-custody/internal/balance"
	"bx-custody/internal/config"
	"bx-custody/internal/convert"
	"bx-custody/internal/db"
	"bx-custody/internal/deposits"
	"bx-custody/internal/health"
	"bx-custody/internal/httpserver"
	"bx-custody/internal/rates"
	"bx-custody/internal/trades"
	"bx-custody/internal/withdrawals"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	withdrawFee, err := decimal.NewFromString(cfg.WithdrawFee)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	bus := activity.NewBus()
	defer bus.Close()

	balances := balance.NewStore(pool)
	auditLog := activity.NewLog(pool)
	notifier := activity.NewPGNotifier(pool)
	oracle := rates.NewStoreOracle(pool)

	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	depositSvc := deposits.NewService(pool, balances, auditLog, bus, notifier, oracle, cfg.QuoteCurrency, cfg.DepositAddressHint)
	withdrawalSvc := withdrawals.NewService(pool, balances, auditLog, bus, notifier, oracle, cfg.QuoteCurrency, withdrawFee)
	convertSvc := convert.NewService(pool, balances, auditLog, bus, notifier, oracle, cfg.QuoteCurrency)
	policies := trades.NewPolicyStore(pool)
	tradeSvc := trades.NewService(pool, balances, policies, auditLog, bus, notifier, oracle, cfg.QuoteCurrency)

	adminHandler := admin.NewHandler(pool, depositSvc, withdrawalSvc, tradeSvc, policies, balances, auditLog, bus, oracle, cfg.JWTSecret, cfg.JWTTTL)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:        auth.NewHandler(authSvc),
		BalanceHandler:     balance.NewHandler(balances),
		DepositHandler:     deposits.NewHandler(depositSvc),
		WithdrawalHandler:  withdrawals.NewHandler(withdrawalSvc),
		ConvertHandler:     convert.NewHandler(convertSvc),
		TradeHandler:       trades.NewHandler(tradeSvc),
		ActivityHandler:    activity.NewHandler(auditLog, notifier),
		AdminHandler:       adminHandler,
		HealthHandler:      health.NewHandler(pool),
		AuthService:        authSvc,
		TradeService:       tradeSvc,
		EventsWSHandler:    httpserver.NewEventsWSHandler(bus, authSvc, cfg.WebSocketOrigin),
		AdminEventsHandler: httpserver.NewAdminWSHandler(bus, admin.TokenChecker(cfg.JWTSecret), cfg.WebSocketOrigin),
		JWTSecret:          cfg.JWTSecret,
		InternalToken:      cfg.InternalToken,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	go tradeSvc.RunSweeper(sweepCtx, cfg.TradeSweepEvery)

	log.Printf("server listening on %s", cfg.HTTPAddr)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		stopSweep()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
