package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/fedpay/payment-core/internal/cache"
	"github.com/fedpay/payment-core/internal/config"
	"github.com/fedpay/payment-core/internal/gateway"
	"github.com/fedpay/payment-core/internal/handler"
	"github.com/fedpay/payment-core/internal/logging"
	"github.com/fedpay/payment-core/internal/middleware"
	"github.com/fedpay/payment-core/internal/repository"
	"github.com/fedpay/payment-core/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("fedpay-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var protocolCache *cache.ProtocolStatusCache
	if cfg.RedisAddr != "" {
		protocolCache, err = cache.NewProtocolStatusCache(cfg.RedisAddr)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer protocolCache.Close()
	}

	registry := gateway.NewRegistry(
		gateway.NewMercadoPago(gateway.MercadoPagoConfig{
			AccessToken:     cfg.MercadoPagoAccessToken,
			WebhookSecret:   cfg.MercadoPagoWebhookSecret,
			BaseURL:         cfg.MercadoPagoBaseURL,
			NotificationURL: cfg.WebhookBaseURL + "/MERCADO_PAGO",
		}),
		gateway.NewPagSeguro(gateway.PagSeguroConfig{
			Token:           cfg.PagSeguroToken,
			AuthenticityKey: cfg.PagSeguroAuthenticityKey,
			BaseURL:         cfg.PagSeguroBaseURL,
			NotificationURL: cfg.WebhookBaseURL + "/PAGSEGURO",
		}),
	)

	transactionRepo := repository.NewTransactionRepository(db)
	protocolRepo := repository.NewProtocolRepository(db)

	protocolSvc := service.NewProtocolService(protocolRepo, protocolCache)
	transactionSvc := service.NewTransactionService(transactionRepo, protocolSvc, cfg.ProtocolPrefix, cfg.PaymentExpiry)

	paymentSvc := service.NewPaymentService(transactionSvc, registry, cfg.GatewayTimeout)
	if cfg.SimulateApproval && cfg.AppEnv != "production" {
		paymentSvc.EnableSimulateApproval(cfg.SimulateApprovalDelay)
		slog.Warn("sandbox auto-approval enabled", "delay", cfg.SimulateApprovalDelay)
	}

	entities := service.NewEntityClient(cfg.EntityAPIURL)
	var notifier service.Notifier = service.NopNotifier{}
	if cfg.NotificationURL != "" {
		notifier = service.NewHTTPNotifier(cfg.NotificationURL)
	}

	webhookSvc := service.NewWebhookService(registry, transactionSvc, entities, entities, notifier)

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := service.NewExpirySweeper(transactionSvc, slog.Default(), cfg.ExpirySweepInterval)
	go sweeper.Start(sweeperCtx)

	paymentHandler := handler.NewPaymentHandler(paymentSvc, transactionSvc)
	webhookHandler := handler.NewWebhookHandler(webhookSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("POST /api/v1/webhooks/{provider}", webhookHandler.ReceiveWebhook)
	mux.HandleFunc("GET /api/v1/payments/protocol/{protocol}", paymentHandler.TrackPayment)

	authed := middleware.Auth(cfg.JWTSecret)
	mux.Handle("POST /api/v1/payments", authed(http.HandlerFunc(paymentHandler.CreatePayment)))
	mux.Handle("POST /api/v1/payments/{id}/card", authed(http.HandlerFunc(paymentHandler.ProcessCardPayment)))

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second)

	for i := range 30 {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
