package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nimblepay/webhook-service/internal/config"
	"github.com/nimblepay/webhook-service/internal/handler"
	"github.com/nimblepay/webhook-service/internal/handlers"
	"github.com/nimblepay/webhook-service/internal/logging"
	"github.com/nimblepay/webhook-service/internal/middleware"
	"github.com/nimblepay/webhook-service/internal/repository"
	"github.com/nimblepay/webhook-service/internal/router"
	"github.com/nimblepay/webhook-service/internal/service"
	"github.com/nimblepay/webhook-service/internal/signature"
	"github.com/nimblepay/webhook-service/internal/tracker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("webhook-service", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	events := repository.NewIdempotencyRepository(db)
	states := repository.NewProcessingStateRepository(db)
	payments := repository.NewPaymentRepository(db)
	subscriptions := repository.NewSubscriptionRepository(db)

	registry := router.NewRegistry()
	if err := registerRoutes(registry, payments, subscriptions, logger, time.Duration(cfg.HandlerTimeoutS)*time.Second); err != nil {
		slog.Error("failed to register routes", "error", err)
		os.Exit(1)
	}

	verifier := signature.NewVerifier(cfg.WebhookSecret, cfg.WebhookMinSecretLen)
	track := tracker.New(states, logger, 3)
	pipeline := service.NewPipeline(verifier, events, registry, track, logger)

	webhookHandler := handler.NewWebhookHandler(pipeline)
	adminHandler := handler.NewAdminHandler(events, pipeline)
	healthHandler := handler.NewHealthHandler(db)

	adminAuth := middleware.Auth(cfg.AdminJWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/webhooks/provider", webhookHandler.Receive)
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /api/v1/admin/webhooks/failed", adminAuth(http.HandlerFunc(adminHandler.ListFailed)))
	mux.Handle("POST /api/v1/admin/webhooks/{event_id}/replay", adminAuth(http.HandlerFunc(adminHandler.ReplayFailed)))

	chain := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go runJanitor(janitorCtx, events, cfg, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chain,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.HandlerTimeoutS+15) * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "routes", registry.Types())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stopJanitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func registerRoutes(registry *router.Registry, payments *repository.PaymentRepository, subscriptions *repository.SubscriptionRepository, logger *slog.Logger, timeout time.Duration) error {
	paymentHandler := handlers.NewPaymentHandler(payments, logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptions, logger)
	refundHandler := handlers.NewRefundHandler(payments, logger)

	routes := []router.Route{
		{
			EventType:      "payment.captured",
			Handler:        router.HandlerFunc(paymentHandler.Captured),
			RequiredFields: []string{"id", "amount", "currency", "status"},
			Enabled:        true,
			Timeout:        timeout,
		},
		{
			EventType:      "payment.failed",
			Handler:        router.HandlerFunc(paymentHandler.Failed),
			RequiredFields: []string{"id"},
			Enabled:        true,
			Timeout:        timeout,
		},
		{
			EventType:      "subscription.activated",
			Handler:        router.HandlerFunc(subscriptionHandler.Activated),
			RequiredFields: []string{"id", "status"},
			Enabled:        true,
			Timeout:        timeout,
		},
		{
			EventType:      "subscription.charged",
			Handler:        router.HandlerFunc(subscriptionHandler.Charged),
			RequiredFields: []string{"id"},
			Enabled:        true,
			Timeout:        timeout,
		},
		{
			EventType:      "subscription.cancelled",
			Handler:        router.HandlerFunc(subscriptionHandler.Cancelled),
			RequiredFields: []string{"id"},
			Enabled:        true,
			Timeout:        timeout,
		},
		{
			EventType:      "refund.processed",
			Handler:        router.HandlerFunc(refundHandler.Processed),
			RequiredFields: []string{"id", "payment_id", "amount"},
			Enabled:        true,
			Timeout:        timeout,
		},
	}

	for _, route := range routes {
		if err := registry.Register(route); err != nil {
			return fmt.Errorf("register %s: %w", route.EventType, err)
		}
	}
	return nil
}

// runJanitor sweeps records past the retention window. Best effort; a
// failed sweep just waits for the next tick.
func runJanitor(ctx context.Context, events *repository.IdempotencyRepository, cfg *config.Config, logger *slog.Logger) {
	interval := time.Duration(cfg.JanitorEveryS) * time.Second
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
			n, err := events.DeleteOlderThan(sweepCtx, retention)
			cancel()
			if err != nil {
				logger.Warn("retention sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("retention sweep removed records", "count", n)
			}
		}
	}
}
