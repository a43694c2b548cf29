package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/autobus/autobus-backend/internal/payment_service/adapters/gateway"
	"github.com/autobus/autobus-backend/internal/payment_service/app"
	paymentpg "github.com/autobus/autobus-backend/internal/payment_service/repository/postgres"
	"github.com/autobus/autobus-backend/internal/platform/config"
	"github.com/autobus/autobus-backend/internal/platform/database"
	"github.com/autobus/autobus-backend/internal/platform/logger"
	"github.com/autobus/autobus-backend/internal/platform/messagebroker"
)

const (
	serviceName     = "payment-orchestrator-service"
	shutdownTimeout = 15 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Payment orchestrator starting...",
		"metrics_port", cfg.OrchestratorMetricsPort,
		"polling_interval", cfg.PollingInterval,
		"phase_max_retries", cfg.PhaseMaxRetries,
		"reversal_max_retries", cfg.ReversalMaxRetries)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	gatewayClient, err := gateway.NewOrchardClient(gateway.Config{
		BaseURL:      cfg.GatewayBaseURL,
		ClientID:     cfg.GatewayClientID,
		ClientSecret: cfg.GatewayClientSecret,
		ServiceID:    cfg.GatewayServiceID,
		CallbackURL:  cfg.GatewayCallbackURL,
		Timeout:      cfg.PhaseAttemptTimeout,
	}, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize gateway client", "error", err)
		os.Exit(1)
	}

	paymentRepo := paymentpg.NewPgPaymentRepository(dbPool, appLogger)
	attemptRepo := paymentpg.NewPgAttemptRepository(dbPool, appLogger)

	executor := app.NewPhaseExecutor(gatewayClient, paymentRepo, attemptRepo, cfg.PhaseAttemptTimeout, appLogger)
	notifier := app.NewNatsNotifier(natsClient, appLogger)
	orchestrator := app.NewOrchestrator(paymentRepo, attemptRepo, executor, notifier, app.RetryPolicy{
		PhaseMaxRetries:    cfg.PhaseMaxRetries,
		ReversalMaxRetries: cfg.ReversalMaxRetries,
		BackoffBase:        cfg.RetryBackoffBase,
	}, appLogger)

	poller := app.NewPaymentPoller(paymentRepo, orchestrator, natsClient, app.PollerConfig{
		PollingInterval: cfg.PollingInterval,
		BatchSize:       cfg.PollBatchSize,
	}, appLogger)

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.OrchestratorMetricsPort),
		Handler: promhttp.Handler(),
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		if err := poller.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		appLogger.Info("Metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			appLogger.Info("Shutdown signal received", "signal", sig.String())
			mainCancel()
		case <-groupCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Payment orchestrator stopped gracefully")
}
