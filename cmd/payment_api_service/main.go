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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	notifpg "github.com/autobus/autobus-backend/internal/notification_service/repository/postgres"
	"github.com/autobus/autobus-backend/internal/payment_api_service/middleware"
	paymentapp "github.com/autobus/autobus-backend/internal/payment_service/app"
	paymentpg "github.com/autobus/autobus-backend/internal/payment_service/repository/postgres"
	paymenthttp "github.com/autobus/autobus-backend/internal/payment_service/transport/http"
	pinapp "github.com/autobus/autobus-backend/internal/pin_service/app"
	pinpg "github.com/autobus/autobus-backend/internal/pin_service/repository/postgres"
	"github.com/autobus/autobus-backend/internal/platform/config"
	"github.com/autobus/autobus-backend/internal/platform/database"
	"github.com/autobus/autobus-backend/internal/platform/logger"
	"github.com/autobus/autobus-backend/internal/platform/messagebroker"
)

const (
	serviceName     = "payment-api-service"
	shutdownTimeout = 15 * time.Second
)

// httpLogger logs HTTP requests using slog.
func httpLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			requestID := chiMiddleware.GetReqID(r.Context())

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", requestID),
			)
		}
		return http.HandlerFunc(fn)
	}
}

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Payment API service starting...",
		"port", cfg.PaymentAPIPort, "metrics_port", cfg.PaymentAPIMetricsPort, "log_level", cfg.LogLevel)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL")

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("NATS connection initialized")

	paymentRepo := paymentpg.NewPgPaymentRepository(dbPool, appLogger)
	attemptRepo := paymentpg.NewPgAttemptRepository(dbPool, appLogger)
	pinRepo := pinpg.NewPgCredentialRepository(dbPool, appLogger)
	notificationRepo := notifpg.NewPgNotificationRepository(dbPool, appLogger)

	pinService := pinapp.NewPinService(pinRepo, appLogger)
	paymentService := paymentapp.NewPaymentService(paymentRepo, attemptRepo, pinService, natsClient, appLogger)

	paymentHandler := paymenthttp.NewPaymentHandler(paymentService, pinService, notificationRepo, appLogger)
	webhookHandler := paymenthttp.NewWebhookHandler(cfg.GatewayClientSecret, natsClient, appLogger)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(httpLogger(appLogger))
	router.Use(chiMiddleware.Recoverer)
	router.Use(paymenthttp.PrometheusMetricsMiddleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		// Gateway callbacks authenticate with an HMAC signature, not a JWT.
		r.Post("/webhooks/gateway", webhookHandler.HandleGatewayCallback)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(cfg.JWTAccessSecret, appLogger))
			paymentHandler.RegisterRoutes(r)
		})
	})

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.PaymentAPIPort),
		Handler: router,
	}
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.PaymentAPIMetricsPort),
		Handler: promhttp.Handler(),
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Payment API service stopped gracefully")
}
