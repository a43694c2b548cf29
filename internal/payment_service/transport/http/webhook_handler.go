package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/autobus/autobus-backend/internal/payment_service/adapters/gateway"
	"github.com/autobus/autobus-backend/internal/payment_service/domain"
	"github.com/autobus/autobus-backend/internal/platform/messagebroker"
)

const maxWebhookBodySize = 1 << 20 // 1 MB

// WebhookHandler receives signed gateway callbacks and forwards them to the
// orchestrator over NATS. The orchestrator still reconciles via status query,
// so a lost callback costs latency, not correctness.
type WebhookHandler struct {
	gatewaySecret string
	natsClient    *messagebroker.NatsClient
	logger        *slog.Logger
}

// NewWebhookHandler builds a WebhookHandler.
func NewWebhookHandler(gatewaySecret string, natsClient *messagebroker.NatsClient, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		gatewaySecret: gatewaySecret,
		natsClient:    natsClient,
		logger:        logger.With("handler", "gateway_webhook"),
	}
}

// HandleGatewayCallback verifies the HMAC signature over the raw body before
// trusting anything in it.
func (h *WebhookHandler) HandleGatewayCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	signature := r.Header.Get("X-Payment-Signature")
	if signature == "" {
		logger.WarnContext(ctx, "Gateway callback without signature", "remote_addr", r.RemoteAddr)
		http.Error(w, "Signature required", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	rawPayload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read webhook request body", "error", err)
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	if !gateway.VerifySignature(h.gatewaySecret, rawPayload, signature) {
		logger.WarnContext(ctx, "Gateway callback signature verification failed", "remote_addr", r.RemoteAddr)
		http.Error(w, "Webhook signature verification failed", http.StatusBadRequest)
		return
	}

	var req GatewayCallbackRequest
	if err := json.Unmarshal(rawPayload, &req); err != nil {
		logger.ErrorContext(ctx, "Unparseable gateway callback payload", "error", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if req.ExternalTransactionID == "" || req.StatusCode == "" {
		http.Error(w, "Missing exttrid or status_code", http.StatusBadRequest)
		return
	}

	event := domain.GatewayCallbackEvent{
		ExternalTransactionID: req.ExternalTransactionID,
		StatusCode:            req.StatusCode,
		Message:               req.Message,
		ReceivedAt:            time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal gateway callback event", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := h.natsClient.Publish(ctx, domain.SubjectGatewayCallback, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish gateway callback event",
			"exttrid", req.ExternalTransactionID, "error", err)
		// 500 makes the gateway retry its callback.
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	logger.InfoContext(ctx, "Gateway callback accepted",
		"exttrid", req.ExternalTransactionID, "status_code", req.StatusCode)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Callback received"))
}
