package http

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autobus/autobus-backend/internal/payment_service/adapters/gateway"
)

const webhookSecret = "s3cret"

func newWebhookHandler() *WebhookHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// The broker is only reached after the signature and payload check out;
	// rejection paths never touch it.
	return NewWebhookHandler(webhookSecret, nil, logger)
}

func postCallback(h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Payment-Signature", signature)
	}
	rr := httptest.NewRecorder()
	h.HandleGatewayCallback(rr, req)
	return rr
}

func TestWebhook_MissingSignatureIsRejected(t *testing.T) {
	h := newWebhookHandler()
	body := []byte(`{"exttrid":"pay-1:CTM:1","status_code":"000"}`)

	rr := postCallback(h, body, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhook_BadSignatureIsRejected(t *testing.T) {
	h := newWebhookHandler()
	body := []byte(`{"exttrid":"pay-1:CTM:1","status_code":"000"}`)

	rr := postCallback(h, body, "deadbeef")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhook_SignatureOverDifferentBodyIsRejected(t *testing.T) {
	h := newWebhookHandler()
	signed := []byte(`{"exttrid":"pay-1:CTM:1","status_code":"000"}`)
	tampered := []byte(`{"exttrid":"pay-1:CTM:1","status_code":"100"}`)

	rr := postCallback(h, tampered, gateway.Sign(webhookSecret, signed))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhook_ValidSignatureWithUnparseableBodyIsRejected(t *testing.T) {
	h := newWebhookHandler()
	body := []byte(`not json`)

	rr := postCallback(h, body, gateway.Sign(webhookSecret, body))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhook_ValidSignatureWithMissingFieldsIsRejected(t *testing.T) {
	h := newWebhookHandler()
	body := []byte(`{"status_code":"000"}`)

	rr := postCallback(h, body, gateway.Sign(webhookSecret, body))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
