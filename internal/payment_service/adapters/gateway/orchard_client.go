package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/autobus/autobus-backend/internal/payment_service/domain"
)

// Config holds the gateway credentials and endpoints.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	ServiceID    string
	CallbackURL  string
	Timeout      time.Duration
}

// OrchardClient talks to an Orchard-style payment gateway. Requests are
// compact, key-sorted JSON signed with HMAC-SHA256 over the exact body;
// the Authorization header is "clientID:signature".
type OrchardClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOrchardClient validates cfg and builds a client.
func NewOrchardClient(cfg Config, logger *slog.Logger) (*OrchardClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.ServiceID == "" {
		return nil, errors.New("gateway client id, secret and service id are required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OrchardClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("adapter", "orchard_gateway"),
	}, nil
}

func (c *OrchardClient) Initiate(ctx context.Context, req InitiateRequest) (*Outcome, error) {
	payload := map[string]string{
		"customer_number": req.CustomerNumber,
		"amount":          req.Amount.StringFixed(2),
		"exttrid":         req.IdempotencyKey,
		"reference":       req.Reference,
		"nw":              string(req.Network),
		"trans_type":      transTypeFor(req.Phase),
		"service_id":      c.cfg.ServiceID,
		"callback_url":    c.cfg.CallbackURL,
		"ts":              time.Now().UTC().Format("2006-01-02 15:04:05"),
	}
	if req.ExtBillerRefID != nil {
		payload["biller_id"] = *req.ExtBillerRefID
	}
	return c.post(ctx, "/sendRequest", payload)
}

func (c *OrchardClient) Query(ctx context.Context, idempotencyKey string) (*Outcome, error) {
	payload := map[string]string{
		"exttrid":    idempotencyKey,
		"service_id": c.cfg.ServiceID,
		"trans_type": "TSC",
	}
	return c.post(ctx, "/checkTransaction", payload)
}

// Reversal on the wire is an MTC: money moves merchant-to-customer.
func transTypeFor(phase domain.PhaseKind) string {
	if phase == domain.PhaseReversal {
		return string(domain.PhaseMTC)
	}
	return string(phase)
}

type gatewayResponse struct {
	RespCode string `json:"resp_code"`
	RespDesc string `json:"resp_desc"`
	TransID  string `json:"trans_id,omitempty"`
}

func (c *OrchardClient) post(ctx context.Context, path string, payload map[string]string) (*Outcome, error) {
	body, err := sortedCompactJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway payload: %w", err)
	}

	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("build gateway URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.cfg.ClientID+":"+Sign(c.cfg.ClientSecret, body))

	c.logger.InfoContext(ctx, "Sending gateway request", "endpoint", endpoint, "exttrid", payload["exttrid"], "trans_type", payload["trans_type"])

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Transport failure or deadline: the gateway may or may not have seen
		// the request. Callers must reconcile with Query before committing.
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return &Outcome{State: OutcomeUnknown, Message: "gateway request timed out"}, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &Outcome{State: OutcomeUnknown, Message: "gateway request timed out"}, nil
		}
		return &Outcome{State: OutcomeUnknown, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Outcome{State: OutcomeUnknown, Message: "failed reading gateway response"}, nil
	}

	var gr gatewayResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		c.logger.ErrorContext(ctx, "Unparseable gateway response", "status", resp.StatusCode, "body", string(raw))
		return &Outcome{State: OutcomeUnknown, Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: "unparseable gateway response"}, nil
	}

	outcome := &Outcome{
		GatewayTxnID: gr.TransID,
		Code:         gr.RespCode,
		Message:      gr.RespDesc,
	}
	switch gr.RespCode {
	case "000", "01":
		outcome.State = OutcomeSuccess
	case "015", "03":
		outcome.State = OutcomePending
	default:
		outcome.State = OutcomeFailure
	}

	c.logger.InfoContext(ctx, "Gateway response", "exttrid", payload["exttrid"], "resp_code", gr.RespCode, "state", outcome.State)
	return outcome, nil
}

// sortedCompactJSON marshals payload with sorted keys and no whitespace, the
// exact byte form the signature is computed over.
func sortedCompactJSON(payload map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(payload[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Sign computes the hex HMAC-SHA256 of body with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
