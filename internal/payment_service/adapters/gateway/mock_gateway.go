package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/autobus/autobus-backend/internal/payment_service/domain"
)

// MockGatewayClient simulates the payment gateway for tests and local runs.
// It remembers every idempotency key it has seen: re-initiating a known key
// replays the recorded outcome instead of executing again.
type MockGatewayClient struct {
	logger *slog.Logger

	mu       sync.Mutex
	seen     map[string]*Outcome // idempotency key -> recorded outcome
	calls    map[string]int      // idempotency key -> initiate call count
	failures map[domain.PhaseKind]bool
	timeouts map[domain.PhaseKind]bool
}

// NewMockGatewayClient builds a mock where every phase succeeds until
// FailPhase or TimeoutPhase is called.
func NewMockGatewayClient(logger *slog.Logger) *MockGatewayClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockGatewayClient{
		logger:   logger.With("adapter", "mock_gateway"),
		seen:     make(map[string]*Outcome),
		calls:    make(map[string]int),
		failures: make(map[domain.PhaseKind]bool),
		timeouts: make(map[domain.PhaseKind]bool),
	}
}

// FailPhase makes every new attempt of phase come back rejected.
func (m *MockGatewayClient) FailPhase(phase domain.PhaseKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[phase] = true
}

// TimeoutPhase makes every new attempt of phase come back with an unknown
// outcome, as a transport timeout would.
func (m *MockGatewayClient) TimeoutPhase(phase domain.PhaseKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts[phase] = true
}

// InitiateCalls reports how many times a key was initiated.
func (m *MockGatewayClient) InitiateCalls(idempotencyKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[idempotencyKey]
}

func (m *MockGatewayClient) Initiate(ctx context.Context, req InitiateRequest) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[req.IdempotencyKey]++

	if prior, ok := m.seen[req.IdempotencyKey]; ok {
		m.logger.InfoContext(ctx, "Mock gateway replaying duplicate request", "exttrid", req.IdempotencyKey)
		return prior, nil
	}

	if m.timeouts[req.Phase] {
		// Deliberately not recorded: the caller never got an answer, and a
		// later Query against this key finds nothing either.
		return &Outcome{State: OutcomeUnknown, Message: "simulated gateway timeout"}, nil
	}

	var outcome *Outcome
	if m.failures[req.Phase] {
		outcome = &Outcome{
			State:   OutcomeFailure,
			Code:    "100",
			Message: fmt.Sprintf("simulated %s failure", req.Phase),
		}
	} else {
		outcome = &Outcome{
			State:        OutcomeSuccess,
			GatewayTxnID: "mock_" + uuid.NewString(),
			Code:         "000",
			Message:      "Transaction successful",
		}
	}
	m.seen[req.IdempotencyKey] = outcome
	return outcome, nil
}

func (m *MockGatewayClient) Query(ctx context.Context, idempotencyKey string) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.seen[idempotencyKey]; ok {
		return prior, nil
	}
	return &Outcome{State: OutcomeFailure, Code: "114", Message: "transaction not found"}, nil
}
