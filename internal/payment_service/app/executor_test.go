package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobus/autobus-backend/internal/payment_service/adapters/gateway"
	"github.com/autobus/autobus-backend/internal/payment_service/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPhaseExecutor_RecordsAttemptAndGatewayTxnID(t *testing.T) {
	ledger := newMemLedger()
	attempts := newMemAttempts()
	gw := gateway.NewMockGatewayClient(discardLogger())
	exec := NewPhaseExecutor(gw, ledger, attempts, time.Second, discardLogger())

	receiver := "233200000002"
	p, err := ledger.Create(context.Background(), &domain.Payment{
		UserID:        "user-1",
		Type:          domain.TransactionTypeSendMoney,
		Amount:        decimal.NewFromInt(10),
		CurrencyCode:  "GHS",
		Status:        domain.StatusCTMProcessing,
		SenderPhone:   "233200000001",
		ReceiverPhone: &receiver,
	})
	require.NoError(t, err)

	outcome, err := exec.Execute(context.Background(), p, domain.PhaseCTM)
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSuccess, outcome.State)

	// The attempt is closed with the gateway's verdict under its key.
	key := domain.IdempotencyKey(p.ID, domain.PhaseCTM, 1)
	attempt, err := attempts.GetByIdempotencyKey(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptSuccess, attempt.Outcome)
	require.NotNil(t, attempt.CompletedAt)

	// The ledger row and the in-memory payment both carry the txn id.
	require.NotNil(t, p.CTMTransactionID)
	stored := ledger.get(p.ID)
	require.NotNil(t, stored.CTMTransactionID)
	assert.Equal(t, *p.CTMTransactionID, *stored.CTMTransactionID)
}

func TestPhaseExecutor_SameIdempotencyKeyIsNeverExecutedTwice(t *testing.T) {
	gw := gateway.NewMockGatewayClient(discardLogger())

	req := gateway.InitiateRequest{
		IdempotencyKey: "pay-1:CTM:1",
		Phase:          domain.PhaseCTM,
		Amount:         decimal.NewFromInt(25),
		CurrencyCode:   "GHS",
		CustomerNumber: "233200000001",
	}

	first, err := gw.Initiate(context.Background(), req)
	require.NoError(t, err)
	replayed, err := gw.Initiate(context.Background(), req)
	require.NoError(t, err)

	// The second call replays the recorded outcome instead of moving money
	// again: same gateway transaction, not a new one.
	assert.Equal(t, first.GatewayTxnID, replayed.GatewayTxnID)
	assert.Equal(t, 2, gw.InitiateCalls(req.IdempotencyKey))
}

// pendingThenSettledGateway answers every initiate with a pending acceptance
// and settles it as success on the status query, the shape of a gateway whose
// "01" acknowledgement precedes the real verdict.
type pendingThenSettledGateway struct {
	queried int
}

func (g *pendingThenSettledGateway) Initiate(context.Context, gateway.InitiateRequest) (*gateway.Outcome, error) {
	return &gateway.Outcome{State: gateway.OutcomePending, Code: "01", Message: "request accepted"}, nil
}

func (g *pendingThenSettledGateway) Query(context.Context, string) (*gateway.Outcome, error) {
	g.queried++
	return &gateway.Outcome{State: gateway.OutcomeSuccess, GatewayTxnID: "settled-1", Code: "000"}, nil
}

func TestPhaseExecutor_PendingOutcomeIsReconciledBeforeVerdict(t *testing.T) {
	ledger := newMemLedger()
	attempts := newMemAttempts()
	gw := &pendingThenSettledGateway{}
	exec := NewPhaseExecutor(gw, ledger, attempts, time.Second, discardLogger())

	p, err := ledger.Create(context.Background(), &domain.Payment{
		UserID:       "user-1",
		Type:         domain.TransactionTypeBuyAirtime,
		Amount:       decimal.NewFromInt(5),
		CurrencyCode: "GHS",
		Status:       domain.StatusCTMProcessing,
		SenderPhone:  "233200000001",
	})
	require.NoError(t, err)

	outcome, err := exec.Execute(context.Background(), p, domain.PhaseCTM)
	require.NoError(t, err)

	assert.Equal(t, 1, gw.queried)
	assert.Equal(t, gateway.OutcomeSuccess, outcome.State)
	require.NotNil(t, p.CTMTransactionID)
	assert.Equal(t, "settled-1", *p.CTMTransactionID)
}

func TestPhaseExecutor_ReversalDebitsSenderNumber(t *testing.T) {
	ledger := newMemLedger()
	attempts := newMemAttempts()

	var captured gateway.InitiateRequest
	gw := &capturingGateway{onInitiate: func(req gateway.InitiateRequest) { captured = req }}
	exec := NewPhaseExecutor(gw, ledger, attempts, time.Second, discardLogger())

	receiver := "233200000002"
	p, err := ledger.Create(context.Background(), &domain.Payment{
		UserID:        "user-1",
		Type:          domain.TransactionTypeSendMoney,
		Amount:        decimal.NewFromInt(10),
		CurrencyCode:  "GHS",
		Status:        domain.StatusReversalProcessing,
		SenderPhone:   "233200000001",
		ReceiverPhone: &receiver,
	})
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), p, domain.PhaseReversal)
	require.NoError(t, err)

	// A reversal refunds the payer, never the receiver.
	assert.Equal(t, p.SenderPhone, captured.CustomerNumber)

	_, err = exec.Execute(context.Background(), p, domain.PhaseMTC)
	require.NoError(t, err)
	assert.Equal(t, receiver, captured.CustomerNumber)
}

type capturingGateway struct {
	onInitiate func(gateway.InitiateRequest)
}

func (g *capturingGateway) Initiate(_ context.Context, req gateway.InitiateRequest) (*gateway.Outcome, error) {
	g.onInitiate(req)
	return &gateway.Outcome{State: gateway.OutcomeSuccess, GatewayTxnID: "cap-1", Code: "000"}, nil
}

func (g *capturingGateway) Query(context.Context, string) (*gateway.Outcome, error) {
	return &gateway.Outcome{State: gateway.OutcomeFailure, Code: "114", Message: "transaction not found"}, nil
}
