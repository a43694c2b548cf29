package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autobus/autobus-backend/internal/payment_service/adapters/gateway"
	"github.com/autobus/autobus-backend/internal/payment_service/domain"
	"github.com/autobus/autobus-backend/internal/payment_service/repository"
)

// PhaseExecutor performs one phase attempt against the external gateway and
// records it in the ledger. A timed-out attempt is reconciled with a status
// query before it may be reported as failed, because the gateway may have
// executed it anyway.
type PhaseExecutor struct {
	gateway        gateway.Client
	payments       repository.PaymentRepository
	attempts       repository.AttemptRepository
	logger         *slog.Logger
	attemptTimeout time.Duration
}

// NewPhaseExecutor builds a PhaseExecutor. attemptTimeout bounds one gateway
// round trip including the reconcile query.
func NewPhaseExecutor(
	gw gateway.Client,
	payments repository.PaymentRepository,
	attempts repository.AttemptRepository,
	attemptTimeout time.Duration,
	logger *slog.Logger,
) *PhaseExecutor {
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	return &PhaseExecutor{
		gateway:        gw,
		payments:       payments,
		attempts:       attempts,
		logger:         logger.With("component", "phase_executor"),
		attemptTimeout: attemptTimeout,
	}
}

// Execute runs the next attempt of phase for payment. It returns the final
// outcome of this attempt; OutcomeUnknown means even the reconcile query
// could not determine the result, and the phase must not be committed as
// failed on the strength of this attempt alone.
func (e *PhaseExecutor) Execute(ctx context.Context, payment *domain.Payment, phase domain.PhaseKind) (*gateway.Outcome, error) {
	attemptNo, err := e.attempts.NextAttemptNumber(ctx, payment.ID, phase)
	if err != nil {
		return nil, fmt.Errorf("next attempt number for %s/%s: %w", payment.ID, phase, err)
	}
	key := domain.IdempotencyKey(payment.ID, phase, attemptNo)

	attempt, err := e.attempts.Append(ctx, &domain.PhaseAttempt{
		PaymentID:      payment.ID,
		Phase:          phase,
		AttemptNumber:  attemptNo,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("append attempt: %w", err)
	}

	e.logger.InfoContext(ctx, "Executing phase attempt",
		"payment_id", payment.ID, "phase", phase, "attempt_number", attemptNo, "exttrid", key)

	timer := prometheus.NewTimer(phaseDurationHist.WithLabelValues(string(phase)))
	defer timer.ObserveDuration()

	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	outcome, err := e.gateway.Initiate(attemptCtx, e.buildRequest(payment, phase, key))
	if err != nil {
		outcome = &gateway.Outcome{State: gateway.OutcomeUnknown, Message: err.Error()}
	}

	// An accepted-but-unsettled or unanswered request: ask the gateway what
	// actually happened before concluding anything.
	if outcome.State == gateway.OutcomeUnknown || outcome.State == gateway.OutcomePending {
		outcome = e.reconcile(attemptCtx, key, outcome)
	}

	e.record(ctx, payment, phase, attempt, outcome)
	return outcome, nil
}

func (e *PhaseExecutor) buildRequest(payment *domain.Payment, phase domain.PhaseKind, key string) gateway.InitiateRequest {
	req := gateway.InitiateRequest{
		IdempotencyKey: key,
		Phase:          phase,
		Amount:         payment.Amount,
		CurrencyCode:   payment.CurrencyCode,
		Reference:      string(payment.Type),
		ExtBillerRefID: payment.ExtBillerRefID,
	}
	if payment.Network != nil {
		req.Network = *payment.Network
	}
	switch phase {
	case domain.PhaseCTM, domain.PhaseReversal:
		// CTM debits the payer; a reversal credits the same number back.
		req.CustomerNumber = payment.SenderPhone
	default:
		if payment.ReceiverPhone != nil {
			req.CustomerNumber = *payment.ReceiverPhone
		} else {
			req.CustomerNumber = payment.SenderPhone
		}
	}
	return req
}

// reconcile queries the gateway for the true outcome of an attempt whose
// initiate call did not settle.
func (e *PhaseExecutor) reconcile(ctx context.Context, key string, prior *gateway.Outcome) *gateway.Outcome {
	e.logger.WarnContext(ctx, "Reconciling unsettled phase attempt", "exttrid", key, "initiate_state", prior.State)

	queried, err := e.gateway.Query(ctx, key)
	if err != nil {
		e.logger.ErrorContext(ctx, "Reconcile query failed", "exttrid", key, "error", err)
		return &gateway.Outcome{State: gateway.OutcomeUnknown, Message: "reconcile query failed: " + err.Error()}
	}
	if queried.State == gateway.OutcomePending {
		// Still settling at the gateway; treat as unknown for this attempt.
		return &gateway.Outcome{State: gateway.OutcomeUnknown, Code: queried.Code, Message: queried.Message}
	}
	return queried
}

func (e *PhaseExecutor) record(ctx context.Context, payment *domain.Payment, phase domain.PhaseKind, attempt *domain.PhaseAttempt, outcome *gateway.Outcome) {
	phaseAttemptsCounter.WithLabelValues(string(phase), string(attemptOutcome(outcome))).Inc()

	var code, msg *string
	if outcome.Code != "" {
		code = &outcome.Code
	}
	if outcome.Message != "" {
		msg = &outcome.Message
	}
	if err := e.attempts.Complete(ctx, attempt.ID, attemptOutcome(outcome), code, msg); err != nil {
		e.logger.ErrorContext(ctx, "Failed to close phase attempt", "attempt_id", attempt.ID, "error", err)
	}

	if outcome.State == gateway.OutcomeSuccess && outcome.GatewayTxnID != "" {
		if err := e.payments.SetGatewayTxnID(ctx, payment.ID, phase, outcome.GatewayTxnID); err != nil {
			e.logger.ErrorContext(ctx, "Failed to record gateway txn id", "payment_id", payment.ID, "phase", phase, "error", err)
		}
		*payment.GatewayTxnIDForPhase(phase) = &outcome.GatewayTxnID
	}
}

func attemptOutcome(outcome *gateway.Outcome) domain.AttemptOutcome {
	if outcome.State == gateway.OutcomeSuccess {
		return domain.AttemptSuccess
	}
	return domain.AttemptFailure
}
