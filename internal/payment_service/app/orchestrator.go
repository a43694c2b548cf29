package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autobus/autobus-backend/internal/payment_service/adapters/gateway"
	"github.com/autobus/autobus-backend/internal/payment_service/domain"
	"github.com/autobus/autobus-backend/internal/payment_service/repository"
)

// Notifier informs the user of committed status transitions. Implementations
// are fire-and-forget: a notification failure never rolls back a transition.
type Notifier interface {
	NotifyTransition(ctx context.Context, payment *domain.Payment, message string)
}

// RetryPolicy bounds phase attempts. Reversals get a higher ceiling because
// an unreversed debit is a worse outcome than a delayed one.
type RetryPolicy struct {
	PhaseMaxRetries    int
	ReversalMaxRetries int
	BackoffBase        time.Duration
}

// DefaultRetryPolicy mirrors the configured defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{PhaseMaxRetries: 3, ReversalMaxRetries: 5, BackoffBase: 2 * time.Second}
}

func (rp RetryPolicy) budget(phase domain.PhaseKind) int {
	if phase == domain.PhaseReversal {
		if rp.ReversalMaxRetries > 0 {
			return rp.ReversalMaxRetries
		}
		return 5
	}
	if rp.PhaseMaxRetries > 0 {
		return rp.PhaseMaxRetries
	}
	return 3
}

// Orchestrator drives payments through the phase state machine: CTM first,
// then the type's downstream phase, then a reversal when the downstream leg
// fails after funds were collected. Every transition is a ledger
// compare-and-set committed before any notification goes out.
type Orchestrator struct {
	payments repository.PaymentRepository
	attempts repository.AttemptRepository
	executor *PhaseExecutor
	notifier Notifier
	policy   RetryPolicy
	logger   *slog.Logger
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(
	payments repository.PaymentRepository,
	attempts repository.AttemptRepository,
	executor *PhaseExecutor,
	notifier Notifier,
	policy RetryPolicy,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		payments: payments,
		attempts: attempts,
		executor: executor,
		notifier: notifier,
		policy:   policy,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Advance moves the payment forward until it reaches a terminal status or a
// compare-and-set race is lost. Losing a race returns a
// ConcurrencyConflict-kind error; the caller re-reads and retries or moves
// on, but never assumes either outcome.
func (o *Orchestrator) Advance(ctx context.Context, paymentID string) error {
	payment, err := o.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return domain.NewError(domain.ErrKindNotFound, "payment not found", err)
		}
		return err
	}

	for !payment.Status.IsTerminal() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.step(ctx, payment); err != nil {
			return err
		}
	}
	return nil
}

// step performs exactly one transition (possibly preceded by a full retried
// phase execution) and mutates payment.Status on success.
func (o *Orchestrator) step(ctx context.Context, payment *domain.Payment) error {
	downstream := payment.Type.DownstreamPhase()

	switch payment.Status {
	case domain.StatusPending:
		// Funds collection from the payer always runs first.
		return o.transition(ctx, payment, domain.StatusCTMProcessing, "payment picked up, collecting funds")

	case domain.StatusCTMProcessing:
		return o.runPhase(ctx, payment, domain.PhaseCTM)

	case domain.StatusCTMSuccess:
		return o.transition(ctx, payment, domain.ProcessingStatus(downstream),
			fmt.Sprintf("funds collected, starting %s", downstream))

	case domain.StatusCTMFailed:
		// No funds moved; nothing to reverse.
		return o.transition(ctx, payment, domain.StatusFailed, "payment failed: funds could not be collected")

	case domain.StatusMTCProcessing, domain.StatusATPProcessing, domain.StatusBLPProcessing:
		return o.runPhase(ctx, payment, downstream)

	case domain.StatusMTCSuccess, domain.StatusATPSuccess, domain.StatusBLPSuccess:
		return o.transition(ctx, payment, domain.StatusSuccess, "payment completed")

	case domain.StatusMTCFailed, domain.StatusATPFailed, domain.StatusBLPFailed:
		return o.transition(ctx, payment, domain.StatusReversalProcessing,
			"delivery failed, refunding collected funds")

	case domain.StatusReversalProcessing:
		return o.runPhase(ctx, payment, domain.PhaseReversal)

	case domain.StatusReversalSuccess:
		return o.transition(ctx, payment, domain.StatusFailed, "payment failed, funds refunded")

	case domain.StatusReversalFailed:
		if err := o.payments.MarkNeedsReconciliation(ctx, payment.ID); err != nil {
			o.logger.ErrorContext(ctx, "Failed to flag payment for reconciliation", "payment_id", payment.ID, "error", err)
		}
		payment.NeedsReconciliation = true
		reconciliationCounter.Inc()
		o.logger.ErrorContext(ctx, "Reversal exhausted retries, manual reconciliation required",
			"payment_id", payment.ID, "amount", payment.Amount.String(), "currency", payment.CurrencyCode)
		return o.transition(ctx, payment, domain.StatusFailed, "payment failed, refund requires manual reconciliation")

	default:
		return domain.NewError(domain.ErrKindInternal,
			fmt.Sprintf("payment %s in unexpected status %s", payment.ID, payment.Status), nil)
	}
}

// runPhase executes phase with bounded retries and exponential backoff, then
// commits the phase verdict. Only one phase is ever in flight per payment:
// the processing status itself is the in-flight marker, and this worker holds
// it via the CAS that put it there.
func (o *Orchestrator) runPhase(ctx context.Context, payment *domain.Payment, phase domain.PhaseKind) error {
	budget := o.policy.budget(phase)

	for attempt := 1; attempt <= budget; attempt++ {
		outcome, err := o.executor.Execute(ctx, payment, phase)
		if err != nil {
			return fmt.Errorf("execute %s attempt %d: %w", phase, attempt, err)
		}

		if outcome.State == gateway.OutcomeSuccess {
			return o.transition(ctx, payment, domain.SuccessStatus(phase),
				fmt.Sprintf("%s leg succeeded", phase))
		}

		o.logger.WarnContext(ctx, "Phase attempt did not succeed",
			"payment_id", payment.ID, "phase", phase, "attempt", attempt,
			"state", outcome.State, "gateway_code", outcome.Code)

		if attempt < budget {
			if err := o.backoff(ctx, attempt); err != nil {
				return err
			}
		}
	}

	return o.transition(ctx, payment, domain.FailedStatus(phase),
		fmt.Sprintf("%s leg failed after %d attempts", phase, budget))
}

func (o *Orchestrator) backoff(ctx context.Context, attempt int) error {
	base := o.policy.BackoffBase
	if base <= 0 {
		base = 2 * time.Second
	}
	delay := base << (attempt - 1)

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transition commits payment.Status -> next through the ledger CAS and only
// then notifies. Notify-before-commit would announce a state that may never
// have existed.
func (o *Orchestrator) transition(ctx context.Context, payment *domain.Payment, next domain.PaymentStatus, message string) error {
	if !domain.CanTransition(payment.Status, next, payment.Type) {
		return domain.NewError(domain.ErrKindInternal,
			fmt.Sprintf("illegal transition %s -> %s for %s", payment.Status, next, payment.Type), nil)
	}

	if err := o.payments.CompareAndSetStatus(ctx, payment.ID, payment.Status, next); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			casConflictCounter.Inc()
			o.logger.WarnContext(ctx, "Lost status compare-and-set race",
				"payment_id", payment.ID, "expected", payment.Status, "next", next)
			return domain.NewError(domain.ErrKindConcurrencyConflict,
				fmt.Sprintf("payment %s moved concurrently from %s", payment.ID, payment.Status), err)
		}
		return err
	}

	payment.Status = next
	payment.UpdatedAt = time.Now().UTC()
	transitionsCounter.WithLabelValues(string(next)).Inc()

	o.logger.InfoContext(ctx, "Payment status committed",
		"payment_id", payment.ID, "status", next)

	if o.notifier != nil {
		o.notifier.NotifyTransition(ctx, payment, message)
	}
	return nil
}
