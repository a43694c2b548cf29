package repository

import (
	"context"
	"errors"
	"time"

	"github.com/autobus/autobus-backend/internal/payment_service/domain"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrAttemptNotFound = errors.New("phase attempt not found")

	// ErrStatusConflict is returned by CompareAndSetStatus when the expected
	// status no longer matches; the caller must re-read and decide again.
	ErrStatusConflict = errors.New("payment status compare-and-set conflict")
)

// PaymentRepository is the durable ledger of payments. The orchestrator is
// the sole writer of Status, but may run as multiple worker instances, so
// every transition goes through CompareAndSetStatus.
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error)
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]domain.Payment, error)
	GetByGatewayTxnID(ctx context.Context, exttrid string) (*domain.Payment, error)

	ReadStatus(ctx context.Context, id string) (domain.PaymentStatus, error)

	// CompareAndSetStatus atomically moves id from expected to next. Exactly
	// one of two concurrent callers wins; the loser gets ErrStatusConflict.
	CompareAndSetStatus(ctx context.Context, id string, expected, next domain.PaymentStatus) error

	// AcquirePending claims up to limit payments in PENDING, or stuck in any
	// non-terminal status since before staleBefore, skipping rows locked by
	// other workers.
	AcquirePending(ctx context.Context, staleBefore time.Time, limit int) ([]domain.Payment, error)

	SetGatewayTxnID(ctx context.Context, id string, phase domain.PhaseKind, gatewayTxnID string) error
	MarkNeedsReconciliation(ctx context.Context, id string) error
}

// AttemptRepository records phase attempts, the audit trail behind a payment.
type AttemptRepository interface {
	Append(ctx context.Context, a *domain.PhaseAttempt) (*domain.PhaseAttempt, error)
	Complete(ctx context.Context, id string, outcome domain.AttemptOutcome, gatewayCode, gatewayMessage *string) error
	NextAttemptNumber(ctx context.Context, paymentID string, phase domain.PhaseKind) (int, error)
	ListByPayment(ctx context.Context, paymentID string) ([]domain.PhaseAttempt, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PhaseAttempt, error)
}
