package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/autobus/autobus-backend/internal/payment_service/domain"
	"github.com/autobus/autobus-backend/internal/payment_service/repository"
	"github.com/autobus/autobus-backend/internal/platform/messagebroker"
)

// PinGate authenticates sensitive intents before any payment state exists.
type PinGate interface {
	Required(intent domain.TransactionType) bool
	Verify(ctx context.Context, userID, pin string) (bool, error)
}

// CreatePaymentInput is the validated input for creating a payment.
type CreatePaymentInput struct {
	UserID        string
	Type          domain.TransactionType
	Amount        decimal.Decimal
	CurrencyCode  string
	SenderPhone   string
	ReceiverPhone *string
	Network       *domain.Network
	PaymentMethod domain.PaymentMethod
	ExtBillerRef  *string
	Pin           string
}

// PaymentService is the surface the transport layer calls: create a payment,
// read its status and history, cancel it while still pending.
type PaymentService struct {
	payments   repository.PaymentRepository
	attempts   repository.AttemptRepository
	pinGate    PinGate
	natsClient *messagebroker.NatsClient
	logger     *slog.Logger
}

// NewPaymentService builds a PaymentService.
func NewPaymentService(
	payments repository.PaymentRepository,
	attempts repository.AttemptRepository,
	pinGate PinGate,
	natsClient *messagebroker.NatsClient,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		payments:   payments,
		attempts:   attempts,
		pinGate:    pinGate,
		natsClient: natsClient,
		logger:     logger.With("service", "payments"),
	}
}

// CreatePayment verifies the PIN gate, persists a PENDING payment, and
// publishes a pickup event. A failed gate creates no payment row at all.
func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*domain.Payment, error) {
	if !in.Type.IsValid() {
		return nil, domain.NewError(domain.ErrKindValidation, "unknown transaction type", nil)
	}
	if !in.Amount.IsPositive() {
		return nil, domain.NewError(domain.ErrKindValidation, "amount must be positive", nil)
	}
	if in.Type == domain.TransactionTypeSendMoney && in.ReceiverPhone == nil {
		return nil, domain.NewError(domain.ErrKindValidation, "send_money requires a receiver phone", nil)
	}
	if in.Type == domain.TransactionTypePayBill && in.Network != nil && *in.Network == domain.NetworkABS && in.ExtBillerRef == nil {
		return nil, domain.NewError(domain.ErrKindValidation, "ABS bill payments require a biller reference", nil)
	}

	if s.pinGate.Required(in.Type) {
		if in.Pin == "" {
			return nil, domain.NewError(domain.ErrKindPinRequired, "this intent requires a PIN", nil)
		}
		ok, err := s.pinGate.Verify(ctx, in.UserID, in.Pin)
		if err != nil {
			return nil, domain.NewError(domain.ErrKindInternal, "pin verification failed", err)
		}
		if !ok {
			s.logger.WarnContext(ctx, "PIN verification rejected", "user_id", in.UserID, "intent", in.Type)
			return nil, domain.NewError(domain.ErrKindPinInvalid, "incorrect PIN", nil)
		}
	}

	currency := in.CurrencyCode
	if currency == "" {
		currency = "GHS"
	}
	method := in.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodMobileMoney
	}

	payment, err := s.payments.Create(ctx, &domain.Payment{
		UserID:         in.UserID,
		Type:           in.Type,
		Amount:         in.Amount,
		CurrencyCode:   currency,
		Status:         domain.StatusPending,
		PaymentMethod:  method,
		Network:        in.Network,
		SenderPhone:    in.SenderPhone,
		ReceiverPhone:  in.ReceiverPhone,
		ExtBillerRefID: in.ExtBillerRef,
	})
	if err != nil {
		return nil, domain.NewError(domain.ErrKindInternal, "failed to persist payment", err)
	}

	paymentsCreatedCounter.WithLabelValues(string(payment.Type)).Inc()
	s.logger.InfoContext(ctx, "Payment created",
		"payment_id", payment.ID, "user_id", payment.UserID, "type", payment.Type,
		"amount", payment.Amount.String(), "currency", payment.CurrencyCode)

	s.publishCreated(ctx, payment)
	return payment, nil
}

// publishCreated is best-effort: the sweep will pick the payment up even if
// the event never lands.
func (s *PaymentService) publishCreated(ctx context.Context, payment *domain.Payment) {
	if s.natsClient == nil {
		return
	}
	event := domain.PaymentCreatedEvent{
		PaymentID: payment.ID,
		UserID:    payment.UserID,
		CreatedAt: payment.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal payment created event", "payment_id", payment.ID, "error", err)
		return
	}
	if err := s.natsClient.Publish(ctx, domain.SubjectPaymentCreated, payload); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish payment created event, sweep will recover",
			"payment_id", payment.ID, "error", err)
	}
}

// GetPayment returns the payment with its current status.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, domain.NewError(domain.ErrKindNotFound, "payment not found", err)
		}
		return nil, err
	}
	return payment, nil
}

// GetStatus returns only the payment's current status.
func (s *PaymentService) GetStatus(ctx context.Context, id string) (domain.PaymentStatus, error) {
	status, err := s.payments.ReadStatus(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return "", domain.NewError(domain.ErrKindNotFound, "payment not found", err)
		}
		return "", err
	}
	return status, nil
}

// GetHistory returns the payment's phase attempts, the audit trail behind
// the terminal status the user sees. The caller has already loaded the
// payment for its ownership check, so no existence round trip happens here;
// an unknown id simply has no attempts.
func (s *PaymentService) GetHistory(ctx context.Context, id string) ([]domain.PhaseAttempt, error) {
	return s.attempts.ListByPayment(ctx, id)
}

// ListUserPayments returns the user's payments, newest first.
func (s *PaymentService) ListUserPayments(ctx context.Context, userID string, limit, offset int) ([]domain.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.payments.GetByUserID(ctx, userID, limit, offset)
}

// Cancel stops a payment that has not started processing. Once a phase is in
// flight the payment must run to a terminal outcome, so Cancel returns false
// without touching it.
func (s *PaymentService) Cancel(ctx context.Context, id string) (bool, error) {
	err := s.payments.CompareAndSetStatus(ctx, id, domain.StatusPending, domain.StatusFailed)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return false, nil
		}
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return false, domain.NewError(domain.ErrKindNotFound, "payment not found", err)
		}
		return false, err
	}
	s.logger.InfoContext(ctx, "Payment cancelled", "payment_id", id)
	return true, nil
}
