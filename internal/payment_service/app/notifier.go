package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/autobus/autobus-backend/internal/payment_service/domain"
	"github.com/autobus/autobus-backend/internal/platform/messagebroker"
)

// NatsNotifier publishes payment events to NATS for the notification service
// to deliver. It is fire-and-forget: publish failures are logged and dropped,
// never propagated back into the transition that triggered them.
type NatsNotifier struct {
	natsClient *messagebroker.NatsClient
	logger     *slog.Logger
}

// NewNatsNotifier builds a NatsNotifier.
func NewNatsNotifier(natsClient *messagebroker.NatsClient, logger *slog.Logger) *NatsNotifier {
	return &NatsNotifier{
		natsClient: natsClient,
		logger:     logger.With("component", "nats_notifier"),
	}
}

func (n *NatsNotifier) NotifyTransition(ctx context.Context, payment *domain.Payment, message string) {
	event := domain.PaymentEvent{
		PaymentID:  payment.ID,
		UserID:     payment.UserID,
		Status:     payment.Status,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	}
	if phase, ok := payment.Status.Phase(); ok {
		event.Phase = &phase
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.ErrorContext(ctx, "Failed to marshal payment event", "payment_id", payment.ID, "error", err)
		return
	}
	if err := n.natsClient.Publish(ctx, domain.SubjectPaymentEvents, payload); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish payment event",
			"payment_id", payment.ID, "status", payment.Status, "error", err)
	}
}
