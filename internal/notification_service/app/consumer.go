package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/autobus/autobus-backend/internal/notification_service/domain"
	paymentdomain "github.com/autobus/autobus-backend/internal/payment_service/domain"
	"github.com/autobus/autobus-backend/internal/platform/messagebroker"
)

var notificationsConsumedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autobus",
		Subsystem: "notifications",
		Name:      "consumed_total",
		Help:      "Payment events consumed by the notification service.",
	},
	[]string{"status"},
)

// EventConsumer subscribes to payment events and persists a notification per
// committed transition.
type EventConsumer struct {
	natsClient *messagebroker.NatsClient
	repo       domain.NotificationRepository
	logger     *slog.Logger
}

// NewEventConsumer builds an EventConsumer.
func NewEventConsumer(natsClient *messagebroker.NatsClient, repo domain.NotificationRepository, logger *slog.Logger) *EventConsumer {
	return &EventConsumer{
		natsClient: natsClient,
		repo:       repo,
		logger:     logger.With("component", "notification_consumer"),
	}
}

// StartConsuming blocks on the payment events subscription until ctx is
// cancelled.
func (c *EventConsumer) StartConsuming(ctx context.Context, queueGroup string) error {
	handler := func(msg *nats.Msg) {
		var event paymentdomain.PaymentEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.logger.ErrorContext(ctx, "Failed to deserialize payment event",
				"error", err, "subject", msg.Subject, "data", string(msg.Data))
			return
		}

		notificationsConsumedCounter.WithLabelValues(string(event.Status)).Inc()

		_, err := c.repo.Create(ctx, &domain.Notification{
			UserID:    event.UserID,
			PaymentID: event.PaymentID,
			Status:    string(event.Status),
			Message:   event.Message,
			CreatedAt: event.OccurredAt,
		})
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to persist notification",
				"error", err, "payment_id", event.PaymentID, "user_id", event.UserID)
			return
		}
		c.logger.InfoContext(ctx, "Notification stored",
			"payment_id", event.PaymentID, "user_id", event.UserID, "status", event.Status)
	}

	return c.natsClient.SubscribeToSubjectWithQueue(ctx, paymentdomain.SubjectPaymentEvents, queueGroup, handler)
}
