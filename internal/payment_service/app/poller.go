package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/autobus/autobus-backend/internal/payment_service/domain"
	"github.com/autobus/autobus-backend/internal/payment_service/repository"
	"github.com/autobus/autobus-backend/internal/platform/messagebroker"
)

// PollerConfig holds configuration specific to the payment poller.
type PollerConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	// StaleAfter is how long a payment may sit in a non-terminal status before
	// a sweep considers its worker dead and picks it up again.
	StaleAfter time.Duration
}

// PaymentPoller feeds the orchestrator. It reacts to payments.created NATS
// events for low latency, and sweeps the ledger on an interval to recover
// payments whose original worker died mid-flight.
type PaymentPoller struct {
	payments     repository.PaymentRepository
	orchestrator *Orchestrator
	natsClient   *messagebroker.NatsClient
	logger       *slog.Logger
	config       PollerConfig
}

// NewPaymentPoller builds a PaymentPoller.
func NewPaymentPoller(
	payments repository.PaymentRepository,
	orchestrator *Orchestrator,
	natsClient *messagebroker.NatsClient,
	cfg PollerConfig,
	logger *slog.Logger,
) *PaymentPoller {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	return &PaymentPoller{
		payments:     payments,
		orchestrator: orchestrator,
		natsClient:   natsClient,
		logger:       logger.With("component", "payment_poller"),
		config:       cfg,
	}
}

// Run blocks until ctx is cancelled, driving both the NATS subscription and
// the periodic sweep.
func (p *PaymentPoller) Run(ctx context.Context) error {
	go func() {
		if err := p.consumeCreatedEvents(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.ErrorContext(ctx, "Payment created subscription ended with error", "error", err)
		}
	}()
	go func() {
		if err := p.consumeGatewayCallbacks(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.ErrorContext(ctx, "Gateway callback subscription ended with error", "error", err)
		}
	}()

	ticker := time.NewTicker(p.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Payment poller stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := p.sweep(ctx); err != nil {
				p.logger.ErrorContext(ctx, "Payment sweep failed", "error", err)
			}
		}
	}
}

func (p *PaymentPoller) consumeCreatedEvents(ctx context.Context) error {
	handler := func(msg *nats.Msg) {
		var event domain.PaymentCreatedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.ErrorContext(ctx, "Failed to deserialize payment created event",
				"error", err, "data", string(msg.Data))
			return
		}
		p.advance(ctx, event.PaymentID)
	}
	return p.natsClient.SubscribeToSubjectWithQueue(ctx, domain.SubjectPaymentCreated, "payment-orchestrators", handler)
}

// consumeGatewayCallbacks reacts to verified gateway webhooks. The exttrid is
// our own idempotency key, so its first segment is the payment id; advancing
// the payment makes the orchestrator reconcile the attempt with a status
// query rather than trusting the callback payload.
func (p *PaymentPoller) consumeGatewayCallbacks(ctx context.Context) error {
	handler := func(msg *nats.Msg) {
		var event domain.GatewayCallbackEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.ErrorContext(ctx, "Failed to deserialize gateway callback event",
				"error", err, "data", string(msg.Data))
			return
		}
		paymentID, _, found := strings.Cut(event.ExternalTransactionID, ":")
		if !found || paymentID == "" {
			p.logger.WarnContext(ctx, "Gateway callback with foreign exttrid", "exttrid", event.ExternalTransactionID)
			return
		}
		p.advance(ctx, paymentID)
	}
	return p.natsClient.SubscribeToSubjectWithQueue(ctx, domain.SubjectGatewayCallback, "payment-orchestrators", handler)
}

func (p *PaymentPoller) sweep(ctx context.Context) error {
	staleBefore := time.Now().UTC().Add(-p.config.StaleAfter)
	due, err := p.payments.AcquirePending(ctx, staleBefore, p.config.BatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}
	p.logger.InfoContext(ctx, "Sweep acquired payments", "count", len(due))

	for i := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.advance(ctx, due[i].ID)
	}
	return nil
}

func (p *PaymentPoller) advance(ctx context.Context, paymentID string) {
	if err := p.orchestrator.Advance(ctx, paymentID); err != nil {
		var dErr *domain.Error
		if errors.As(err, &dErr) && dErr.Kind == domain.ErrKindConcurrencyConflict {
			// Another worker holds this payment; it will finish the job.
			p.logger.InfoContext(ctx, "Payment advanced by another worker", "payment_id", paymentID)
			return
		}
		p.logger.ErrorContext(ctx, "Failed to advance payment", "payment_id", paymentID, "error", err)
	}
}
