package domain

import "time"

// NATS subjects used by the payment pipeline.
const (
	SubjectPaymentCreated  = "payments.created"
	SubjectPaymentEvents   = "payments.events"
	SubjectGatewayCallback = "payments.gateway_callback"
)

// PaymentCreatedEvent is published by the API when a payment row is persisted,
// so an orchestrator worker picks it up without waiting for the next DB sweep.
type PaymentCreatedEvent struct {
	PaymentID string    `json:"payment_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentEvent describes one committed status transition. It is published
// after the transition is durable, never before.
type PaymentEvent struct {
	PaymentID  string        `json:"payment_id"`
	UserID     string        `json:"user_id"`
	Status     PaymentStatus `json:"status"`
	Phase      *PhaseKind    `json:"phase,omitempty"`
	Message    string        `json:"message,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// GatewayCallbackEvent carries a verified gateway webhook to the orchestrator.
type GatewayCallbackEvent struct {
	ExternalTransactionID string    `json:"exttrid"`
	StatusCode            string    `json:"status_code"`
	Message               string    `json:"message,omitempty"`
	ReceivedAt            time.Time `json:"received_at"`
}
