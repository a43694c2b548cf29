package domain

import (
	"fmt"
	"time"
)

// AttemptOutcome is the result of one phase attempt against the gateway.
type AttemptOutcome string

const (
	AttemptPending AttemptOutcome = "pending"
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailure AttemptOutcome = "failure"
)

// PhaseAttempt records one execution of a phase against the external gateway.
// Attempt numbers are monotonic per (payment, phase); at most one attempt is
// in flight per payment at a time.
type PhaseAttempt struct {
	ID             string         `json:"id"` // UUID
	PaymentID      string         `json:"payment_id"`
	Phase          PhaseKind      `json:"phase"`
	AttemptNumber  int            `json:"attempt_number"`
	Outcome        AttemptOutcome `json:"outcome"`
	IdempotencyKey string         `json:"idempotency_key"`
	GatewayCode    *string        `json:"gateway_code,omitempty"`
	GatewayMessage *string        `json:"gateway_message,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// IdempotencyKey builds the deterministic external transaction id passed to
// the gateway, so a retried request is recognized as a duplicate rather than
// executed twice.
func IdempotencyKey(paymentID string, phase PhaseKind, attemptNumber int) string {
	return fmt.Sprintf("%s:%s:%d", paymentID, phase, attemptNumber)
}
