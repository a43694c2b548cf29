package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/autobus/autobus-backend/internal/payment_service/domain"
)

// Outcome is the gateway's verdict on one request. Pending means the gateway
// accepted the request but has not settled it yet; Unknown means the gateway
// could not be reached or gave no usable answer, so the true result is
// undetermined until a Query reconciles it.
type OutcomeState string

const (
	OutcomeSuccess OutcomeState = "success"
	OutcomeFailure OutcomeState = "failure"
	OutcomePending OutcomeState = "pending"
	OutcomeUnknown OutcomeState = "unknown"
)

// Outcome carries the gateway response for an initiate or query call.
type Outcome struct {
	State        OutcomeState
	GatewayTxnID string
	Code         string
	Message      string
}

// InitiateRequest is one phase execution handed to the gateway. The
// IdempotencyKey travels as the external transaction id, so a retried
// request is recognized as a duplicate rather than executed twice.
type InitiateRequest struct {
	IdempotencyKey string
	Phase          domain.PhaseKind
	Amount         decimal.Decimal
	CurrencyCode   string
	// CustomerNumber is the debited party for CTM and the credited party for
	// MTC/ATP/reversal; for BLP it is the account paying the bill.
	CustomerNumber string
	Network        domain.Network
	Reference      string
	ExtBillerRefID *string
}

// Client abstracts the payment gateway per phase kind.
type Client interface {
	Initiate(ctx context.Context, req InitiateRequest) (*Outcome, error)
	Query(ctx context.Context, idempotencyKey string) (*Outcome, error)
}
