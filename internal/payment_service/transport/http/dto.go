package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/autobus/autobus-backend/internal/payment_service/domain"
)

// CreatePaymentRequest DTO for POST /payments.
type CreatePaymentRequest struct {
	Type          string          `json:"type" validate:"required,oneof=send_money buy_airtime buy_data pay_bill get_loan"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	CurrencyCode  string          `json:"currency_code,omitempty" validate:"omitempty,len=3"`
	SenderPhone   string          `json:"sender_phone" validate:"required,min=10,max=15"`
	ReceiverPhone *string         `json:"receiver_phone,omitempty" validate:"omitempty,min=10,max=15"`
	Network       *string         `json:"network,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty" validate:"omitempty,oneof=CARD MOBILE_MONEY BANK_TRANSFER CASH"`
	ExtBillerRef  *string         `json:"ext_biller_ref_id,omitempty"`
	Pin           string          `json:"pin,omitempty" validate:"omitempty,len=5,numeric"`
}

// CreatePaymentResponse DTO.
type CreatePaymentResponse struct {
	PaymentID string               `json:"payment_id"`
	Status    domain.PaymentStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
}

// PaymentResponse DTO for GET /payments/{payment_id}.
type PaymentResponse struct {
	ID                  string               `json:"id"`
	UserID              string               `json:"user_id"`
	Type                string               `json:"type"`
	Amount              decimal.Decimal      `json:"amount"`
	CurrencyCode        string               `json:"currency_code"`
	Status              domain.PaymentStatus `json:"status"`
	PaymentMethod       string               `json:"payment_method"`
	Network             *string              `json:"network,omitempty"`
	SenderPhone         string               `json:"sender_phone"`
	ReceiverPhone       *string              `json:"receiver_phone,omitempty"`
	NeedsReconciliation bool                 `json:"needs_reconciliation"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// PhaseAttemptResponse DTO for history entries.
type PhaseAttemptResponse struct {
	Phase          string     `json:"phase"`
	AttemptNumber  int        `json:"attempt_number"`
	Outcome        string     `json:"outcome"`
	GatewayCode    *string    `json:"gateway_code,omitempty"`
	GatewayMessage *string    `json:"gateway_message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// CancelResponse DTO for POST /payments/{payment_id}/cancel.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// SetPinRequest DTO for PUT /users/pin.
type SetPinRequest struct {
	Pin string `json:"pin" validate:"required,len=5,numeric"`
}

// NotificationResponse DTO for GET /notifications.
type NotificationResponse struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// GatewayCallbackRequest is the body the gateway posts to the webhook.
type GatewayCallbackRequest struct {
	ExternalTransactionID string `json:"exttrid" validate:"required"`
	StatusCode            string `json:"status_code" validate:"required"`
	Message               string `json:"message,omitempty"`
}

// GenericErrorResponse for API errors.
type GenericErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:                  p.ID,
		UserID:              p.UserID,
		Type:                string(p.Type),
		Amount:              p.Amount,
		CurrencyCode:        p.CurrencyCode,
		Status:              p.Status,
		PaymentMethod:       string(p.PaymentMethod),
		SenderPhone:         p.SenderPhone,
		ReceiverPhone:       p.ReceiverPhone,
		NeedsReconciliation: p.NeedsReconciliation,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	if p.Network != nil {
		nw := string(*p.Network)
		resp.Network = &nw
	}
	return resp
}
