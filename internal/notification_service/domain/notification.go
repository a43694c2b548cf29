package domain

import "time"

// Notification is one user-facing message about a payment event, persisted
// for later retrieval by the chat/API surface.
type Notification struct {
	ID        string    `json:"id"` // UUID
	UserID    string    `json:"user_id"`
	PaymentID string    `json:"payment_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
