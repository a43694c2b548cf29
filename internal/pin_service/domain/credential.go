package domain

import "time"

// PinCredential is the salted hash gating a user's sensitive intents. The
// plaintext PIN exists only in transit and is never stored or logged.
type PinCredential struct {
	UserID    string
	PinHash   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
