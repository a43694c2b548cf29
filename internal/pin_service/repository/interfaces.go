package repository

import (
	"context"
	"errors"

	"github.com/autobus/autobus-backend/internal/pin_service/domain"
)

var ErrCredentialNotFound = errors.New("pin credential not found")

// CredentialRepository is the durable keyed store for PIN credentials,
// replacing any process-wide in-memory map.
type CredentialRepository interface {
	Upsert(ctx context.Context, cred *domain.PinCredential) error
	GetByUserID(ctx context.Context, userID string) (*domain.PinCredential, error)
}
