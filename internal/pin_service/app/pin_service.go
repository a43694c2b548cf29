package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	paymentdomain "github.com/autobus/autobus-backend/internal/payment_service/domain"
	"github.com/autobus/autobus-backend/internal/pin_service/domain"
	"github.com/autobus/autobus-backend/internal/pin_service/repository"
)

var ErrInvalidPinFormat = errors.New("pin must be exactly 5 digits")

// secureIntents require PIN verification before a payment may be created.
var secureIntents = map[paymentdomain.TransactionType]bool{
	paymentdomain.TransactionTypeSendMoney:  true,
	paymentdomain.TransactionTypeBuyAirtime: true,
	paymentdomain.TransactionTypeBuyData:    true,
	paymentdomain.TransactionTypePayBill:    true,
	paymentdomain.TransactionTypeGetLoan:    true,
}

// PinService gates sensitive intents behind a 5-digit PIN stored as a bcrypt
// hash. The raw PIN is never logged or persisted.
type PinService struct {
	creds  repository.CredentialRepository
	logger *slog.Logger
}

// NewPinService builds a PinService.
func NewPinService(creds repository.CredentialRepository, logger *slog.Logger) *PinService {
	return &PinService{creds: creds, logger: logger.With("service", "pin")}
}

// SetPin creates or rotates the user's PIN.
func (s *PinService) SetPin(ctx context.Context, userID, pin string) error {
	if !isValidPin(pin) {
		return ErrInvalidPinFormat
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	err = s.creds.Upsert(ctx, &domain.PinCredential{
		UserID:    userID,
		PinHash:   string(hash),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("store pin credential: %w", err)
	}
	s.logger.InfoContext(ctx, "PIN credential updated", "user_id", userID)
	return nil
}

// Verify checks the PIN against the stored hash. An unknown user or a
// malformed PIN verifies false, not as an error, so callers cannot
// distinguish the two.
func (s *PinService) Verify(ctx context.Context, userID, pin string) (bool, error) {
	if !isValidPin(pin) {
		return false, nil
	}
	cred, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load pin credential: %w", err)
	}
	err = bcrypt.CompareHashAndPassword([]byte(cred.PinHash), []byte(pin))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("compare pin hash: %w", err)
	}
	return true, nil
}

// Required reports whether the intent is PIN-gated.
func (s *PinService) Required(intent paymentdomain.TransactionType) bool {
	return secureIntents[intent]
}

func isValidPin(pin string) bool {
	if len(pin) != 5 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
