package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autobus/autobus-backend/internal/pin_service/domain"
	"github.com/autobus/autobus-backend/internal/pin_service/repository"
)

type pgCredentialRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgCredentialRepository creates a CredentialRepository backed by PostgreSQL.
func NewPgCredentialRepository(db *pgxpool.Pool, logger *slog.Logger) repository.CredentialRepository {
	return &pgCredentialRepository{db: db, logger: logger.With("repository", "pin_credential_pg")}
}

func (r *pgCredentialRepository) Upsert(ctx context.Context, cred *domain.PinCredential) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO pin_credentials (user_id, pin_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET pin_hash = EXCLUDED.pin_hash, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, cred.UserID, cred.PinHash, now)
	if err != nil {
		// Deliberately not logging the hash.
		r.logger.ErrorContext(ctx, "Error upserting pin credential", "error", err, "user_id", cred.UserID)
		return err
	}
	return nil
}

func (r *pgCredentialRepository) GetByUserID(ctx context.Context, userID string) (*domain.PinCredential, error) {
	cred := &domain.PinCredential{}
	query := `SELECT user_id, pin_hash, created_at, updated_at FROM pin_credentials WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&cred.UserID, &cred.PinHash, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrCredentialNotFound
		}
		return nil, err
	}
	return cred, nil
}
