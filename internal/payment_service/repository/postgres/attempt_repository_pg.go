package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autobus/autobus-backend/internal/payment_service/domain"
	"github.com/autobus/autobus-backend/internal/payment_service/repository"
)

const attemptColumns = `
	id, payment_id, phase, attempt_number, outcome, idempotency_key,
	gateway_code, gateway_message, started_at, completed_at`

type pgAttemptRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgAttemptRepository creates an AttemptRepository backed by PostgreSQL.
func NewPgAttemptRepository(db *pgxpool.Pool, logger *slog.Logger) repository.AttemptRepository {
	return &pgAttemptRepository{db: db, logger: logger.With("repository", "attempt_pg")}
}

func (r *pgAttemptRepository) Append(ctx context.Context, a *domain.PhaseAttempt) (*domain.PhaseAttempt, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	if a.Outcome == "" {
		a.Outcome = domain.AttemptPending
	}

	query := `
		INSERT INTO phase_attempts (id, payment_id, phase, attempt_number, outcome,
		                            idempotency_key, gateway_code, gateway_message, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		a.ID, a.PaymentID, a.Phase, a.AttemptNumber, a.Outcome,
		a.IdempotencyKey, a.GatewayCode, a.GatewayMessage, a.StartedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error appending phase attempt", "error", err,
			"payment_id", a.PaymentID, "phase", a.Phase, "attempt_number", a.AttemptNumber)
		return nil, err
	}
	return a, nil
}

func (r *pgAttemptRepository) Complete(ctx context.Context, id string, outcome domain.AttemptOutcome, gatewayCode, gatewayMessage *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE phase_attempts
		 SET outcome = $1, gateway_code = $2, gateway_message = $3, completed_at = $4
		 WHERE id = $5`,
		outcome, gatewayCode, gatewayMessage, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrAttemptNotFound
	}
	return nil
}

func (r *pgAttemptRepository) NextAttemptNumber(ctx context.Context, paymentID string, phase domain.PhaseKind) (int, error) {
	var maxAttempt int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(attempt_number), 0) FROM phase_attempts WHERE payment_id = $1 AND phase = $2`,
		paymentID, phase,
	).Scan(&maxAttempt)
	if err != nil {
		return 0, err
	}
	return maxAttempt + 1, nil
}

func (r *pgAttemptRepository) ListByPayment(ctx context.Context, paymentID string) ([]domain.PhaseAttempt, error) {
	query := `SELECT ` + attemptColumns + `
		FROM phase_attempts
		WHERE payment_id = $1
		ORDER BY started_at, attempt_number`
	rows, err := r.db.Query(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []domain.PhaseAttempt
	for rows.Next() {
		var a domain.PhaseAttempt
		err := rows.Scan(
			&a.ID, &a.PaymentID, &a.Phase, &a.AttemptNumber, &a.Outcome, &a.IdempotencyKey,
			&a.GatewayCode, &a.GatewayMessage, &a.StartedAt, &a.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *pgAttemptRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PhaseAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM phase_attempts WHERE idempotency_key = $1`
	var a domain.PhaseAttempt
	err := r.db.QueryRow(ctx, query, key).Scan(
		&a.ID, &a.PaymentID, &a.Phase, &a.AttemptNumber, &a.Outcome, &a.IdempotencyKey,
		&a.GatewayCode, &a.GatewayMessage, &a.StartedAt, &a.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrAttemptNotFound
		}
		return nil, err
	}
	return &a, nil
}
