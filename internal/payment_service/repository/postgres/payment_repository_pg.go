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

const paymentColumns = `
	id, user_id, type, amount, currency_code, status, payment_method, network,
	sender_phone, receiver_phone, ext_biller_ref_id,
	ctm_transaction_id, mtc_transaction_id, atp_transaction_id, blp_transaction_id,
	reversal_transaction_id, needs_reconciliation, created_at, updated_at`

type pgPaymentRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgPaymentRepository creates a PaymentRepository backed by PostgreSQL.
func NewPgPaymentRepository(db *pgxpool.Pool, logger *slog.Logger) repository.PaymentRepository {
	return &pgPaymentRepository{db: db, logger: logger.With("repository", "payment_pg")}
}

func (r *pgPaymentRepository) Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = domain.StatusPending
	}

	query := `
		INSERT INTO payments (id, user_id, type, amount, currency_code, status, payment_method,
		                      network, sender_phone, receiver_phone, ext_biller_ref_id,
		                      needs_reconciliation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.UserID, p.Type, p.Amount, p.CurrencyCode, p.Status, p.PaymentMethod,
		p.Network, p.SenderPhone, p.ReceiverPhone, p.ExtBillerRefID,
		p.NeedsReconciliation, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating payment", "error", err, "payment_id", p.ID)
		return nil, err
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.Type, &p.Amount, &p.CurrencyCode, &p.Status, &p.PaymentMethod,
		&p.Network, &p.SenderPhone, &p.ReceiverPhone, &p.ExtBillerRefID,
		&p.CTMTransactionID, &p.MTCTransactionID, &p.ATPTransactionID, &p.BLPTransactionID,
		&p.ReversalTransactionID, &p.NeedsReconciliation, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *pgPaymentRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *pgPaymentRepository) GetByGatewayTxnID(ctx context.Context, exttrid string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE ctm_transaction_id = $1 OR mtc_transaction_id = $1 OR atp_transaction_id = $1
		   OR blp_transaction_id = $1 OR reversal_transaction_id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, exttrid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *pgPaymentRepository) ReadStatus(ctx context.Context, id string) (domain.PaymentStatus, error) {
	var status domain.PaymentStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM payments WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrPaymentNotFound
		}
		return "", err
	}
	return status, nil
}

func (r *pgPaymentRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.PaymentStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		next, time.Now().UTC(), id, expected,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error on status compare-and-set", "error", err, "payment_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or another worker moved it first.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return repository.ErrPaymentNotFound
		}
		return repository.ErrStatusConflict
	}
	return nil
}

func (r *pgPaymentRepository) AcquirePending(ctx context.Context, staleBefore time.Time, limit int) ([]domain.Payment, error) {
	// SKIP LOCKED keeps concurrent workers off each other's rows; the lock is
	// held only for the duration of this query, actual advancement is guarded
	// by the status CAS.
	// Any stale non-terminal row is recoverable: a worker can die between
	// committing an intermediate status (CTM_SUCCESS, MTC_FAILED, ...) and
	// taking the next step, not only mid-phase.
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'PENDING'
		   OR (status NOT IN ('SUCCESS', 'FAILED') AND updated_at < $1)
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`
	rows, err := r.db.Query(ctx, query, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *pgPaymentRepository) SetGatewayTxnID(ctx context.Context, id string, phase domain.PhaseKind, gatewayTxnID string) error {
	var column string
	switch phase {
	case domain.PhaseCTM:
		column = "ctm_transaction_id"
	case domain.PhaseMTC:
		column = "mtc_transaction_id"
	case domain.PhaseATP:
		column = "atp_transaction_id"
	case domain.PhaseBLP:
		column = "blp_transaction_id"
	default:
		column = "reversal_transaction_id"
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET `+column+` = $1, updated_at = $2 WHERE id = $3`,
		gatewayTxnID, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrPaymentNotFound
	}
	return nil
}

func (r *pgPaymentRepository) MarkNeedsReconciliation(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET needs_reconciliation = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrPaymentNotFound
	}
	return nil
}
