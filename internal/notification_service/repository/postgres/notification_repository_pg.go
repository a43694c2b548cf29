package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autobus/autobus-backend/internal/notification_service/domain"
)

var ErrNotificationNotFound = errors.New("notification not found")

type pgNotificationRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPgNotificationRepository creates a NotificationRepository backed by PostgreSQL.
func NewPgNotificationRepository(db *pgxpool.Pool, logger *slog.Logger) domain.NotificationRepository {
	return &pgNotificationRepository{db: db, logger: logger.With("repository", "notification_pg")}
}

func (r *pgNotificationRepository) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO notifications (id, user_id, payment_id, status, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, n.ID, n.UserID, n.PaymentID, n.Status, n.Message, n.Read, n.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating notification", "error", err, "user_id", n.UserID)
		return nil, err
	}
	return n, nil
}

func (r *pgNotificationRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]domain.Notification, error) {
	query := `
		SELECT id, user_id, payment_id, status, message, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.PaymentID, &n.Status, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *pgNotificationRepository) MarkRead(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
