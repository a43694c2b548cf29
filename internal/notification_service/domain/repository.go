package domain

import "context"

// NotificationRepository stores and lists user notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) (*Notification, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]Notification, error)
	MarkRead(ctx context.Context, id string) error
}
