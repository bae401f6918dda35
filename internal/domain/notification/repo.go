package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	// GetOwned returns (nil, nil) when the notification does not exist or
	// belongs to someone else.
	GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*Notification, error)
	List(ctx context.Context, ownerID uuid.UUID, filter ListFilter, limit, offset int) ([]*Notification, int, error)
	UnreadCount(ctx context.Context, ownerID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, ownerID uuid.UUID, at time.Time) error
	// MarkAllRead sets read_at on every unread row owned by ownerID and
	// returns the number affected.
	MarkAllRead(ctx context.Context, ownerID uuid.UUID, at time.Time) (int, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	Stats(ctx context.Context, ownerID uuid.UUID, now time.Time) (*Statistics, error)
}
