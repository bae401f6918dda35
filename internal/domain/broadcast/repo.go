package broadcast

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, b *EmergencyBroadcast) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmergencyBroadcast, error)
	// Finalize writes the terminal fields of the sending->sent transition.
	Finalize(ctx context.Context, b *EmergencyBroadcast) error
	List(ctx context.Context, filter HistoryFilter, limit, offset int) ([]*EmergencyBroadcast, int, error)
}
