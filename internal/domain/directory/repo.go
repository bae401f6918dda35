package directory

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	// FindActive returns active users filtered by role and facility. Empty
	// filter slices match everything.
	FindActive(ctx context.Context, roles []string, facilityIDs []uuid.UUID) ([]*User, error)
}
