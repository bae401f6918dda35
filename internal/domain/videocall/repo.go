package videocall

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CallRepository interface {
	Create(ctx context.Context, call *VideoCall) error
	GetByID(ctx context.Context, id uuid.UUID) (*VideoCall, error)
	Update(ctx context.Context, call *VideoCall) error
	// MarkInProgress transitions scheduled|initiated->in_progress atomically
	// and reports whether this call performed the transition.
	MarkInProgress(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*VideoCall, int, error)
}

type ParticipantRepository interface {
	Add(ctx context.Context, p *CallParticipant) error
	// Get returns (nil, nil) when the user has no participant row.
	Get(ctx context.Context, callID, userID uuid.UUID) (*CallParticipant, error)
	ListByCall(ctx context.Context, callID uuid.UUID) ([]*CallParticipant, error)
	MarkJoined(ctx context.Context, callID, userID uuid.UUID, at time.Time) error
	// MarkAllLeft transitions every non-left participant to left.
	MarkAllLeft(ctx context.Context, callID uuid.UUID, at time.Time) error
	// StartScreenSharing conditionally claims the call's screen-share slot.
	// It reports false without error when another participant already holds
	// it; the check and the claim are one atomic update.
	StartScreenSharing(ctx context.Context, callID, userID uuid.UUID, at time.Time) (bool, error)
	// StopScreenSharing releases the slot and reports whether the user held
	// it.
	StopScreenSharing(ctx context.Context, callID, userID uuid.UUID, at time.Time) (bool, error)
	// CurrentSharer returns (nil, nil) when nobody is sharing.
	CurrentSharer(ctx context.Context, callID uuid.UUID) (*CallParticipant, error)
}
