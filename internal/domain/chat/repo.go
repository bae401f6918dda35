package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RoomRepository interface {
	Create(ctx context.Context, room *ChatRoom) error
	GetByID(ctx context.Context, id uuid.UUID) (*ChatRoom, error)
	Update(ctx context.Context, room *ChatRoom) error
	// TouchActivity updates the denormalized last-activity fields.
	TouchActivity(ctx context.Context, roomID, lastMessageID uuid.UUID, at time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChatRoom, int, error)
	// FindIndividualRoom returns the existing individual room containing both
	// users, or (nil, nil) when none exists.
	FindIndividualRoom(ctx context.Context, userA, userB uuid.UUID) (*ChatRoom, error)
}

type ParticipantRepository interface {
	Add(ctx context.Context, p *ChatParticipant) error
	// Get returns (nil, nil) when the user is not a participant.
	Get(ctx context.Context, roomID, userID uuid.UUID) (*ChatParticipant, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*ChatParticipant, error)
	Remove(ctx context.Context, roomID, userID uuid.UUID) error
	UpdateRole(ctx context.Context, roomID, userID uuid.UUID, role string) error
	CountAdmins(ctx context.Context, roomID uuid.UUID) (int, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *ChatMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*ChatMessage, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*ChatMessage, int, error)
	// UnreadMessageIDs returns ids of messages in the room the user has not
	// read, excluding the user's own messages.
	UnreadMessageIDs(ctx context.Context, roomID, userID uuid.UUID) ([]uuid.UUID, error)
	// MarkRead attaches read records idempotently and returns the number of
	// newly created records.
	MarkRead(ctx context.Context, messageIDs []uuid.UUID, userID uuid.UUID, readAt time.Time) (int, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, a *Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]*Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
