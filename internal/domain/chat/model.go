// Package chat implements rooms, participants, messages with attachments,
// and per-user read tracking for staff coordination.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Room types.
const (
	RoomTypeIndividual = "individual"
	RoomTypeGroup      = "group"
	RoomTypeEmergency  = "emergency"
	RoomTypeDepartment = "department"
)

// Participant roles.
const (
	ParticipantAdmin  = "admin"
	ParticipantMember = "member"
)

// Message types.
const (
	MessageText     = "text"
	MessageImage    = "image"
	MessageFile     = "file"
	MessageVoice    = "voice"
	MessageVideo    = "video"
	MessageLocation = "location"
	MessageSystem   = "system"
)

// Message priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// MaxRoomNameLen bounds room names.
const MaxRoomNameLen = 255

var validRoomTypes = map[string]bool{
	RoomTypeIndividual: true,
	RoomTypeGroup:      true,
	RoomTypeEmergency:  true,
	RoomTypeDepartment: true,
}

var validMessageTypes = map[string]bool{
	MessageText:     true,
	MessageImage:    true,
	MessageFile:     true,
	MessageVoice:    true,
	MessageVideo:    true,
	MessageLocation: true,
	MessageSystem:   true,
}

var validPriorities = map[string]bool{
	PriorityLow:    true,
	PriorityNormal: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}

// RoomSettings is persisted as JSONB. Key names are part of the stored shape
// and must not change.
type RoomSettings struct {
	AllowFileSharing     bool `json:"allowFileSharing"`
	AllowVoiceMessages   bool `json:"allowVoiceMessages"`
	MessageRetentionDays int  `json:"messageRetentionDays"`
	MaxParticipants      int  `json:"maxParticipants"`
}

// DefaultRoomSettings returns the settings applied to new rooms.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AllowFileSharing:     true,
		AllowVoiceMessages:   true,
		MessageRetentionDays: 365,
		MaxParticipants:      100,
	}
}

// ChatRoom represents a conversation between staff members.
type ChatRoom struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	Name           string       `db:"name" json:"name"`
	Type           string       `db:"type" json:"type"`
	Description    *string      `db:"description" json:"description,omitempty"`
	CreatedBy      uuid.UUID    `db:"created_by" json:"created_by"`
	IsActive       bool         `db:"is_active" json:"is_active"`
	IsPrivate      bool         `db:"is_private" json:"is_private"`
	Settings       RoomSettings `db:"settings" json:"settings"`
	LastActivityAt *time.Time   `db:"last_activity_at" json:"last_activity_at,omitempty"`
	LastMessageID  *uuid.UUID   `db:"last_message_id" json:"last_message_id,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// ChatParticipant is a (room, user) membership row.
type ChatParticipant struct {
	ID       uuid.UUID `db:"id" json:"id"`
	RoomID   uuid.UUID `db:"room_id" json:"room_id"`
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// ChatMessage is a single message in a room. System messages are
// auto-generated; their sender is the actor whose action triggered them.
type ChatMessage struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	RoomID          uuid.UUID      `db:"room_id" json:"room_id"`
	SenderID        uuid.UUID      `db:"sender_id" json:"sender_id"`
	Body            string         `db:"body" json:"body"`
	MessageType     string         `db:"message_type" json:"message_type"`
	IsSystemMessage bool           `db:"is_system_message" json:"is_system_message"`
	ReplyToID       *uuid.UUID     `db:"reply_to_id" json:"reply_to_id,omitempty"`
	Priority        string         `db:"priority" json:"priority"`
	Metadata        map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// MessageRead records that a user has read a message, at most once per pair.
type MessageRead struct {
	MessageID uuid.UUID `db:"message_id" json:"message_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	ReadAt    time.Time `db:"read_at" json:"read_at"`
}

// Attachment is a file stored alongside a message. Deleting an attachment
// does not delete its parent message.
type Attachment struct {
	ID           uuid.UUID `db:"id" json:"id"`
	MessageID    uuid.UUID `db:"message_id" json:"message_id"`
	Filename     string    `db:"filename" json:"filename"`
	OriginalName string    `db:"original_name" json:"original_name"`
	StoragePath  string    `db:"storage_path" json:"storage_path"`
	Size         int64     `db:"size" json:"size"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	Type         string    `db:"type" json:"type"`
	URL          string    `db:"url" json:"url"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DeriveAttachmentType classifies a MIME type into the coarse attachment
// categories used by clients.
func DeriveAttachmentType(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case mimeType == "application/pdf",
		mimeType == "application/msword",
		strings.HasPrefix(mimeType, "application/vnd.openxmlformats-officedocument"),
		mimeType == "text/plain":
		return "document"
	default:
		return "file"
	}
}
