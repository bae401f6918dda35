// Package notification persists per-user notification records and exposes
// read-state management, direct sending over delivery channels, and owner
// statistics.
package notification

import (
	"time"

	"github.com/google/uuid"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var validPriorities = map[string]bool{
	PriorityLow:    true,
	PriorityNormal: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}

// Read-state filter values.
const (
	StatusUnread = "unread"
	StatusRead   = "read"
)

// Notification is one per-user record. Data is a free-form map whose key
// names (title, message, priority, category, actionUrl, actionText, icon,
// senderId, senderName) are part of the stored shape and must not change.
type Notification struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	OwnerUserID uuid.UUID      `db:"owner_user_id" json:"owner_user_id"`
	Type        string         `db:"type" json:"type"`
	Data        map[string]any `db:"data" json:"data"`
	ReadAt      *time.Time     `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// IsRead reports whether the notification has been read.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// ListFilter narrows a notification listing. Zero values match everything.
type ListFilter struct {
	Type     string
	Status   string // unread | read
	Priority string
}

// Statistics summarizes one owner's notifications.
type Statistics struct {
	Total      int            `json:"total"`
	Unread     int            `json:"unread"`
	Read       int            `json:"read"`
	Today      int            `json:"today"`
	ThisWeek   int            `json:"this_week"`
	ByPriority map[string]int `json:"by_priority"`
	ByCategory map[string]int `json:"by_category"`
}
