// Package broadcast fans emergency alerts out to the active staff roster
// over the configured delivery channels, tracking per-recipient outcomes.
package broadcast

import (
	"time"

	"github.com/google/uuid"
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const (
	TypeMedicalEmergency = "medical_emergency"
	TypeSystemAlert      = "system_alert"
	TypeSecurityAlert    = "security_alert"
	TypeWeatherAlert     = "weather_alert"
	TypeEvacuation       = "evacuation"
)

const (
	StatusSending = "sending"
	StatusSent    = "sent"
)

const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

var validSeverities = map[string]bool{
	SeverityLow:      true,
	SeverityMedium:   true,
	SeverityHigh:     true,
	SeverityCritical: true,
}

var validTypes = map[string]bool{
	TypeMedicalEmergency: true,
	TypeSystemAlert:      true,
	TypeSecurityAlert:    true,
	TypeWeatherAlert:     true,
	TypeEvacuation:       true,
}

// DeliveryResult records one recipient's outcome. Key names are part of the
// stored JSONB shape and must not change.
type DeliveryResult struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
	Outcome  string    `json:"outcome"`
}

// EmergencyBroadcast is one fan-out run. The record is created with
// status=sending and becomes immutable once status=sent, except that
// recipient_count, success_count, failure_count, delivery_results and
// sent_at are written as part of that final transition.
type EmergencyBroadcast struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	Title            string           `db:"title" json:"title"`
	Message          string           `db:"message" json:"message"`
	Severity         string           `db:"severity" json:"severity"`
	Type             string           `db:"type" json:"type"`
	SentBy           uuid.UUID        `db:"sent_by" json:"sent_by"`
	SenderName       string           `db:"sender_name" json:"sender_name"`
	TargetRoles      []string         `db:"target_roles" json:"target_roles"`
	TargetFacilities []uuid.UUID      `db:"target_facilities" json:"target_facilities"`
	Channels         []string         `db:"channels" json:"channels"`
	Status           string           `db:"status" json:"status"`
	SentAt           *time.Time       `db:"sent_at" json:"sent_at,omitempty"`
	ExpiresAt        *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	RecipientCount   int              `db:"recipient_count" json:"recipient_count"`
	SuccessCount     int              `db:"success_count" json:"success_count"`
	FailureCount     int              `db:"failure_count" json:"failure_count"`
	DeliveryResults  []DeliveryResult `db:"delivery_results" json:"delivery_results"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// HistoryFilter narrows the broadcast history listing. Zero values match
// everything.
type HistoryFilter struct {
	Severity string
	Type     string
	Status   string
}
