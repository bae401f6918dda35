// Package audit records who did what across the coordination API. Entries are
// written both to the audit_log table and to the structured log so the trail
// survives even when the database write fails.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Entry is a single audit record. Subject identifies the affected resource as
// "<kind>:<id>", e.g. "chat_room:6f1e..." or "broadcast:ab42...".
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	Action     string         `json:"action"`
	Subject    string         `json:"subject"`
	ActorID    uuid.UUID      `json:"actor_id"`
	ActorName  string         `json:"actor_name"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Recorder persists audit entries. Record must not fail the caller's
// operation: implementations log and swallow their own errors.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}
