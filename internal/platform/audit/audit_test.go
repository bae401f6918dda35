package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryRecorder_FillsDefaults(t *testing.T) {
	rec := NewMemoryRecorder()
	rec.Record(context.Background(), Entry{
		Action:  "chat.room.created",
		Subject: "chat_room:" + uuid.NewString(),
	})

	entries := rec.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID == uuid.Nil {
		t.Error("expected generated ID")
	}
	if e.RecordedAt.IsZero() {
		t.Error("expected recorded-at timestamp")
	}
	if e.Severity != SeverityInfo {
		t.Errorf("severity = %q, want info", e.Severity)
	}
}

func TestMemoryRecorder_ByAction(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()
	rec.Record(ctx, Entry{Action: "broadcast.sent", Severity: SeverityCritical})
	rec.Record(ctx, Entry{Action: "chat.message.sent"})
	rec.Record(ctx, Entry{Action: "broadcast.sent"})

	got := rec.ByAction("broadcast.sent")
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical", got[0].Severity)
	}
}
