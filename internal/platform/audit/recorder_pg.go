package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PGRecorder writes audit entries to the audit_log table and mirrors each
// entry to the structured log.
type PGRecorder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPGRecorder(pool *pgxpool.Pool, logger zerolog.Logger) *PGRecorder {
	return &PGRecorder{pool: pool, logger: logger}
}

func (r *PGRecorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}

	r.log(entry)

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}

	const query = `
		INSERT INTO audit_log (
			id, action, subject, actor_id, actor_name,
			severity, message, metadata, ip_address, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	if _, err := r.pool.Exec(ctx, query,
		entry.ID, entry.Action, entry.Subject, entry.ActorID, entry.ActorName,
		string(entry.Severity), entry.Message, metadata, entry.IPAddress, entry.RecordedAt,
	); err != nil {
		r.logger.Error().Err(err).
			Str("action", entry.Action).
			Str("subject", entry.Subject).
			Msg("failed to persist audit entry")
	}
}

func (r *PGRecorder) log(entry Entry) {
	evt := r.logger.Info()
	switch entry.Severity {
	case SeverityWarning:
		evt = r.logger.Warn()
	case SeverityCritical:
		evt = r.logger.Error()
	}
	evt.
		Str("type", "audit").
		Str("action", entry.Action).
		Str("subject", entry.Subject).
		Str("actor_id", entry.ActorID.String()).
		Str("actor_name", entry.ActorName).
		Str("severity", string(entry.Severity)).
		Msg(entry.Message)
}
