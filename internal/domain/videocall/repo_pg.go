package videocall

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

type callRepoPG struct{ pool *pgxpool.Pool }

func NewCallRepoPG(pool *pgxpool.Pool) CallRepository {
	return &callRepoPG{pool: pool}
}

const callCols = `id, call_id, room_id, initiator_id, type, title, status,
	scheduled_at, duration_minutes, settings, started_at, ended_at, ended_by, created_at`

func scanCall(row pgx.Row) (*VideoCall, error) {
	var c VideoCall
	err := row.Scan(&c.ID, &c.CallID, &c.RoomID, &c.InitiatorID, &c.Type, &c.Title,
		&c.Status, &c.ScheduledAt, &c.DurationMinutes, &c.Settings, &c.StartedAt,
		&c.EndedAt, &c.EndedBy, &c.CreatedAt)
	return &c, err
}

func (r *callRepoPG) Create(ctx context.Context, call *VideoCall) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO video_call
			(id, call_id, room_id, initiator_id, type, title, status,
			 scheduled_at, duration_minutes, settings)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		call.ID, call.CallID, call.RoomID, call.InitiatorID, call.Type, call.Title,
		call.Status, call.ScheduledAt, call.DurationMinutes, call.Settings,
	).Scan(&call.CreatedAt)
}

func (r *callRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*VideoCall, error) {
	return scanCall(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+callCols+` FROM video_call WHERE id = $1`, id))
}

func (r *callRepoPG) Update(ctx context.Context, call *VideoCall) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE video_call
		SET status=$2, started_at=$3, ended_at=$4, ended_by=$5, settings=$6
		WHERE id = $1`,
		call.ID, call.Status, call.StartedAt, call.EndedAt, call.EndedBy, call.Settings)
	return err
}

func (r *callRepoPG) MarkInProgress(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE video_call SET status = 'in_progress', started_at = $2
		WHERE id = $1 AND status IN ('initiated','scheduled')`,
		id, startedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *callRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*VideoCall, int, error) {
	q := connFor(ctx, r.pool)
	var total int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM video_call vc
		JOIN call_participant cp ON cp.call_id = vc.id
		WHERE cp.user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT vc.id, vc.call_id, vc.room_id, vc.initiator_id, vc.type, vc.title, vc.status,
			vc.scheduled_at, vc.duration_minutes, vc.settings, vc.started_at, vc.ended_at,
			vc.ended_by, vc.created_at
		FROM video_call vc
		JOIN call_participant cp ON cp.call_id = vc.id
		WHERE cp.user_id = $1
		ORDER BY vc.created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var calls []*VideoCall
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		calls = append(calls, c)
	}
	return calls, total, rows.Err()
}

type participantRepoPG struct{ pool *pgxpool.Pool }

func NewParticipantRepoPG(pool *pgxpool.Pool) ParticipantRepository {
	return &participantRepoPG{pool: pool}
}

const callParticipantCols = `id, call_id, user_id, status, is_host, joined_at, left_at,
	is_screen_sharing, screen_sharing_started_at, screen_sharing_stopped_at`

func scanCallParticipant(row pgx.Row) (*CallParticipant, error) {
	var p CallParticipant
	err := row.Scan(&p.ID, &p.CallID, &p.UserID, &p.Status, &p.IsHost, &p.JoinedAt,
		&p.LeftAt, &p.IsScreenSharing, &p.ScreenSharingStartedAt, &p.ScreenSharingStoppedAt)
	return &p, err
}

func (r *participantRepoPG) Add(ctx context.Context, p *CallParticipant) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO call_participant (id, call_id, user_id, status, is_host, joined_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (call_id, user_id) DO NOTHING`,
		p.ID, p.CallID, p.UserID, p.Status, p.IsHost, p.JoinedAt)
	return err
}

func (r *participantRepoPG) Get(ctx context.Context, callID, userID uuid.UUID) (*CallParticipant, error) {
	p, err := scanCallParticipant(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+callParticipantCols+` FROM call_participant WHERE call_id = $1 AND user_id = $2`,
		callID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *participantRepoPG) ListByCall(ctx context.Context, callID uuid.UUID) ([]*CallParticipant, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+callParticipantCols+` FROM call_participant WHERE call_id = $1 ORDER BY joined_at NULLS LAST`,
		callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var participants []*CallParticipant
	for rows.Next() {
		p, err := scanCallParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *participantRepoPG) MarkJoined(ctx context.Context, callID, userID uuid.UUID, at time.Time) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE call_participant SET status = 'joined', joined_at = $3
		WHERE call_id = $1 AND user_id = $2 AND status <> 'joined'`,
		callID, userID, at)
	return err
}

func (r *participantRepoPG) MarkAllLeft(ctx context.Context, callID uuid.UUID, at time.Time) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE call_participant
		SET status = 'left', left_at = $2, is_screen_sharing = FALSE
		WHERE call_id = $1 AND status <> 'left'`,
		callID, at)
	return err
}

// StartScreenSharing claims the slot with a single conditional update so two
// concurrent callers can never both pass a check-then-set.
func (r *participantRepoPG) StartScreenSharing(ctx context.Context, callID, userID uuid.UUID, at time.Time) (bool, error) {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE call_participant
		SET is_screen_sharing = TRUE, screen_sharing_started_at = $3, screen_sharing_stopped_at = NULL
		WHERE call_id = $1 AND user_id = $2 AND status = 'joined'
		  AND NOT EXISTS (
			SELECT 1 FROM call_participant
			WHERE call_id = $1 AND is_screen_sharing = TRUE
		  )`,
		callID, userID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *participantRepoPG) StopScreenSharing(ctx context.Context, callID, userID uuid.UUID, at time.Time) (bool, error) {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE call_participant
		SET is_screen_sharing = FALSE, screen_sharing_stopped_at = $3
		WHERE call_id = $1 AND user_id = $2 AND is_screen_sharing = TRUE`,
		callID, userID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *participantRepoPG) CurrentSharer(ctx context.Context, callID uuid.UUID) (*CallParticipant, error) {
	p, err := scanCallParticipant(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+callParticipantCols+` FROM call_participant WHERE call_id = $1 AND is_screen_sharing = TRUE`,
		callID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
