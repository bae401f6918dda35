package chat

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

type roomRepoPG struct{ pool *pgxpool.Pool }

func NewRoomRepoPG(pool *pgxpool.Pool) RoomRepository {
	return &roomRepoPG{pool: pool}
}

const roomCols = `id, name, type, description, created_by, is_active, is_private,
	settings, last_activity_at, last_message_id, created_at, updated_at`

func scanRoom(row pgx.Row) (*ChatRoom, error) {
	var r ChatRoom
	err := row.Scan(&r.ID, &r.Name, &r.Type, &r.Description, &r.CreatedBy,
		&r.IsActive, &r.IsPrivate, &r.Settings, &r.LastActivityAt,
		&r.LastMessageID, &r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (r *roomRepoPG) Create(ctx context.Context, room *ChatRoom) error {
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO chat_room (id, name, type, description, created_by, is_active, is_private, settings)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		room.ID, room.Name, room.Type, room.Description, room.CreatedBy,
		room.IsActive, room.IsPrivate, room.Settings)
	return err
}

func (r *roomRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ChatRoom, error) {
	return scanRoom(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+roomCols+` FROM chat_room WHERE id = $1 AND is_active = TRUE`, id))
}

func (r *roomRepoPG) Update(ctx context.Context, room *ChatRoom) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE chat_room SET name=$2, description=$3, is_private=$4, settings=$5, updated_at=NOW()
		WHERE id = $1`,
		room.ID, room.Name, room.Description, room.IsPrivate, room.Settings)
	return err
}

func (r *roomRepoPG) TouchActivity(ctx context.Context, roomID, lastMessageID uuid.UUID, at time.Time) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE chat_room SET last_activity_at=$2, last_message_id=$3, updated_at=NOW()
		WHERE id = $1`,
		roomID, at, lastMessageID)
	return err
}

func (r *roomRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChatRoom, int, error) {
	q := connFor(ctx, r.pool)
	var total int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM chat_room cr
		JOIN chat_participant cp ON cp.room_id = cr.id
		WHERE cp.user_id = $1 AND cr.is_active = TRUE`, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT cr.id, cr.name, cr.type, cr.description, cr.created_by, cr.is_active, cr.is_private,
			cr.settings, cr.last_activity_at, cr.last_message_id, cr.created_at, cr.updated_at
		FROM chat_room cr
		JOIN chat_participant cp ON cp.room_id = cr.id
		WHERE cp.user_id = $1 AND cr.is_active = TRUE
		ORDER BY cr.last_activity_at DESC NULLS LAST, cr.created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var rooms []*ChatRoom
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, room)
	}
	return rooms, total, rows.Err()
}

func (r *roomRepoPG) FindIndividualRoom(ctx context.Context, userA, userB uuid.UUID) (*ChatRoom, error) {
	room, err := scanRoom(connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT `+roomCols+` FROM chat_room
		WHERE type = 'individual' AND is_active = TRUE
		  AND id IN (SELECT room_id FROM chat_participant WHERE user_id = $1)
		  AND id IN (SELECT room_id FROM chat_participant WHERE user_id = $2)
		LIMIT 1`, userA, userB))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

type participantRepoPG struct{ pool *pgxpool.Pool }

func NewParticipantRepoPG(pool *pgxpool.Pool) ParticipantRepository {
	return &participantRepoPG{pool: pool}
}

const participantCols = `id, room_id, user_id, role, joined_at`

func scanParticipant(row pgx.Row) (*ChatParticipant, error) {
	var p ChatParticipant
	err := row.Scan(&p.ID, &p.RoomID, &p.UserID, &p.Role, &p.JoinedAt)
	return &p, err
}

func (r *participantRepoPG) Add(ctx context.Context, p *ChatParticipant) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO chat_participant (id, room_id, user_id, role, joined_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (room_id, user_id) DO NOTHING`,
		p.ID, p.RoomID, p.UserID, p.Role, p.JoinedAt)
	return err
}

func (r *participantRepoPG) Get(ctx context.Context, roomID, userID uuid.UUID) (*ChatParticipant, error) {
	p, err := scanParticipant(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+participantCols+` FROM chat_participant WHERE room_id = $1 AND user_id = $2`,
		roomID, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *participantRepoPG) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*ChatParticipant, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+participantCols+` FROM chat_participant WHERE room_id = $1 ORDER BY joined_at`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var participants []*ChatParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *participantRepoPG) Remove(ctx context.Context, roomID, userID uuid.UUID) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`DELETE FROM chat_participant WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	return err
}

func (r *participantRepoPG) UpdateRole(ctx context.Context, roomID, userID uuid.UUID, role string) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE chat_participant SET role = $3 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, role)
	return err
}

func (r *participantRepoPG) CountAdmins(ctx context.Context, roomID uuid.UUID) (int, error) {
	var count int
	err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_participant WHERE room_id = $1 AND role = 'admin'`, roomID).Scan(&count)
	return count, err
}

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

const messageCols = `id, room_id, sender_id, body, message_type, is_system_message,
	reply_to_id, priority, metadata, created_at`

func scanMessage(row pgx.Row) (*ChatMessage, error) {
	var m ChatMessage
	err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Body, &m.MessageType,
		&m.IsSystemMessage, &m.ReplyToID, &m.Priority, &m.Metadata, &m.CreatedAt)
	return &m, err
}

func (r *messageRepoPG) Create(ctx context.Context, m *ChatMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO chat_message (id, room_id, sender_id, body, message_type, is_system_message, reply_to_id, priority, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		m.ID, m.RoomID, m.SenderID, m.Body, m.MessageType, m.IsSystemMessage,
		m.ReplyToID, m.Priority, m.Metadata).Scan(&m.CreatedAt)
}

func (r *messageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ChatMessage, error) {
	return scanMessage(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+messageCols+` FROM chat_message WHERE id = $1`, id))
}

func (r *messageRepoPG) ListByRoom(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*ChatMessage, int, error) {
	q := connFor(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM chat_message WHERE room_id = $1`, roomID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT `+messageCols+` FROM chat_message
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, roomID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var messages []*ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, m)
	}
	return messages, total, rows.Err()
}

func (r *messageRepoPG) UnreadMessageIDs(ctx context.Context, roomID, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT m.id FROM chat_message m
		WHERE m.room_id = $1 AND m.sender_id <> $2
		  AND NOT EXISTS (
			SELECT 1 FROM message_read mr WHERE mr.message_id = m.id AND mr.user_id = $2
		  )`, roomID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *messageRepoPG) MarkRead(ctx context.Context, messageIDs []uuid.UUID, userID uuid.UUID, readAt time.Time) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO message_read (message_id, user_id, read_at)
		SELECT unnest($1::uuid[]), $2, $3
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageIDs, userID, readAt)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type attachmentRepoPG struct{ pool *pgxpool.Pool }

func NewAttachmentRepoPG(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepoPG{pool: pool}
}

const attachmentCols = `id, message_id, filename, original_name, storage_path, size, mime_type, type, url, created_at`

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.MessageID, &a.Filename, &a.OriginalName, &a.StoragePath,
		&a.Size, &a.MimeType, &a.Type, &a.URL, &a.CreatedAt)
	return &a, err
}

func (r *attachmentRepoPG) Create(ctx context.Context, a *Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO chat_attachment (id, message_id, filename, original_name, storage_path, size, mime_type, type, url)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.MessageID, a.Filename, a.OriginalName, a.StoragePath,
		a.Size, a.MimeType, a.Type, a.URL)
	return err
}

func (r *attachmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	return scanAttachment(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+attachmentCols+` FROM chat_attachment WHERE id = $1`, id))
}

func (r *attachmentRepoPG) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]*Attachment, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+attachmentCols+` FROM chat_attachment WHERE message_id = $1 ORDER BY created_at`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attachments []*Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func (r *attachmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `DELETE FROM chat_attachment WHERE id = $1`, id)
	return err
}
