package notification

import (
	"context"
	"fmt"
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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const notificationCols = `id, owner_user_id, type, data, read_at, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.OwnerUserID, &n.Type, &n.Data, &n.ReadAt, &n.CreatedAt)
	return &n, err
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notification (id, owner_user_id, type, data)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		n.ID, n.OwnerUserID, n.Type, n.Data).Scan(&n.CreatedAt)
}

func (r *repoPG) GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*Notification, error) {
	n, err := scanNotification(r.conn(ctx).QueryRow(ctx,
		`SELECT `+notificationCols+` FROM notification WHERE id = $1 AND owner_user_id = $2`,
		id, ownerID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *repoPG) List(ctx context.Context, ownerID uuid.UUID, filter ListFilter, limit, offset int) ([]*Notification, int, error) {
	where := ` WHERE owner_user_id = $1`
	args := []interface{}{ownerID}
	idx := 2
	if filter.Type != "" {
		where += fmt.Sprintf(` AND type = $%d`, idx)
		args = append(args, filter.Type)
		idx++
	}
	switch filter.Status {
	case StatusUnread:
		where += ` AND read_at IS NULL`
	case StatusRead:
		where += ` AND read_at IS NOT NULL`
	}
	if filter.Priority != "" {
		where += fmt.Sprintf(` AND data->>'priority' = $%d`, idx)
		args = append(args, filter.Priority)
		idx++
	}

	q := r.conn(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM notification`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + notificationCols + ` FROM notification` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}
	return notifications, total, rows.Err()
}

func (r *repoPG) UnreadCount(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE owner_user_id = $1 AND read_at IS NULL`,
		ownerID).Scan(&count)
	return count, err
}

func (r *repoPG) MarkRead(ctx context.Context, id, ownerID uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE notification SET read_at = $3
		WHERE id = $1 AND owner_user_id = $2 AND read_at IS NULL`,
		id, ownerID, at)
	return err
}

func (r *repoPG) MarkAllRead(ctx context.Context, ownerID uuid.UUID, at time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notification SET read_at = $2
		WHERE owner_user_id = $1 AND read_at IS NULL`,
		ownerID, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM notification WHERE id = $1 AND owner_user_id = $2`, id, ownerID)
	return err
}

func (r *repoPG) Stats(ctx context.Context, ownerID uuid.UUID, now time.Time) (*Statistics, error) {
	q := r.conn(ctx)
	stats := &Statistics{
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := now.AddDate(0, 0, -7)

	err := q.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE read_at IS NULL),
			COUNT(*) FILTER (WHERE read_at IS NOT NULL),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE created_at >= $3)
		FROM notification WHERE owner_user_id = $1`,
		ownerID, dayStart, weekStart,
	).Scan(&stats.Total, &stats.Unread, &stats.Read, &stats.Today, &stats.ThisWeek)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT COALESCE(data->>'priority', 'normal'), COUNT(*)
		FROM notification WHERE owner_user_id = $1
		GROUP BY 1`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var priority string
		var count int
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, err
		}
		stats.ByPriority[priority] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT COALESCE(data->>'category', 'general'), COUNT(*)
		FROM notification WHERE owner_user_id = $1
		GROUP BY 1`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = count
	}
	return stats, rows.Err()
}
