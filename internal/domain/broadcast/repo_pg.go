package broadcast

import (
	"context"
	"fmt"

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

const broadcastCols = `id, title, message, severity, type, sent_by, sender_name,
	target_roles, target_facilities, channels, status, sent_at, expires_at,
	recipient_count, success_count, failure_count, delivery_results, created_at`

func scanBroadcast(row pgx.Row) (*EmergencyBroadcast, error) {
	var b EmergencyBroadcast
	err := row.Scan(&b.ID, &b.Title, &b.Message, &b.Severity, &b.Type, &b.SentBy,
		&b.SenderName, &b.TargetRoles, &b.TargetFacilities, &b.Channels, &b.Status,
		&b.SentAt, &b.ExpiresAt, &b.RecipientCount, &b.SuccessCount, &b.FailureCount,
		&b.DeliveryResults, &b.CreatedAt)
	return &b, err
}

func (r *repoPG) Create(ctx context.Context, b *EmergencyBroadcast) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emergency_broadcast
			(id, title, message, severity, type, sent_by, sender_name,
			 target_roles, target_facilities, channels, status, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`,
		b.ID, b.Title, b.Message, b.Severity, b.Type, b.SentBy, b.SenderName,
		b.TargetRoles, b.TargetFacilities, b.Channels, b.Status, b.ExpiresAt,
	).Scan(&b.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*EmergencyBroadcast, error) {
	return scanBroadcast(r.conn(ctx).QueryRow(ctx,
		`SELECT `+broadcastCols+` FROM emergency_broadcast WHERE id = $1`, id))
}

func (r *repoPG) Finalize(ctx context.Context, b *EmergencyBroadcast) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_broadcast
		SET status=$2, sent_at=$3, recipient_count=$4, success_count=$5,
			failure_count=$6, delivery_results=$7
		WHERE id = $1 AND status = 'sending'`,
		b.ID, b.Status, b.SentAt, b.RecipientCount, b.SuccessCount,
		b.FailureCount, b.DeliveryResults)
	return err
}

func (r *repoPG) List(ctx context.Context, filter HistoryFilter, limit, offset int) ([]*EmergencyBroadcast, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	idx := 1
	if filter.Severity != "" {
		where += fmt.Sprintf(` AND severity = $%d`, idx)
		args = append(args, filter.Severity)
		idx++
	}
	if filter.Type != "" {
		where += fmt.Sprintf(` AND type = $%d`, idx)
		args = append(args, filter.Type)
		idx++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, filter.Status)
		idx++
	}

	q := r.conn(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM emergency_broadcast`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + broadcastCols + ` FROM emergency_broadcast` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var broadcasts []*EmergencyBroadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, 0, err
		}
		broadcasts = append(broadcasts, b)
	}
	return broadcasts, total, rows.Err()
}
