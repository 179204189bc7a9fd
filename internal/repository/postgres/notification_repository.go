package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/felixhub/workshop/internal/domain/notification"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepository implements notification.Repository on the
// append-only notification_log table.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// db ignores any transaction carried by ctx. A record describes a delivery
// that already happened and must not roll back with the caller's work.
func (r *NotificationRepository) db() DBTX {
	return r.pool
}

func (r *NotificationRepository) Insert(ctx context.Context, rec *notification.Record) error {
	_, err := r.db().Exec(ctx,
		`INSERT INTO notification_log
		 (id, notification_type, subject_id, recipient_id, content_hash, sent_at, success, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, string(rec.Type), rec.SubjectID, rec.RecipientID, rec.ContentHash,
		rec.SentAt, rec.Success, rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert notification record: %w", err)
	}
	return nil
}

func (r *NotificationRepository) HasRecentSuccess(ctx context.Context, hash string, since time.Time) (bool, error) {
	var exists bool
	err := r.db().QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM notification_log
		   WHERE content_hash = $1 AND success AND sent_at >= $2
		 )`, hash, since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent notification: %w", err)
	}
	return exists, nil
}

func (r *NotificationRepository) StatsByType(ctx context.Context, since time.Time) ([]notification.Stats, error) {
	rows, err := r.db().Query(ctx,
		`SELECT notification_type, COUNT(*), COUNT(*) FILTER (WHERE success)
		 FROM notification_log
		 WHERE sent_at >= $1
		 GROUP BY notification_type
		 ORDER BY notification_type`, since,
	)
	if err != nil {
		return nil, fmt.Errorf("notification stats: %w", err)
	}
	defer rows.Close()

	var stats []notification.Stats
	for rows.Next() {
		var s notification.Stats
		var t string
		if err := rows.Scan(&t, &s.Total, &s.Successful); err != nil {
			return nil, fmt.Errorf("scan notification stats: %w", err)
		}
		s.Type = notification.Type(t)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *NotificationRepository) ListFailures(ctx context.Context, since time.Time, limit int) ([]*notification.Record, error) {
	rows, err := r.db().Query(ctx,
		`SELECT id, notification_type, subject_id, recipient_id, content_hash, sent_at, success, error_message
		 FROM notification_log
		 WHERE NOT success AND sent_at >= $1
		 ORDER BY sent_at DESC
		 LIMIT $2`, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notification failures: %w", err)
	}
	defer rows.Close()

	var records []*notification.Record
	for rows.Next() {
		rec := &notification.Record{}
		var t string
		if err := rows.Scan(&rec.ID, &t, &rec.SubjectID, &rec.RecipientID, &rec.ContentHash, &rec.SentAt, &rec.Success, &rec.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan notification record: %w", err)
		}
		rec.Type = notification.Type(t)
		records = append(records, rec)
	}
	return records, rows.Err()
}
