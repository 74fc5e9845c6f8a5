package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vigilearn/examguard-backend/internal/model"
)

// NotificationRepository handles notification data access.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// ListByRecipient retrieves a user's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID, limit, offset int) ([]model.Notification, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`, recipientID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, recipient_id, type, title, message, exam_id, is_read, read_at, created_at
		 FROM notifications
		 WHERE recipient_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, recipientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message,
			&n.ExamID, &n.IsRead, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}
	return notifications, total, rows.Err()
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE`,
		recipientID,
	).Scan(&n)
	return n, err
}

// MarkRead marks one of the user's notifications as read. Returns false when
// the notification does not exist or belongs to someone else.
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64, recipientID int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = NOW()
		 WHERE id = $1 AND recipient_id = $2 AND is_read = FALSE`,
		id, recipientID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// BulkInsert persists a batch of notifications in one statement. Used by the
// background worker draining the notification queue.
func (r *NotificationRepository) BulkInsert(ctx context.Context, notifications []model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	recipients := make([]int, len(notifications))
	types := make([]string, len(notifications))
	titles := make([]string, len(notifications))
	messages := make([]string, len(notifications))
	examIDs := make([]*string, len(notifications))
	for i, n := range notifications {
		recipients[i] = n.RecipientID
		types[i] = string(n.Type)
		titles[i] = n.Title
		messages[i] = n.Message
		if n.ExamID != nil {
			s := n.ExamID.String()
			examIDs[i] = &s
		}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (recipient_id, type, title, message, exam_id)
		 SELECT * FROM unnest($1::int[], $2::text[], $3::text[], $4::text[], $5::uuid[])`,
		recipients, types, titles, messages, examIDs)
	if err != nil {
		return fmt.Errorf("bulk insert notifications: %w", err)
	}
	return nil
}

// Insert persists a single notification. Fallback path when a bulk insert
// fails so one malformed row cannot discard the whole batch.
func (r *NotificationRepository) Insert(ctx context.Context, n model.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (recipient_id, type, title, message, exam_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.RecipientID, n.Type, n.Title, n.Message, n.ExamID)
	return err
}
