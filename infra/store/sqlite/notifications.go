package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/notify"
)

var _ notify.Inbox = (*NotificationStore)(nil)

// NotificationStore keeps notification records for the portal UI.
type NotificationStore struct {
	db *sql.DB
}

// Deliver stores the notification. Storing the same id twice is a no-op.
func (s *NotificationStore) Deliver(ctx context.Context, n model.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO notifications (id, user_id, job_id, created_at, is_read, record)
        VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		n.ID, n.UserID, n.JobID, n.CreatedAt.UnixNano(), n.IsRead, string(b))
	return err
}

// ListForUser returns a user's notifications, newest first.
func (s *NotificationStore) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	query := `SELECT record, is_read FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Notification
	for rows.Next() {
		var data string
		var read bool
		if err := rows.Scan(&data, &read); err != nil {
			return nil, err
		}
		var n model.Notification
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		n.IsRead = read
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkRead flags a notification as read.
func (s *NotificationStore) MarkRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	return err
}
