package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/notify"
)

var _ notify.Inbox = (*NotificationStore)(nil)

// NotificationStore keeps notification records for the portal UI.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// Deliver stores n. Storing the same id twice is a no-op.
func (s *NotificationStore) Deliver(ctx context.Context, n model.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO haulage_notifications (id, user_id, job_id, is_read, created_at, record)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.JobID, n.IsRead, n.CreatedAt, b)
	if err != nil {
		return fmt.Errorf("haulage/postgres: store notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT record, is_read FROM haulage_notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC`, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("haulage/postgres: list notifications: %w", err)
	}
	defer rows.Close()
	var res []model.Notification
	for rows.Next() {
		var (
			data []byte
			read bool
		)
		if err := rows.Scan(&data, &read); err != nil {
			return nil, err
		}
		var n model.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("haulage/postgres: decode notification: %w", err)
		}
		n.IsRead = read
		res = append(res, n)
	}
	return res, rows.Err()
}

func (s *NotificationStore) MarkRead(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE haulage_notifications SET is_read = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("haulage/postgres: mark read: %w", err)
	}
	return nil
}
