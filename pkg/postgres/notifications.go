package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/voreskerne/frivillig/pkg/db"
)

// InsertAdminNotification appends an entry to the admin feed
func (d *DB) InsertAdminNotification(ctx context.Context, n *db.AdminNotification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	details := n.Details
	if details == nil {
		details = map[string]string{}
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO admin_notifications (id, type, message, details, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.Type, n.Message, details, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert admin notification: %w", err)
	}
	return nil
}

// ListAdminNotifications retrieves the admin feed, newest first
func (d *DB) ListAdminNotifications(ctx context.Context, unreadOnly bool) ([]db.AdminNotification, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, type, message, details, read, created_at
		FROM admin_notifications
		WHERE NOT $1 OR read = FALSE
		ORDER BY created_at DESC, id
	`, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin notifications: %w", err)
	}
	defer rows.Close()

	var notifications []db.AdminNotification
	for rows.Next() {
		var n db.AdminNotification
		if err := rows.Scan(&n.ID, &n.Type, &n.Message, &n.Details, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admin notifications: %w", err)
	}

	return notifications, nil
}

// MarkAdminNotificationsRead marks the whole feed as read
func (d *DB) MarkAdminNotificationsRead(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, `UPDATE admin_notifications SET read = TRUE WHERE read = FALSE`); err != nil {
		return fmt.Errorf("failed to mark admin notifications read: %w", err)
	}
	return nil
}
