package sqlite

import (
	"context"
	"fmt"

	"github.com/voreskerne/frivillig/pkg/db"
)

// InsertAdminNotification appends an entry to the admin feed
func (d *DB) InsertAdminNotification(ctx context.Context, n *db.AdminNotification) error {
	if n.Details == nil {
		n.Details = map[string]string{}
	}
	if err := d.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to insert admin notification: %w", err)
	}
	return nil
}

// ListAdminNotifications retrieves the admin feed, newest first
func (d *DB) ListAdminNotifications(ctx context.Context, unreadOnly bool) ([]db.AdminNotification, error) {
	q := d.db.WithContext(ctx).Model(&db.AdminNotification{})
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var notifications []db.AdminNotification
	if err := q.Order("created_at DESC, id").Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to query admin notifications: %w", err)
	}
	return notifications, nil
}

// MarkAdminNotificationsRead marks the whole feed as read
func (d *DB) MarkAdminNotificationsRead(ctx context.Context) error {
	err := d.db.WithContext(ctx).Model(&db.AdminNotification{}).
		Where("read = ?", false).
		UpdateColumn("read", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark admin notifications read: %w", err)
	}
	return nil
}
