package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/db"
)

// FeedStore is the store the admin feed reads from and appends to
type FeedStore interface {
	Directory
	InsertAdminNotification(ctx context.Context, n *db.AdminNotification) error
}

// AdminFeed records volunteer activity admins should know about
type AdminFeed struct {
	Store  FeedStore
	Logger *zap.Logger
}

// ShiftLeft records that userID left slot
func (f *AdminFeed) ShiftLeft(ctx context.Context, slot *db.ShiftRole, userID string) error {
	shift, err := f.Store.GetShift(ctx, slot.ShiftID)
	if err != nil {
		return fmt.Errorf("failed to fetch shift: %w", err)
	}

	// Deleted accounts still show up by id
	userName := userID
	user, err := f.Store.GetUser(ctx, userID)
	switch {
	case err == nil:
		userName = user.Name
	case !errors.Is(err, db.ErrNotFound):
		return fmt.Errorf("failed to fetch user: %w", err)
	}

	n := &db.AdminNotification{
		ID:      uuid.New().String(),
		Type:    db.NotificationTypeShiftLeft,
		Message: fmt.Sprintf("%s har forladt vagten \"%s\" (%s d. %s).", userName, slot.RoleName, shift.Title, shift.Date),
		Details: map[string]string{
			"userId":      userID,
			"userName":    userName,
			"shiftRoleId": slot.ID,
			"roleName":    slot.RoleName,
			"shiftTitle":  shift.Title,
			"shiftDate":   shift.Date,
		},
	}
	if err := f.Store.InsertAdminNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to record admin notification: %w", err)
	}

	f.Logger.Debug("Admin notification recorded", zap.String("id", n.ID), zap.String("type", n.Type))
	return nil
}
