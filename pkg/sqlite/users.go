package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voreskerne/frivillig/pkg/db"
)

// CreateUser inserts a new user. A duplicate e-mail is reported as ErrConflict.
func (d *DB) CreateUser(ctx context.Context, user *db.User) error {
	err := d.db.WithContext(ctx).Create(user).Error
	if isUniqueViolation(err, "users.email") {
		return fmt.Errorf("email %s: %w", user.Email, db.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id
func (d *DB) GetUser(ctx context.Context, userID string) (*db.User, error) {
	return d.getUserWhere(ctx, "id = ?", userID)
}

// GetUserByEmail retrieves a user by e-mail address
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	return d.getUserWhere(ctx, "email = ?", email)
}

func (d *DB) getUserWhere(ctx context.Context, cond, value string) (*db.User, error) {
	var user db.User
	err := d.db.WithContext(ctx).Where(cond, value).First(&user).Error
	if notFound(err) {
		return nil, fmt.Errorf("user %s: %w", value, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// SetUserPoints overwrites a user's point balance
func (d *DB) SetUserPoints(ctx context.Context, userID string, points int) error {
	res := d.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", userID).UpdateColumn("points", points)
	if res.Error != nil {
		return fmt.Errorf("failed to set user points: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, db.ErrNotFound)
	}
	return nil
}

// SetUserRole moves a user to another role. The role must exist.
func (d *DB) SetUserRole(ctx context.Context, userID, roleID string) error {
	return d.inTx(ctx, func(tx *gorm.DB) error {
		found, err := exists(tx, &db.Role{}, roleID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("role %s: %w", roleID, db.ErrNotFound)
		}
		res := tx.Model(&db.User{}).Where("id = ?", userID).UpdateColumn("role_id", roleID)
		if res.Error != nil {
			return fmt.Errorf("failed to set user role: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user %s: %w", userID, db.ErrNotFound)
		}
		return nil
	})
}

// SetNotifyTradeCompleted turns the trade completed email on or off
func (d *DB) SetNotifyTradeCompleted(ctx context.Context, userID string, enabled bool) error {
	res := d.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", userID).UpdateColumn("notify_trade_completed", enabled)
	if res.Error != nil {
		return fmt.Errorf("failed to set notification preference: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, db.ErrNotFound)
	}
	return nil
}

// ListUsersByPoints returns up to limit users ordered by points, then name
func (d *DB) ListUsersByPoints(ctx context.Context, limit int) ([]db.User, error) {
	var users []db.User
	err := d.db.WithContext(ctx).Order("points DESC, name, id").Limit(limit).Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return users, nil
}

// GetRole retrieves a role and its permission tags
func (d *DB) GetRole(ctx context.Context, roleID string) (*db.Role, error) {
	var role db.Role
	err := d.db.WithContext(ctx).Where("id = ?", roleID).First(&role).Error
	if notFound(err) {
		return nil, fmt.Errorf("role %s: %w", roleID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// UpsertRole inserts a role or replaces its name and permissions
func (d *DB) UpsertRole(ctx context.Context, role *db.Role) error {
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "permissions", "is_default"}),
	}).Create(role).Error
	if err != nil {
		return fmt.Errorf("failed to upsert role: %w", err)
	}
	return nil
}
