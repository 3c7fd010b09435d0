package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voreskerne/frivillig/pkg/db"
)

const userColumns = `id, name, email, password_hash, role_id, points, notify_trade_completed, created_at`

// CreateUser inserts a new user. A duplicate e-mail is reported as ErrConflict.
func (d *DB) CreateUser(ctx context.Context, user *db.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.RoleID, user.Points,
		user.NotifyTradeCompleted, user.CreatedAt)
	if uniqueConstraint(err) == userEmailIndex {
		return fmt.Errorf("email %s: %w", user.Email, db.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id
func (d *DB) GetUser(ctx context.Context, userID string) (*db.User, error) {
	return d.getUserWhere(ctx, "id", userID)
}

// GetUserByEmail retrieves a user by e-mail address
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	return d.getUserWhere(ctx, "email", email)
}

func (d *DB) getUserWhere(ctx context.Context, column, value string) (*db.User, error) {
	var u db.User
	err := d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoleID, &u.Points, &u.NotifyTradeCompleted, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", value, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// SetUserPoints overwrites a user's point balance
func (d *DB) SetUserPoints(ctx context.Context, userID string, points int) error {
	tag, err := d.pool.Exec(ctx, `UPDATE users SET points = $2 WHERE id = $1`, userID, points)
	if err != nil {
		return fmt.Errorf("failed to set user points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, db.ErrNotFound)
	}
	return nil
}

// SetUserRole moves a user to another role. The role must exist.
func (d *DB) SetUserRole(ctx context.Context, userID, roleID string) error {
	tag, err := d.pool.Exec(ctx, `UPDATE users SET role_id = $2 WHERE id = $1`, userID, roleID)
	if foreignKeyViolated(err) {
		return fmt.Errorf("role %s: %w", roleID, db.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to set user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, db.ErrNotFound)
	}
	return nil
}

// SetNotifyTradeCompleted turns the trade completed email on or off
func (d *DB) SetNotifyTradeCompleted(ctx context.Context, userID string, enabled bool) error {
	tag, err := d.pool.Exec(ctx, `UPDATE users SET notify_trade_completed = $2 WHERE id = $1`, userID, enabled)
	if err != nil {
		return fmt.Errorf("failed to set notification preference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, db.ErrNotFound)
	}
	return nil
}

// ListUsersByPoints returns up to limit users ordered by points, then name
func (d *DB) ListUsersByPoints(ctx context.Context, limit int) ([]db.User, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY points DESC, name, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []db.User
	for rows.Next() {
		var u db.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoleID, &u.Points, &u.NotifyTradeCompleted, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// GetRole retrieves a role and its permission tags
func (d *DB) GetRole(ctx context.Context, roleID string) (*db.Role, error) {
	var r db.Role
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, permissions, is_default FROM roles WHERE id = $1
	`, roleID).Scan(&r.ID, &r.Name, &r.Permissions, &r.IsDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("role %s: %w", roleID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &r, nil
}

// UpsertRole inserts a role or replaces its name and permissions
func (d *DB) UpsertRole(ctx context.Context, role *db.Role) error {
	permissions := role.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO roles (id, name, permissions, is_default)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, permissions = EXCLUDED.permissions, is_default = EXCLUDED.is_default
	`, role.ID, role.Name, permissions, role.IsDefault)
	if err != nil {
		return fmt.Errorf("failed to upsert role: %w", err)
	}
	return nil
}
