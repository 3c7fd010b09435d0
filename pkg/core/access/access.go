// Package access maps roles to permission tags and checks them at the
// service boundary.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/voreskerne/frivillig/pkg/db"
)

// Permission is a capability tag attached to a role
type Permission string

const (
	AccessAdminPanel   Permission = "access_admin_panel"
	ManageTasks        Permission = "manage_tasks"
	ManageUsers        Permission = "manage_users"
	ManageCategories   Permission = "manage_categories"
	ManageSettings     Permission = "manage_settings"
	ManageRoles        Permission = "manage_roles"
	ManageShifts       Permission = "manage_shifts"
	ManageShiftRoles   Permission = "manage_shift_roles"
	ManageGallery      Permission = "manage_gallery"
	CreateTaskFrontend Permission = "create_task_frontend"
)

// All lists every known permission
var All = []Permission{
	AccessAdminPanel,
	ManageTasks,
	ManageUsers,
	ManageCategories,
	ManageSettings,
	ManageRoles,
	ManageShifts,
	ManageShiftRoles,
	ManageGallery,
	CreateTaskFrontend,
}

// Role ids seeded by default
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleMember     = "bruger"
)

// ErrForbidden is returned when a role lacks a required permission
var ErrForbidden = errors.New("forbidden")

// RoleStore is the store used to look up role permissions
type RoleStore interface {
	GetRole(ctx context.Context, roleID string) (*db.Role, error)
}

// Checker answers permission questions for a role
type Checker struct {
	Roles RoleStore
}

// NewChecker creates a Checker backed by the given role store
func NewChecker(roles RoleStore) *Checker {
	return &Checker{Roles: roles}
}

// Has reports whether roleID carries perm. An unknown role has no permissions.
func (c *Checker) Has(ctx context.Context, roleID string, perm Permission) (bool, error) {
	role, err := c.Roles.GetRole(ctx, roleID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load role %s: %w", roleID, err)
	}
	return slices.Contains(role.Permissions, string(perm)), nil
}

// Require returns ErrForbidden unless roleID carries perm
func (c *Checker) Require(ctx context.Context, roleID string, perm Permission) error {
	ok, err := c.Has(ctx, roleID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("role %q lacks %s: %w", roleID, perm, ErrForbidden)
	}
	return nil
}

// DefaultRoles returns the roles seeded into a fresh installation
func DefaultRoles() []db.Role {
	admin := make([]string, 0, len(All))
	superadmin := make([]string, 0, len(All))
	for _, p := range All {
		superadmin = append(superadmin, string(p))
		if p != ManageSettings && p != ManageRoles {
			admin = append(admin, string(p))
		}
	}
	return []db.Role{
		{ID: RoleSuperadmin, Name: "Superadmin", Permissions: superadmin},
		{ID: RoleAdmin, Name: "Admin", Permissions: admin},
		{ID: RoleMember, Name: "Bruger", Permissions: []string{}, IsDefault: true},
	}
}
