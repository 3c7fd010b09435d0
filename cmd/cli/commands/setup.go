package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/auth"
	"github.com/voreskerne/frivillig/pkg/core/access"
	"github.com/voreskerne/frivillig/pkg/db"
)

// MigrateCmd creates the migrate command
func MigrateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Database.RunMigrations(app.Ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Database schema is up to date")
			return nil
		},
	}
}

// SeedRolesCmd creates the seedRoles command
func SeedRolesCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seedRoles",
		Short: "Create or reset the built-in superadmin, admin and bruger roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, role := range access.DefaultRoles() {
				if err := app.Database.UpsertRole(app.Ctx, &role); err != nil {
					return fmt.Errorf("failed to seed role %s: %w", role.ID, err)
				}
				app.Logger.Info("Role seeded", zap.String("role_id", role.ID), zap.Int("permissions", len(role.Permissions)))
				fmt.Fprintf(out, "  ✓ %-10s %d permissions\n", role.ID, len(role.Permissions))
			}
			return nil
		},
	}
}

// CreateUserCmd creates the createUser command
func CreateUserCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createUser <email> <name> <role>",
		Short: "Create a user account with the given role",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := strings.ToLower(strings.TrimSpace(args[0]))
			name := strings.TrimSpace(args[1])
			roleID := args[2]

			password, _ := cmd.Flags().GetString("password")
			notify, _ := cmd.Flags().GetBool("notify-trades")

			if !strings.Contains(email, "@") {
				return fmt.Errorf("invalid email %q", args[0])
			}
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters")
			}

			if _, err := app.Database.GetRole(app.Ctx, roleID); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("role %q does not exist (run seedRoles first)", roleID)
				}
				return err
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			user := &db.User{
				ID:                   uuid.New().String(),
				Name:                 name,
				Email:                email,
				PasswordHash:         hash,
				RoleID:               roleID,
				NotifyTradeCompleted: notify,
			}
			if err := app.Database.CreateUser(app.Ctx, user); err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			app.Logger.Info("User created", zap.String("user_id", user.ID), zap.String("role", roleID))
			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ User created\n\nID:    %s\nEmail: %s\nRole:  %s\n\n", user.ID, user.Email, roleID)
			return nil
		},
	}

	cmd.Flags().String("password", "", "Initial password (at least 8 characters)")
	cmd.Flags().Bool("notify-trades", true, "Email the user when someone takes over a slot they offered")
	cmd.MarkFlagRequired("password")

	return cmd
}
