package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/internal/config"
	"github.com/voreskerne/frivillig/pkg/auth"
	"github.com/voreskerne/frivillig/pkg/core/access"
	"github.com/voreskerne/frivillig/pkg/db"
	"github.com/voreskerne/frivillig/pkg/sqlite"
)

func newTestApp(t *testing.T) *AppContext {
	t.Helper()
	store, err := sqlite.NewDB("")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.RunMigrations(context.Background()))

	return &AppContext{
		Env:      "test",
		Cfg:      &config.Config{},
		Database: store,
		Logger:   zap.NewNop(),
		Ctx:      context.Background(),
	}
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSeedRolesAndCreateUser(t *testing.T) {
	app := newTestApp(t)

	_, err := run(t, CreateUserCmd(app), "anna@example.org", "Anna", access.RoleAdmin, "--password", "hemmelig1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run seedRoles first")

	out, err := run(t, SeedRolesCmd(app))
	require.NoError(t, err)
	assert.Contains(t, out, access.RoleSuperadmin)

	// Seeding twice only resets the roles
	_, err = run(t, SeedRolesCmd(app))
	require.NoError(t, err)

	role, err := app.Database.GetRole(app.Ctx, access.RoleMember)
	require.NoError(t, err)
	assert.True(t, role.IsDefault)

	out, err = run(t, CreateUserCmd(app), " Anna@Example.org ", "Anna", access.RoleAdmin, "--password", "hemmelig1")
	require.NoError(t, err)
	assert.Contains(t, out, "anna@example.org")

	user, err := app.Database.GetUserByEmail(app.Ctx, "anna@example.org")
	require.NoError(t, err)
	assert.Equal(t, "Anna", user.Name)
	assert.Equal(t, access.RoleAdmin, user.RoleID)
	assert.True(t, user.NotifyTradeCompleted)
	assert.True(t, auth.CheckPassword(user.PasswordHash, "hemmelig1"))

	_, err = run(t, CreateUserCmd(app), "anna@example.org", "Anna", access.RoleAdmin, "--password", "hemmelig1")
	assert.ErrorIs(t, err, db.ErrConflict)
}

func TestCreateUser_Validation(t *testing.T) {
	app := newTestApp(t)
	_, err := run(t, SeedRolesCmd(app))
	require.NoError(t, err)

	_, err = run(t, CreateUserCmd(app), "bo@example.org", "Bo", access.RoleMember, "--password", "kort")
	assert.ErrorContains(t, err, "at least 8 characters")

	_, err = run(t, CreateUserCmd(app), "not-an-email", "Bo", access.RoleMember, "--password", "hemmelig1")
	assert.ErrorContains(t, err, "invalid email")

	_, err = run(t, CreateUserCmd(app), "bo@example.org", "Bo", access.RoleMember)
	assert.ErrorContains(t, err, "password")

	_, err = run(t, CreateUserCmd(app), "bo@example.org", "Bo", access.RoleMember, "--password", "hemmelig1", "--notify-trades=false")
	require.NoError(t, err)
	user, err := app.Database.GetUserByEmail(app.Ctx, "bo@example.org")
	require.NoError(t, err)
	assert.False(t, user.NotifyTradeCompleted)
}

func TestSeedShifts(t *testing.T) {
	app := newTestApp(t)
	app.Cfg.RecurringShifts = []config.RecurringShift{{
		RRule:     "FREQ=WEEKLY;BYDAY=SA",
		Count:     2,
		Title:     "Lørdagsvagt",
		StartTime: "10:00",
		EndTime:   "14:00",
		Roles:     []string{"Kasse", "Bar"},
	}}

	out, err := run(t, SeedShiftsCmd(app), "--start", "2025-04-05", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-04-12")
	shifts, err := app.Database.ListShifts(app.Ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, shifts)

	out, err = run(t, SeedShiftsCmd(app), "--start", "2025-04-05")
	require.NoError(t, err)
	assert.Contains(t, out, "2 shifts created")

	shifts, err = app.Database.ListShifts(app.Ctx, "", "")
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	assert.Equal(t, "2025-04-05", shifts[0].Date)
	assert.Equal(t, "2025-04-12", shifts[1].Date)

	slots, err := app.Database.ListSlotsByShift(app.Ctx, shifts[0].ID)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
	for _, s := range slots {
		assert.Nil(t, s.UserID)
	}
}

func TestSeedShifts_NothingConfigured(t *testing.T) {
	app := newTestApp(t)
	out, err := run(t, SeedShiftsCmd(app))
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to seed")
}

func TestListShifts(t *testing.T) {
	app := newTestApp(t)
	holder := "anna"
	require.NoError(t, app.Database.CreateShift(app.Ctx,
		&db.Shift{ID: "shift-1", Date: "2025-03-01", Title: "Lørdagsvagt"},
		[]db.ShiftRole{{ID: "slot-a", RoleName: "Kasse", UserID: &holder}, {ID: "slot-b", RoleName: "Bar"}}))
	require.NoError(t, app.Database.CreateTrade(app.Ctx, &db.ShiftTrade{
		ID: "trade-1", ShiftRoleID: "slot-a", OfferingUserID: holder, Status: db.TradeStatusPending,
	}))

	out, err := run(t, ListShiftsCmd(app), "2025-03-01", "2025-03-31")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 shifts")
	assert.Contains(t, out, "anna")
	assert.Contains(t, out, "vacant")
	assert.Contains(t, out, "trade trade-1")

	out, err = run(t, ListShiftsCmd(app), "2025-04-01")
	require.NoError(t, err)
	assert.Contains(t, out, "No shifts found")

	_, err = run(t, ListShiftsCmd(app), "01-03-2025")
	assert.ErrorIs(t, err, db.ErrInvalidArgument)
}

func TestCompleteTask(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.Database.CreateUser(app.Ctx, &db.User{ID: "anna", Name: "Anna", Email: "anna@example.org", RoleID: access.RoleMember}))
	require.NoError(t, app.Database.CreateTask(app.Ctx, &db.Task{ID: "task-1", Title: "Oprydning", Points: 20, VolunteersNeeded: 1}))
	require.NoError(t, app.Database.SignUp(app.Ctx, "task-1", "anna"))

	out, err := run(t, CompleteTaskCmd(app), "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "20 points awarded to 1 volunteers")

	out, err = run(t, CompleteTaskCmd(app), "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "already completed")

	user, err := app.Database.GetUser(app.Ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, 20, user.Points)

	_, err = run(t, CompleteTaskCmd(app), "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestCompleteTask_PointsDisabled(t *testing.T) {
	app := newTestApp(t)
	disabled := false
	app.Cfg.Points.Enabled = &disabled

	require.NoError(t, app.Database.CreateUser(app.Ctx, &db.User{ID: "anna", Name: "Anna", Email: "anna@example.org", RoleID: access.RoleMember}))
	require.NoError(t, app.Database.CreateTask(app.Ctx, &db.Task{ID: "task-1", Title: "Oprydning", Points: 20, VolunteersNeeded: 1}))
	require.NoError(t, app.Database.SignUp(app.Ctx, "task-1", "anna"))

	out, err := run(t, CompleteTaskCmd(app), "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "No points awarded")

	user, err := app.Database.GetUser(app.Ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, 0, user.Points)
}

func TestNewRevoker_InMemoryWithoutAddr(t *testing.T) {
	app := newTestApp(t)
	revoker, closeFn, err := newRevoker(app)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &auth.MemoryRevoker{}, revoker)
}

func TestNewMailer_DisabledLogsOnly(t *testing.T) {
	app := newTestApp(t)
	mailer, err := newMailer(app)
	require.NoError(t, err)
	assert.NoError(t, mailer.SendEmail(context.Background(), "anna@example.org", "Emne", "Tekst"))
}
