package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voreskerne/frivillig/pkg/db"
	"github.com/voreskerne/frivillig/pkg/sqlite"
)

func newStore(t *testing.T) *sqlite.DB {
	t.Helper()
	store, err := sqlite.NewDB("")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(context.Background()))
	t.Cleanup(store.Close)
	return store
}

func strPtr(s string) *string { return &s }

// seedVacantShift creates a shift with one vacant slot per role name and returns the slot ids
func seedVacantShift(t *testing.T, store *sqlite.DB, roleNames ...string) []string {
	t.Helper()
	shift := &db.Shift{ID: "shift-1", Date: "2025-03-01", Title: "Lørdagsvagt"}
	slots := make([]db.ShiftRole, 0, len(roleNames))
	ids := make([]string, 0, len(roleNames))
	for i, name := range roleNames {
		id := "slot-" + string(rune('a'+i))
		slots = append(slots, db.ShiftRole{ID: id, RoleName: name})
		ids = append(ids, id)
	}
	require.NoError(t, store.CreateShift(context.Background(), shift, slots))
	return ids
}

func seedUser(t *testing.T, store *sqlite.DB, id string) {
	t.Helper()
	require.NoError(t, store.CreateUser(context.Background(), &db.User{
		ID: id, Name: "User " + id, Email: id + "@example.org", PasswordHash: "x", RoleID: "bruger",
		NotifyTradeCompleted: true,
	}))
}

// mockFeed implements AdminFeed
type mockFeed struct {
	mu   sync.Mutex
	left []string
	err  error
}

func (m *mockFeed) ShiftLeft(ctx context.Context, slot *db.ShiftRole, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = append(m.left, slot.ID+":"+userID)
	return m.err
}

// mockNotifier implements TradeNotifier
type mockNotifier struct {
	mu        sync.Mutex
	completed []string
	err       error
}

func (m *mockNotifier) TradeCompleted(ctx context.Context, trade *db.ShiftTrade, slot *db.ShiftRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, trade.ID)
	return m.err
}
