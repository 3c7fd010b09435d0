package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/internal/config"
	"github.com/voreskerne/frivillig/pkg/auth"
	"github.com/voreskerne/frivillig/pkg/core/access"
	"github.com/voreskerne/frivillig/pkg/core/services"
	"github.com/voreskerne/frivillig/pkg/db"
	"github.com/voreskerne/frivillig/pkg/metrics"
	"github.com/voreskerne/frivillig/pkg/sqlite"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "hemmelig"
)

// passwordHash is computed once; bcrypt is slow on purpose
var passwordHash = sync.OnceValue(func() string {
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return hash
})

// mockNotifier implements services.TradeNotifier
type mockNotifier struct {
	mu     sync.Mutex
	trades []string
}

func (m *mockNotifier) TradeCompleted(ctx context.Context, trade *db.ShiftTrade, slot *db.ShiftRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade.ID)
	return nil
}

func (m *mockNotifier) delivered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.trades...)
}

// slowNotifier stands in for a throttled mailer
type slowNotifier struct {
	mockNotifier
	delay time.Duration
}

func (s *slowNotifier) TradeCompleted(ctx context.Context, trade *db.ShiftTrade, slot *db.ShiftRole) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.mockNotifier.TradeCompleted(ctx, trade, slot)
}

type testEnv struct {
	store    *sqlite.DB
	srv      *Server
	handler  http.Handler
	notifier *mockNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	notifier := &mockNotifier{}
	env := newTestEnvWith(t, notifier)
	env.notifier = notifier
	return env
}

func newTestEnvWith(t *testing.T, notifier services.TradeNotifier) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.NewDB("")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(ctx))
	t.Cleanup(store.Close)

	for _, role := range access.DefaultRoles() {
		require.NoError(t, store.UpsertRole(ctx, &role))
	}
	for _, u := range []struct{ id, role string }{
		{"u1", access.RoleMember},
		{"u2", access.RoleMember},
		{"u3", access.RoleMember},
		{"admin", access.RoleAdmin},
	} {
		require.NoError(t, store.CreateUser(ctx, &db.User{
			ID: u.id, Name: "User " + u.id, Email: u.id + "@example.org",
			PasswordHash: passwordHash(), RoleID: u.role,
		}))
	}

	srv := New(Options{
		Store:    store,
		Notifier: notifier,
		Logger:   zap.NewNop(),
		Server: config.ServerConfig{
			Addr:            "127.0.0.1:0",
			JWTSecret:       testSecret,
			TokenTTL:        time.Hour,
			ShutdownTimeout: time.Second,
		},
		Points: config.PointsConfig{Min: 0, Max: 100},
	})

	// Run starts the worker in production; tests drive Handler directly
	srv.notifications.start()
	t.Cleanup(func() { srv.drainNotifications(context.Background()) })

	return &testEnv{store: store, srv: srv, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, userID string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/login", "", map[string]string{"email": userID + "@example.org", "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string  `json:"token"`
		User  db.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, userID, resp.User.ID)
	return resp.Token
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}

func seedShift(t *testing.T, store *sqlite.DB) {
	t.Helper()
	require.NoError(t, store.CreateShift(context.Background(),
		&db.Shift{ID: "shift-1", Date: "2025-03-01", Title: "Lørdagsvagt"},
		[]db.ShiftRole{{ID: "S", RoleName: "Kasse"}}))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])
}

func TestRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	seedShift(t, env.store)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/shifts?from=2025-03-01&to=2025-03-31"},
		{http.MethodGet, "/shift_trades"},
		{http.MethodGet, "/leaderboard"},
		{http.MethodPut, "/users/me/preferences"},
		{http.MethodPost, "/shifts/take"},
		{http.MethodPost, "/shifts/leave"},
		{http.MethodPost, "/shift_trades"},
		{http.MethodPost, "/shift_trades/accept"},
		{http.MethodDelete, "/shift_trades"},
		{http.MethodPost, "/admin/shifts"},
	} {
		rec := env.do(t, tc.method, tc.path, "", map[string]string{"shiftRoleId": "S"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		assert.NotEmpty(t, errorMessage(t, rec))
	}

	rec := env.do(t, http.MethodPost, "/shifts/take", "not-a-token", map[string]string{"shiftRoleId": "S"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/login", "", map[string]string{"email": "u1@example.org", "password": "forkert"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/login", "", map[string]string{"email": "not-an-email", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/login", "", map[string]string{"email": "u1@example.org", "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "jwt", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	seedShift(t, env.store)
	token := env.login(t, "u1")

	req := httptest.NewRequest(http.MethodPost, "/shifts/take", strings.NewReader(`{"shiftRoleId":"S"}`))
	req.AddCookie(&http.Cookie{Name: "jwt", Value: token})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	seedShift(t, env.store)
	token := env.login(t, "u1")

	rec := env.do(t, http.MethodPost, "/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/shifts/take", token, map[string]string{"shiftRoleId": "S"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token has been revoked", errorMessage(t, rec))
}

// Slot S is vacant; U1 takes it, U2 is refused, U1 offers it, U2 accepts and
// a retried accept by U3 is refused.
func TestTradeLifecycleScenario(t *testing.T) {
	env := newTestEnv(t)
	seedShift(t, env.store)
	u1, u2, u3 := env.login(t, "u1"), env.login(t, "u2"), env.login(t, "u3")

	rec := env.do(t, http.MethodPost, "/shifts/take", u1, map[string]string{"shiftRoleId": "S"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	taken := decodeBody[struct{ Slot db.ShiftRole }](t, rec)
	assert.True(t, taken.Slot.IsHeldBy("u1"))

	rec = env.do(t, http.MethodPost, "/shifts/take", u2, map[string]string{"shiftRoleId": "S"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), db.ErrSlotUnavailable.Error())

	rec = env.do(t, http.MethodPost, "/shift_trades", u1, map[string]string{"shiftRoleId": "S"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	proposed := decodeBody[struct{ Trade db.ShiftTrade }](t, rec)
	assert.Equal(t, db.TradeStatusPending, proposed.Trade.Status)

	rec = env.do(t, http.MethodPost, "/shift_trades", u1, map[string]string{"shiftRoleId": "S"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), db.ErrDuplicatePendingTrade.Error())

	rec = env.do(t, http.MethodGet, "/shift_trades", u3, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]db.ShiftTrade](t, rec), 1)

	rec = env.do(t, http.MethodPost, "/shift_trades/accept", u2, map[string]string{"tradeId": proposed.Trade.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decodeBody[struct {
		Trade db.ShiftTrade
		Slot  db.ShiftRole
	}](t, rec)
	assert.Equal(t, db.TradeStatusCompleted, accepted.Trade.Status)
	assert.True(t, accepted.Slot.IsHeldBy("u2"))

	slot, err := env.store.GetSlot(context.Background(), "S")
	require.NoError(t, err)
	assert.True(t, slot.IsHeldBy("u2"))
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{proposed.Trade.ID}, env.notifier.delivered())
	}, 2*time.Second, 10*time.Millisecond)

	rec = env.do(t, http.MethodPost, "/shift_trades/accept", u3, map[string]string{"tradeId": proposed.Trade.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), db.ErrInvalidState.Error())
}

func TestLeaveAndCancel(t *testing.T) {
	env := newTestEnv(t)
	seedShift(t, env.store)
	u1, u2 := env.login(t, "u1"), env.login(t, "u2")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/shifts/take", u1, map[string]string{"shiftRoleId": "S"}).Code)

	rec := env.do(t, http.MethodPost, "/shifts/leave", u2, map[string]string{"shiftRoleId": "S"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), db.ErrNotHolder.Error())

	rec = env.do(t, http.MethodPost, "/shift_trades", u1, map[string]string{"shiftRoleId": "S"})
	require.Equal(t, http.StatusCreated, rec.Code)
	trade := decodeBody[struct{ Trade db.ShiftTrade }](t, rec).Trade

	rec = env.do(t, http.MethodDelete, "/shift_trades", u2, map[string]string{"tradeId": trade.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), db.ErrNotOfferingUser.Error())

	rec = env.do(t, http.MethodPost, "/shift_trades/accept", u1, map[string]string{"tradeId": trade.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), db.ErrSelfTrade.Error())

	// Leaving cancels the pending trade
	rec = env.do(t, http.MethodPost, "/shifts/leave", u1, map[string]string{"shiftRoleId": "S"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	left := decodeBody[struct {
		CancelledTradeIDs []string `json:"cancelledTradeIds"`
	}](t, rec)
	assert.Equal(t, []string{trade.ID}, left.CancelledTradeIDs)

	rec = env.do(t, http.MethodDelete, "/shift_trades", u1, map[string]string{"tradeId": trade.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), db.ErrInvalidState.Error())

	rec = env.do(t, http.MethodPost, "/shifts/take", u1, map[string]string{"shiftRoleId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConcurrentTakeOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	seedShift(t, env.store)
	tokens := []string{env.login(t, "u1"), env.login(t, "u2"), env.login(t, "u3")}

	codes := make([]int, len(tokens))
	var wg sync.WaitGroup
	for i, token := range tokens {
		i, token := i, token
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = env.do(t, http.MethodPost, "/shifts/take", token, map[string]string{"shiftRoleId": "S"}).Code
		}()
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusBadRequest, code)
		}
	}
	assert.Equal(t, 1, ok)
}

// Task X needs one volunteer and is worth 20 points; completing it twice
// credits A once.
func TestTaskCompletionScenario(t *testing.T) {
	env := newTestEnv(t)
	admin, a := env.login(t, "admin"), env.login(t, "u1")

	rec := env.do(t, http.MethodPost, "/admin/tasks", a, map[string]any{"title": "Oprydning", "points": 20, "volunteersNeeded": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/tasks", admin, map[string]any{"title": "Oprydning", "points": 20, "volunteersNeeded": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decodeBody[db.Task](t, rec)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/tasks/signup", a, map[string]string{"taskId": task.ID}).Code)

	rec = env.do(t, http.MethodPost, "/tasks/signup", env.login(t, "u2"), map[string]string{"taskId": task.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), db.ErrTaskFull.Error())

	type completion struct {
		AlreadyCompleted bool     `json:"alreadyCompleted"`
		AwardedUserIDs   []string `json:"awardedUserIds"`
		Points           int      `json:"points"`
	}

	rec = env.do(t, http.MethodPost, "/admin/tasks/"+task.ID+"/complete", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[completion](t, rec)
	assert.False(t, first.AlreadyCompleted)
	assert.Equal(t, []string{"u1"}, first.AwardedUserIDs)
	assert.Equal(t, 20, first.Points)

	rec = env.do(t, http.MethodPost, "/admin/tasks/"+task.ID+"/complete", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[completion](t, rec).AlreadyCompleted)

	user, err := env.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, user.Points)

	rec = env.do(t, http.MethodPost, "/admin/tasks/missing/complete", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminShiftManagement(t *testing.T) {
	env := newTestEnv(t)
	admin, member := env.login(t, "admin"), env.login(t, "u1")

	spec := map[string]any{
		"date":      "2025-03-01",
		"startTime": "10:00",
		"endTime":   "14:00",
		"title":     "Lørdagsvagt",
		"slots":     []map[string]any{{"roleName": "Kasse"}, {"roleName": "Bar", "userId": "u1"}},
	}
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/admin/shifts", member, spec).Code)

	rec := env.do(t, http.MethodPost, "/admin/shifts", admin, map[string]any{"date": "2025-03-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "slots are required")

	rec = env.do(t, http.MethodPost, "/admin/shifts", admin, spec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[struct {
		Shift db.Shift
		Slots []db.ShiftRole
	}](t, rec)
	require.Len(t, created.Slots, 2)

	var held, vacant db.ShiftRole
	for _, s := range created.Slots {
		if s.UserID != nil {
			held = s
		} else {
			vacant = s
		}
	}

	rec = env.do(t, http.MethodPost, "/admin/shifts/"+created.Shift.ID+"/roles", admin, map[string]any{"roles": []map[string]any{{"roleName": "Opvask"}}})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/admin/shifts/missing/roles", admin, map[string]any{"roles": []map[string]any{{"roleName": "Opvask"}}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/admin/shift_roles/"+vacant.ID, admin, map[string]any{"userId": "u2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[struct{ Slot db.ShiftRole }](t, rec)
	assert.True(t, updated.Slot.IsHeldBy("u2"))

	rec = env.do(t, http.MethodDelete, "/admin/shift_roles/"+held.ID, admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, "/admin/shift_roles/"+held.ID, admin, map[string]any{"clearUser": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/admin/shift_roles/"+held.ID, admin, nil).Code)

	rec = env.do(t, http.MethodPost, "/admin/shifts/series", admin, map[string]any{
		"rrule": "FREQ=WEEKLY;BYDAY=SA",
		"start": "2025-04-05",
		"count": 3,
		"template": map[string]any{
			"title": "Lørdagsvagt",
			"slots": []map[string]any{{"roleName": "Kasse"}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/shifts?from=2025-04-01&to=2025-04-30", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decodeBody[[]struct {
		Date  string `json:"date"`
		Slots []db.ShiftRole
	}](t, rec)
	require.Len(t, board, 3)
	assert.Equal(t, "2025-04-19", board[2].Date)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/admin/shifts/"+created.Shift.ID, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/admin/shifts/"+created.Shift.ID, admin, nil).Code)
}

func TestAdminUsersAndNotifications(t *testing.T) {
	env := newTestEnv(t)
	seedShift(t, env.store)
	admin, u1 := env.login(t, "admin"), env.login(t, "u1")

	rec := env.do(t, http.MethodPut, "/admin/users/u1/points", admin, map[string]any{"points": 75})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user, err := env.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 75, user.Points)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/admin/users/u1/points", admin, map[string]any{}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/admin/users/ghost/points", admin, map[string]any{"points": 1}).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/admin/notifications", u1, nil).Code)

	require.NoError(t, env.store.InsertAdminNotification(context.Background(), &db.AdminNotification{
		ID: "n1", Type: db.NotificationTypeShiftLeft, Message: "User u1 har forladt vagten",
	}))

	rec = env.do(t, http.MethodGet, "/admin/notifications?unread=true", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]db.AdminNotification](t, rec), 1)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/admin/notifications/read", admin, nil).Code)

	rec = env.do(t, http.MethodGet, "/admin/notifications?unread=true", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]db.AdminNotification](t, rec))
}

func TestAcceptTrade_DoesNotWaitForMail(t *testing.T) {
	notifier := &slowNotifier{delay: time.Second}
	env := newTestEnvWith(t, notifier)
	ctx := context.Background()
	require.NoError(t, env.store.CreateShift(ctx,
		&db.Shift{ID: "shift-1", Date: "2025-03-01", Title: "Lørdagsvagt"},
		[]db.ShiftRole{{ID: "S", RoleName: "Kasse"}, {ID: "T", RoleName: "Bar"}}))
	u1, u2, u3 := env.login(t, "u1"), env.login(t, "u2"), env.login(t, "u3")

	var tradeIDs []string
	for _, slot := range []string{"S", "T"} {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/shifts/take", u1, map[string]string{"shiftRoleId": slot}).Code)
		rec := env.do(t, http.MethodPost, "/shift_trades", u1, map[string]string{"shiftRoleId": slot})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		tradeIDs = append(tradeIDs, decodeBody[struct{ Trade db.ShiftTrade }](t, rec).Trade.ID)
	}

	for i, token := range []string{u2, u3} {
		start := time.Now()
		rec := env.do(t, http.MethodPost, "/shift_trades/accept", token, map[string]string{"tradeId": tradeIDs[i]})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return len(notifier.delivered()) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, tradeIDs, notifier.delivered())

	assert.Eventually(t, func() bool {
		body := env.do(t, http.MethodGet, "/metrics", "", nil).Body.String()
		return strings.Contains(body, `frivillig_trade_notifications_total{result="sent"} 2`)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNotificationQueue_DropsWhenFull(t *testing.T) {
	next := &slowNotifier{delay: time.Hour}
	q := newNotificationQueue(next, 1, metrics.New(), zap.NewNop())
	trade := &db.ShiftTrade{ID: "trade-1"}

	// Not started, so the single buffer slot stays occupied
	require.NoError(t, q.TradeCompleted(context.Background(), trade, &db.ShiftRole{}))
	assert.ErrorIs(t, q.TradeCompleted(context.Background(), &db.ShiftTrade{ID: "trade-2"}, &db.ShiftRole{}), errQueueFull)

	require.NoError(t, q.drain(context.Background()))
	assert.ErrorIs(t, q.TradeCompleted(context.Background(), trade, &db.ShiftRole{}), errQueueClosed)
	assert.Empty(t, next.delivered())
}

func TestNotificationQueue_DrainCancelsSlowSend(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	next := &slowNotifier{delay: time.Hour}
	q := newNotificationQueue(next, 4, metrics.New(), zap.NewNop())
	q.start()
	require.NoError(t, q.TradeCompleted(context.Background(), &db.ShiftTrade{ID: "trade-1"}, &db.ShiftRole{}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.drain(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, next.delivered())
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t)
	admin, u1 := env.login(t, "admin"), env.login(t, "u1")
	ctx := context.Background()

	rec := env.do(t, http.MethodPut, "/users/me/preferences", u1, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/users/me/preferences", u1, map[string]any{"notifyTradeCompleted": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeBody[struct{ User db.User }](t, rec).User.NotifyTradeCompleted)

	user, err := env.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, user.NotifyTradeCompleted)

	rec = env.do(t, http.MethodPut, "/admin/users/u1/preferences", u1, map[string]any{"notifyTradeCompleted": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/admin/users/u1/preferences", admin, map[string]any{"notifyTradeCompleted": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user, err = env.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.NotifyTradeCompleted)

	rec = env.do(t, http.MethodPut, "/admin/users/ghost/preferences", admin, map[string]any{"notifyTradeCompleted": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.SetUserPoints(ctx, "u1", 30))
	require.NoError(t, env.store.SetUserPoints(ctx, "u2", 50))
	token := env.login(t, "u3")

	rec := env.do(t, http.MethodGet, "/leaderboard?limit=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "@example.org")

	board := decodeBody[[]services.LeaderboardEntry](t, rec)
	require.Len(t, board, 2)
	assert.Equal(t, services.LeaderboardEntry{Rank: 1, UserID: "u2", Name: "User u2", Points: 50}, board[0])
	assert.Equal(t, services.LeaderboardEntry{Rank: 2, UserID: "u1", Name: "User u1", Points: 30}, board[1])

	rec = env.do(t, http.MethodGet, "/leaderboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]services.LeaderboardEntry](t, rec), 4)

	for _, limit := range []string{"0", "-3", "ti"} {
		rec = env.do(t, http.MethodGet, "/leaderboard?limit="+limit, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
	}
}

func TestRoleChangesApplyToExistingTokens(t *testing.T) {
	env := newTestEnv(t)
	admin, u1 := env.login(t, "admin"), env.login(t, "u1")

	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/admin/notifications", u1, nil).Code)

	rec := env.do(t, http.MethodPut, "/admin/users/u1/role", admin, map[string]string{"role": access.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, access.RoleAdmin, decodeBody[struct{ User db.User }](t, rec).User.RoleID)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/admin/notifications", u1, nil).Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/admin/users/u1/role", admin, map[string]string{"role": "missing"}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/admin/users/ghost/role", admin, map[string]string{"role": access.RoleMember}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/admin/users/u1/role", admin, map[string]string{}).Code)

	// Demoted while holding an admin token
	require.NoError(t, env.store.SetUserRole(context.Background(), "admin", access.RoleMember))
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/admin/notifications", admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/admin/shifts", admin, map[string]any{"date": "2025-03-01"}).Code)
}

func TestTokenForUnknownUserRejected(t *testing.T) {
	env := newTestEnv(t)

	issued, err := auth.NewTokenIssuer(testSecret, time.Hour).Issue(&db.User{ID: "ghost", RoleID: access.RoleAdmin})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/admin/notifications", issued.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Account no longer exists", errorMessage(t, rec))
}

func TestAdminUnknownHolderIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	seedShift(t, env.store)
	admin := env.login(t, "admin")

	rec := env.do(t, http.MethodPost, "/admin/shifts", admin, map[string]any{
		"date":  "2025-03-08",
		"title": "Lørdagsvagt",
		"slots": []map[string]any{{"roleName": "Kasse", "userId": "ghost"}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	shifts, err := env.store.ListShifts(context.Background(), "2025-03-08", "2025-03-08")
	require.NoError(t, err)
	assert.Empty(t, shifts)

	rec = env.do(t, http.MethodPost, "/admin/shifts/shift-1/roles", admin, map[string]any{"roles": []map[string]any{{"roleName": "Bar", "userId": "ghost"}}})
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPut, "/admin/shift_roles/S", admin, map[string]any{"userId": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	slot, err := env.store.GetSlot(context.Background(), "S")
	require.NoError(t, err)
	assert.Nil(t, slot.UserID)
}

func TestAdminSeriesRejectsSubDailyRule(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin")

	rec := env.do(t, http.MethodPost, "/admin/shifts/series", admin, map[string]any{
		"rrule":    "FREQ=HOURLY;COUNT=5",
		"start":    "2025-04-05",
		"template": map[string]any{"title": "Lørdagsvagt", "slots": []map[string]any{{"roleName": "Kasse"}}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	shifts, err := env.store.ListShifts(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, shifts)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	seedShift(t, env.store)
	token := env.login(t, "u1")
	env.do(t, http.MethodPost, "/shifts/take", token, map[string]string{"shiftRoleId": "S"})

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `frivillig_slot_operations_total{op="take",result="ok"} 1`)
	assert.Contains(t, body, `route="/shifts/take"`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(db.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(db.ErrConflict))
	assert.Equal(t, http.StatusForbidden, statusFor(access.ErrForbidden))
	assert.Equal(t, http.StatusUnauthorized, statusFor(auth.ErrInvalidCredentials))
	assert.Equal(t, http.StatusBadRequest, statusFor(db.ErrAlreadySignedUp))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}

func TestRun_GracefulShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	notifier := &mockNotifier{}
	srv := New(Options{
		Notifier: notifier,
		Logger:   zap.NewNop(),
		Server:   config.ServerConfig{Addr: "127.0.0.1:0", JWTSecret: testSecret, TokenTTL: time.Hour, ShutdownTimeout: time.Second},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, srv.notifier.TradeCompleted(ctx, &db.ShiftTrade{ID: "trade-1"}, &db.ShiftRole{}))
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, []string{"trade-1"}, notifier.delivered())
}

func TestRun_ListenError(t *testing.T) {
	srv := New(Options{
		Logger: zap.NewNop(),
		Server: config.ServerConfig{Addr: "127.0.0.1:99999", JWTSecret: testSecret, TokenTTL: time.Hour, ShutdownTimeout: time.Second},
	})

	err := srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http server failed")
}
