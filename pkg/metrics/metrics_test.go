package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voreskerne/frivillig/pkg/db"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "slot_unavailable", Result(fmt.Errorf("slot x: %w", db.ErrSlotUnavailable)))
	assert.Equal(t, "self_trade", Result(db.ErrSelfTrade))
	assert.Equal(t, "error", Result(errors.New("boom")))
}

func TestCounters(t *testing.T) {
	m := New()

	m.SlotOp("take", nil)
	m.SlotOp("take", db.ErrSlotUnavailable)
	m.SlotOp("take", db.ErrSlotUnavailable)
	m.TradeOp("accept", db.ErrInvalidState)
	m.PointsAwarded(20)
	m.PointsAwarded(0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.slotOps.WithLabelValues("take", "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.slotOps.WithLabelValues("take", "slot_unavailable")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.tradeOps.WithLabelValues("accept", "invalid_state")))
	assert.Equal(t, float64(20), testutil.ToFloat64(m.pointsAwarded))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest("/shifts/take", http.StatusOK, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `frivillig_http_request_duration_seconds_count{route="/shifts/take",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
