// Package metrics holds the Prometheus collectors for the HTTP API.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voreskerne/frivillig/pkg/db"
)

// Metrics is a private registry and the collectors registered on it
type Metrics struct {
	registry *prometheus.Registry

	slotOps       *prometheus.CounterVec
	tradeOps      *prometheus.CounterVec
	pointsAwarded prometheus.Counter
	notifications *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		slotOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "frivillig_slot_operations_total",
			Help: "Slot take/leave/update operations by result",
		}, []string{"op", "result"}),
		tradeOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "frivillig_trade_operations_total",
			Help: "Trade propose/accept/cancel operations by result",
		}, []string{"op", "result"}),
		pointsAwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "frivillig_points_awarded_total",
			Help: "Total points credited for completed tasks",
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "frivillig_trade_notifications_total",
			Help: "Trade completed notifications by outcome (sent, failed, dropped)",
		}, []string{"result"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frivillig_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SlotOp(op string, err error) {
	m.slotOps.WithLabelValues(op, Result(err)).Inc()
}

func (m *Metrics) TradeOp(op string, err error) {
	m.tradeOps.WithLabelValues(op, Result(err)).Inc()
}

func (m *Metrics) PointsAwarded(points int) {
	if points > 0 {
		m.pointsAwarded.Add(float64(points))
	}
}

func (m *Metrics) Notification(result string) {
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Result turns an operation error into a low-cardinality label value
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, db.ErrNotFound):
		return "not_found"
	case errors.Is(err, db.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, db.ErrNotHolder):
		return "not_holder"
	case errors.Is(err, db.ErrDuplicatePendingTrade):
		return "duplicate_pending_trade"
	case errors.Is(err, db.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, db.ErrNotOfferingUser):
		return "not_offering_user"
	case errors.Is(err, db.ErrSelfTrade):
		return "self_trade"
	case errors.Is(err, db.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, db.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
