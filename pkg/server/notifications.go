package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/core/services"
	"github.com/voreskerne/frivillig/pkg/db"
	"github.com/voreskerne/frivillig/pkg/metrics"
)

var (
	errQueueFull   = errors.New("notification queue is full")
	errQueueClosed = errors.New("notification queue is closed")
)

type tradeJob struct {
	trade *db.ShiftTrade
	slot  *db.ShiftRole
}

// notificationQueue hands completed trades to the notifier on a single
// worker goroutine, so a throttled mailer never holds up a request.
// It implements services.TradeNotifier.
type notificationQueue struct {
	next    services.TradeNotifier
	logger  *zap.Logger
	metrics *metrics.Metrics
	jobs    chan tradeJob
	done    chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
}

func newNotificationQueue(next services.TradeNotifier, size int, m *metrics.Metrics, logger *zap.Logger) *notificationQueue {
	if size <= 0 {
		size = 1
	}
	return &notificationQueue{
		next:    next,
		logger:  logger,
		metrics: m,
		jobs:    make(chan tradeJob, size),
		done:    make(chan struct{}),
	}
}

// TradeCompleted enqueues the notification without waiting. A full queue
// drops it.
func (q *notificationQueue) TradeCompleted(_ context.Context, trade *db.ShiftTrade, slot *db.ShiftRole) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.metrics.Notification("dropped")
		return errQueueClosed
	}
	select {
	case q.jobs <- tradeJob{trade: trade, slot: slot}:
		return nil
	default:
		q.metrics.Notification("dropped")
		return fmt.Errorf("trade %s: %w", trade.ID, errQueueFull)
	}
}

// start launches the worker. Calling it again is a no-op.
func (q *notificationQueue) start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go q.run(ctx)
}

func (q *notificationQueue) run(ctx context.Context) {
	defer close(q.done)
	for job := range q.jobs {
		if ctx.Err() != nil {
			q.metrics.Notification("dropped")
			q.logger.Warn("Trade notification dropped at shutdown", zap.String("trade_id", job.trade.ID))
			continue
		}
		if err := q.next.TradeCompleted(ctx, job.trade, job.slot); err != nil {
			q.metrics.Notification("failed")
			q.logger.Error("Failed to send trade completed notification", zap.String("trade_id", job.trade.ID), zap.Error(err))
			continue
		}
		q.metrics.Notification("sent")
	}
}

// drain stops accepting work and waits for queued notifications to go out.
// When ctx ends first the notification in flight is cancelled and the rest
// are dropped.
func (q *notificationQueue) drain(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if !started {
		if n := len(q.jobs); n > 0 {
			q.logger.Warn("Trade notifications dropped, worker never started", zap.Int("count", n))
		}
		return nil
	}

	defer q.cancel()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return fmt.Errorf("notifications still pending at shutdown: %w", ctx.Err())
	}
}
