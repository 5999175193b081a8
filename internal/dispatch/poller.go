package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

// checkKey scopes a poll to one (order, requester) pair. Keying by both
// halves means starting or stopping one client's check can never cancel
// another client's in-flight checks.
type checkKey struct {
	orderID     string
	requesterID string
}

// StatusChecks runs the polling fallback of the status notifier: a
// recurring re-read of an order until it is accepted or gone. Cancellation
// only stops future ticks; it never preempts a running tick.
type StatusChecks struct {
	store    storage.OrderStore
	broker   notify.Broker
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	running map[checkKey]context.CancelFunc
}

func NewStatusChecks(store storage.OrderStore, broker notify.Broker, interval time.Duration, log *slog.Logger) *StatusChecks {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &StatusChecks{
		store:    store,
		broker:   broker,
		interval: interval,
		log:      log,
		running:  make(map[checkKey]context.CancelFunc),
	}
}

// Start schedules a recurring check. Starting an already-running check is
// a no-op, so repeated client requests cannot double-emit.
func (c *StatusChecks) Start(orderID, requesterID string) {
	key := checkKey{orderID: orderID, requesterID: requesterID}

	c.mu.Lock()
	if _, exists := c.running[key]; exists {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.running[key] = cancel
	c.mu.Unlock()

	observability.PollChecksLive.Inc()
	go c.run(ctx, key)
}

// Stop cancels future ticks for exactly one (order, requester) pair.
func (c *StatusChecks) Stop(orderID, requesterID string) {
	c.remove(checkKey{orderID: orderID, requesterID: requesterID})
}

// StopAll cancels every scheduled check; used at shutdown.
func (c *StatusChecks) StopAll() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.running))
	for key, cancel := range c.running {
		cancels = append(cancels, cancel)
		delete(c.running, key)
	}
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
		observability.PollChecksLive.Dec()
	}
}

func (c *StatusChecks) remove(key checkKey) {
	c.mu.Lock()
	cancel, ok := c.running[key]
	if ok {
		delete(c.running, key)
	}
	c.mu.Unlock()
	if ok {
		cancel()
		observability.PollChecksLive.Dec()
	}
}

func (c *StatusChecks) run(ctx context.Context, key checkKey) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := c.tick(ctx, key); done {
				c.remove(key)
				return
			}
		}
	}
}

// tick reads the order once. It reports done=true when no further ticks
// should run: the order was accepted (emit once) or is gone/terminal.
// Transient read failures keep the check alive.
func (c *StatusChecks) tick(ctx context.Context, key checkKey) bool {
	readCtx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	o, err := c.store.Get(readCtx, key.orderID)
	if errors.Is(err, storage.ErrNotFound) {
		c.log.Info("status check ended, order gone", "order_id", key.orderID, "requester_id", key.requesterID)
		return true
	}
	if err != nil {
		c.log.Warn("status check read failed, will retry", "order_id", key.orderID, "error", err)
		return false
	}

	switch o.Status {
	case models.StatusAccepted:
		ev := models.Event{
			Type:       models.EventOrderAccepted,
			OrderID:    o.ID,
			DriverName: o.DriverName,
			At:         time.Now(),
		}
		if err := c.broker.Publish(ctx, notify.ClientTopic(key.requesterID), ev); err != nil {
			c.log.Warn("poll emission failed", "order_id", o.ID, "error", err)
		}
		observability.PollEmissions.Inc()
		return true
	case models.StatusCompleted, models.StatusCancelled:
		// terminal without a fresh acceptance to report
		return true
	default:
		return false
	}
}
