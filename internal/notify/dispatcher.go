package notify

import (
	"context"

	"github.com/sweeney/heater-controller/internal/logger"
)

// DefaultQueueSize bounds the alerts waiting for delivery.
const DefaultQueueSize = 16

// Dispatcher hands alerts to a Notifier on its own goroutine so that slow
// or retrying delivery never blocks the control loop.
type Dispatcher struct {
	n     Notifier
	queue chan Alert
	log   *logger.Logger

	// OnResult, if set, is called after each delivery attempt finishes.
	OnResult func(a Alert, err error)
}

// NewDispatcher creates a dispatcher with a queue of size entries.
func NewDispatcher(n Notifier, size int, log *logger.Logger) *Dispatcher {
	if size < 1 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{n: n, queue: make(chan Alert, size), log: log}
}

// Enqueue queues a without blocking. It reports false when the queue is
// full and the alert was dropped.
func (d *Dispatcher) Enqueue(a Alert) bool {
	select {
	case d.queue <- a:
		return true
	default:
		d.log.Warnw("alert queue full, dropping alert", "alert", a.ID, "category", a.Category)
		return false
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.log.Warnw("dispatcher stopping with undelivered alerts", "count", n)
			}
			return nil
		case a := <-d.queue:
			err := d.n.Notify(ctx, a)
			if err != nil {
				d.log.Errorw("alert delivery failed", "alert", a.ID, "category", a.Category, "err", err)
			} else {
				d.log.Infow("alert delivered", "alert", a.ID, "category", a.Category)
			}
			if d.OnResult != nil {
				d.OnResult(a, err)
			}
		}
	}
}

// Pending returns the number of queued alerts.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
