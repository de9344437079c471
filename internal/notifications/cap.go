package notifications

import (
	"context"
	"sync"

	"galleryd/internal/metrics"
)

// activeCap limits how many galleries can have live progress notifications.
// Progress for a gallery outside the active set is dropped while the set is
// full; completion and failure free the gallery's slot.
type activeCap struct {
	inner Service
	max   int

	mu     sync.Mutex
	active map[int64]struct{}
}

// WithActiveCap wraps inner with a progress cap of max galleries. A max of
// zero or less disables the cap.
func WithActiveCap(inner Service, max int) Service {
	if max <= 0 {
		return inner
	}
	return &activeCap{inner: inner, max: max, active: make(map[int64]struct{})}
}

func (c *activeCap) Publish(ctx context.Context, event Event, payload Payload) error {
	id := payload.Int64("id")
	switch event {
	case EventDownloadProgress:
		if !c.admit(id) {
			metrics.Notifications.WithLabelValues(string(event), metrics.OutcomeDropped).Inc()
			return nil
		}
	case EventDownloadCompleted, EventDownloadFailed:
		c.release(id)
	}
	return c.inner.Publish(ctx, event, payload)
}

func (c *activeCap) admit(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[id]; ok {
		return true
	}
	if len(c.active) >= c.max {
		return false
	}
	c.active[id] = struct{}{}
	return true
}

func (c *activeCap) release(id int64) {
	c.mu.Lock()
	delete(c.active, id)
	c.mu.Unlock()
}
