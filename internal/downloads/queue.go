package downloads

import (
	"fmt"
	"sync"

	"galleryd/internal/metrics"
	"galleryd/internal/queue"
	"galleryd/internal/services"
)

// Queue is the in-memory ordered set of downloaders, at most one per id. Its
// mutex is independent of the worker's execution token, so enqueue calls and
// metadata polling never wait on a running download.
type Queue struct {
	deps Deps

	mu      sync.Mutex
	order   []*Downloader
	byID    map[int64]*Downloader
	claimed map[int64]struct{}
}

// NewQueue returns an empty queue whose downloaders share deps.
func NewQueue(deps Deps) *Queue {
	return &Queue{
		deps:    deps,
		byID:    make(map[int64]*Downloader),
		claimed: make(map[int64]struct{}),
	}
}

// Add inserts entry, or merges it into the downloader already queued for the
// same id. An id that is currently downloading is left untouched and Add
// reports AddIgnored; the in-flight step is never restarted. A queued entry
// that already reached a terminal state is replaced.
func (q *Queue) Add(entry queue.Entry) (AddResult, error) {
	if entry.ID <= 0 {
		return AddIgnored, services.Wrap(services.ErrValidation, "enqueue", "add", fmt.Sprintf("invalid gallery id %d", entry.ID), nil)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byID[entry.ID]; ok {
		if !existing.Status().IsTerminal() {
			return existing.merge(entry), nil
		}
		q.removeLocked(entry.ID)
	}
	d := NewDownloader(entry, q.deps)
	q.order = append(q.order, d)
	q.byID[entry.ID] = d
	metrics.QueueDepth.Set(float64(len(q.order)))
	return AddInserted, nil
}

// FetchForData returns the next downloader that still needs metadata and
// takes it out of the data view until ReleaseData. Content-ready entries are
// not touched. It never blocks.
func (q *Queue) FetchForData() (*Downloader, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range q.order {
		id := d.ID()
		if _, taken := q.claimed[id]; taken {
			continue
		}
		if d.needsData() {
			q.claimed[id] = struct{}{}
			return d, true
		}
	}
	return nil, false
}

// ReleaseData puts an unresolved downloader back into the data view.
func (q *Queue) ReleaseData(id int64) {
	q.mu.Lock()
	delete(q.claimed, id)
	q.mu.Unlock()
}

// Fetch returns, without removing it, the oldest downloader whose metadata is
// resolved and that has not reached a terminal state.
func (q *Queue) Fetch() (*Downloader, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range q.order {
		if d.readyForContent() {
			return d, true
		}
	}
	return nil, false
}

// HasWork reports whether any queued downloader still needs metadata or
// content. Held and terminal entries do not count.
func (q *Queue) HasWork() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range q.order {
		if d.needsData() || d.readyForContent() {
			return true
		}
	}
	return false
}

// Get returns the queued downloader for id.
func (q *Queue) Get(id int64) (*Downloader, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.byID[id]
	return d, ok
}

// Complete drops id after its downloader reached a terminal state.
func (q *Queue) Complete(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(id)
}

// Remove cancels id. A downloader that is mid-step stops after its current
// page and no longer writes to the store. Reports whether id was queued.
func (q *Queue) Remove(id int64) bool {
	q.mu.Lock()
	d, ok := q.byID[id]
	if ok {
		q.removeLocked(id)
	}
	q.mu.Unlock()
	if ok {
		d.Cancel()
	}
	return ok
}

// Pause holds id so Fetch skips it; a running step stops after its current
// page. Reports whether id was queued.
func (q *Queue) Pause(id int64) bool {
	d, ok := q.Get(id)
	if ok {
		d.RequestPause()
	}
	return ok
}

// Resume releases a hold placed by Pause.
func (q *Queue) Resume(id int64) bool {
	d, ok := q.Get(id)
	if ok {
		d.Resume()
	}
	return ok
}

// Clear cancels and drops every queued downloader.
func (q *Queue) Clear() int {
	q.mu.Lock()
	removed := q.order
	q.order = nil
	q.byID = make(map[int64]*Downloader)
	q.claimed = make(map[int64]struct{})
	metrics.QueueDepth.Set(0)
	q.mu.Unlock()
	for _, d := range removed {
		d.Cancel()
	}
	return len(removed)
}

// Len returns the number of queued downloaders.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Snapshot returns copies of the queued entries in insertion order.
func (q *Queue) Snapshot() []queue.Entry {
	q.mu.Lock()
	order := append([]*Downloader(nil), q.order...)
	q.mu.Unlock()
	entries := make([]queue.Entry, 0, len(order))
	for _, d := range order {
		entries = append(entries, d.Entry())
	}
	return entries
}

func (q *Queue) removeLocked(id int64) {
	if _, ok := q.byID[id]; !ok {
		return
	}
	delete(q.byID, id)
	delete(q.claimed, id)
	for i, d := range q.order {
		if d.ID() == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	metrics.QueueDepth.Set(float64(len(q.order)))
}
