package pagefetch

import (
	"context"
	"slices"
	"sync"
)

// Task is one unit of work for a gallery. ctx is cancelled when the queue
// closes.
type Task func(ctx context.Context)

type lane struct {
	tasks   []Task
	running bool
	refs    int
}

// Queue runs tasks sequentially per key.
type Queue struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	lanes map[int64]*lane
	wg    sync.WaitGroup
}

// NewQueue returns an idle queue.
func NewQueue() *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{ctx: ctx, cancel: cancel, lanes: make(map[int64]*lane)}
}

// Handle keeps a key's lane alive between tasks.
type Handle struct {
	queue *Queue
	key   int64
	once  sync.Once
}

// Acquire takes a reference on key.
func (q *Queue) Acquire(key int64) *Handle {
	q.mu.Lock()
	q.laneLocked(key).refs++
	q.mu.Unlock()
	return &Handle{queue: q, key: key}
}

// Release drops the reference. Extra calls are no-ops.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		q := h.queue
		q.mu.Lock()
		defer q.mu.Unlock()
		if l, ok := q.lanes[h.key]; ok {
			l.refs--
			q.pruneLocked(h.key, l)
		}
	})
}

// Enqueue appends task to key's lane and starts it when the lane is idle.
// With priority, the task runs right after the one currently running.
func (q *Queue) Enqueue(key int64, task Task, priority bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l := q.laneLocked(key)
	if priority && len(l.tasks) > 0 {
		l.tasks = slices.Insert(l.tasks, 1, task)
	} else {
		l.tasks = append(l.tasks, task)
	}
	if !l.running {
		l.running = true
		q.wg.Add(1)
		go q.run(key, l)
	}
}

// Active reports whether key still has a lane.
func (q *Queue) Active(key int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.lanes[key]
	return ok
}

// Pending returns the number of queued tasks for key, including the running one.
func (q *Queue) Pending(key int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if l, ok := q.lanes[key]; ok {
		return len(l.tasks)
	}
	return 0
}

// Close cancels running tasks and waits for the runners to drain.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) run(key int64, l *lane) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(l.tasks) == 0 {
			l.running = false
			q.pruneLocked(key, l)
			q.mu.Unlock()
			return
		}
		task := l.tasks[0]
		q.mu.Unlock()

		task(q.ctx)

		q.mu.Lock()
		l.tasks = l.tasks[1:]
		q.mu.Unlock()
	}
}

func (q *Queue) laneLocked(key int64) *lane {
	l, ok := q.lanes[key]
	if !ok {
		l = &lane{}
		q.lanes[key] = l
	}
	return l
}

func (q *Queue) pruneLocked(key int64, l *lane) {
	if l.refs <= 0 && !l.running && len(l.tasks) == 0 && q.lanes[key] == l {
		delete(q.lanes, key)
	}
}
