package pagefetch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galleryd/internal/pagefetch"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) task(name string, wg *sync.WaitGroup, gate <-chan struct{}) pagefetch.Task {
	wg.Add(1)
	return func(context.Context) {
		defer wg.Done()
		if gate != nil {
			<-gate
		}
		r.mu.Lock()
		r.order = append(r.order, name)
		r.mu.Unlock()
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestQueueRunsTasksInOrder(t *testing.T) {
	q := pagefetch.NewQueue()
	defer q.Close()
	rec := &recorder{}
	var wg sync.WaitGroup

	q.Enqueue(1, rec.task("A", &wg, nil), false)
	q.Enqueue(1, rec.task("B", &wg, nil), false)
	q.Enqueue(1, rec.task("C", &wg, nil), false)
	wg.Wait()

	assert.Equal(t, []string{"A", "B", "C"}, rec.snapshot())
}

func TestQueuePriorityRunsAfterHead(t *testing.T) {
	q := pagefetch.NewQueue()
	defer q.Close()
	rec := &recorder{}
	var wg sync.WaitGroup
	gate := make(chan struct{})

	q.Enqueue(1, rec.task("A", &wg, gate), false)
	q.Enqueue(1, rec.task("B", &wg, nil), false)
	q.Enqueue(1, rec.task("C", &wg, nil), false)
	q.Enqueue(1, rec.task("D", &wg, nil), true)
	close(gate)
	wg.Wait()

	assert.Equal(t, []string{"A", "D", "B", "C"}, rec.snapshot())
}

func TestQueuePriorityOnIdleLaneRunsImmediately(t *testing.T) {
	q := pagefetch.NewQueue()
	defer q.Close()
	rec := &recorder{}
	var wg sync.WaitGroup

	q.Enqueue(5, rec.task("only", &wg, nil), true)
	wg.Wait()
	assert.Equal(t, []string{"only"}, rec.snapshot())
}

func TestQueueKeysRunIndependently(t *testing.T) {
	q := pagefetch.NewQueue()
	defer q.Close()
	gate := make(chan struct{})
	defer close(gate)
	done := make(chan struct{})

	q.Enqueue(1, func(context.Context) { <-gate }, false)
	q.Enqueue(2, func(context.Context) { close(done) }, false)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a blocked gallery must not stall another gallery")
	}
}

func TestQueueRemovesLaneWhenDrainedAndReleased(t *testing.T) {
	q := pagefetch.NewQueue()
	defer q.Close()
	var wg sync.WaitGroup
	rec := &recorder{}

	handle := q.Acquire(7)
	assert.True(t, q.Active(7))
	q.Enqueue(7, rec.task("A", &wg, nil), false)
	wg.Wait()

	require.Eventually(t, func() bool { return q.Pending(7) == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, q.Active(7), "lane must survive while a handle is held")

	handle.Release()
	handle.Release()
	require.Eventually(t, func() bool { return !q.Active(7) }, time.Second, 5*time.Millisecond)

	q.Enqueue(8, rec.task("B", &wg, nil), false)
	wg.Wait()
	require.Eventually(t, func() bool { return !q.Active(8) }, time.Second, 5*time.Millisecond)
}

func TestExtensionRetryFallsBackToWebp(t *testing.T) {
	q := pagefetch.NewQueue()
	defer q.Close()

	var (
		mu    sync.Mutex
		tried []string
	)
	results := make(chan pagefetch.Result, 4)
	q.FetchWithRetry(3, "jpg", []string{"jpg", "png", "webp", "gif"},
		func(_ context.Context, ext string) ([]byte, error) {
			mu.Lock()
			tried = append(tried, ext)
			mu.Unlock()
			if ext == "webp" {
				return []byte("webp-bytes"), nil
			}
			return nil, errors.New("404")
		},
		func(r pagefetch.Result) { results <- r },
	)

	r := <-results
	require.NoError(t, r.Err)
	assert.Equal(t, "webp", r.Ext)
	assert.Equal(t, []byte("webp-bytes"), r.Data)
	mu.Lock()
	assert.Equal(t, []string{"jpg", "png", "webp"}, tried)
	mu.Unlock()

	require.Eventually(t, func() bool { return !q.Active(3) }, time.Second, 5*time.Millisecond)
	assert.Empty(t, results)
}

func TestExtensionRetryReportsOneTerminalFailure(t *testing.T) {
	q := pagefetch.NewQueue()
	defer q.Close()

	var calls sync.WaitGroup
	calls.Add(4)
	results := make(chan pagefetch.Result, 8)
	q.FetchWithRetry(4, "png", []string{"jpg", "png", "webp", "gif"},
		func(_ context.Context, ext string) ([]byte, error) {
			calls.Done()
			return nil, errors.New("missing " + ext)
		},
		func(r pagefetch.Result) { results <- r },
	)
	calls.Wait()

	r := <-results
	require.Error(t, r.Err)
	assert.Contains(t, r.Err.Error(), "missing gif")
	require.Eventually(t, func() bool { return !q.Active(4) }, time.Second, 5*time.Millisecond)
	assert.Empty(t, results, "exactly one terminal result")
}

func TestExtensionRetryJumpsAheadOfQueuedPages(t *testing.T) {
	q := pagefetch.NewQueue()
	defer q.Close()
	rec := &recorder{}
	gate := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	q.FetchWithRetry(9, "jpg", []string{"jpg", "png"},
		func(_ context.Context, ext string) ([]byte, error) {
			if ext == "jpg" {
				<-gate
			}
			rec.mu.Lock()
			rec.order = append(rec.order, "page1."+ext)
			rec.mu.Unlock()
			if ext == "png" {
				return []byte("ok"), nil
			}
			return nil, errors.New("404")
		},
		func(pagefetch.Result) { wg.Done() },
	)
	q.Enqueue(9, rec.task("page2", &wg, nil), false)
	close(gate)
	wg.Wait()

	assert.Equal(t, []string{"page1.jpg", "page1.png", "page2"}, rec.snapshot())
}

func TestExtensionRetryStopsOnCancellation(t *testing.T) {
	q := pagefetch.NewQueue()
	defer q.Close()
	results := make(chan pagefetch.Result, 4)
	attempts := 0
	q.FetchWithRetry(10, "jpg", []string{"jpg", "png"},
		func(context.Context, string) ([]byte, error) {
			attempts++
			return nil, context.Canceled
		},
		func(r pagefetch.Result) { results <- r },
	)
	r := <-results
	assert.ErrorIs(t, r.Err, context.Canceled)
	require.Eventually(t, func() bool { return !q.Active(10) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, attempts)
}

func TestCandidatesPutsHintFirst(t *testing.T) {
	assert.Equal(t, []string{"webp", "jpg", "png", "gif"}, pagefetch.Candidates("webp", []string{"jpg", "png", "webp", "gif"}))
	assert.Equal(t, []string{"jpg", "png"}, pagefetch.Candidates("", []string{"jpg", "png", "JPG"}))
}
