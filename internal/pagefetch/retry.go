package pagefetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"galleryd/internal/metrics"
	"galleryd/internal/services"
)

// FetchFunc fetches one page in the given extension.
type FetchFunc func(ctx context.Context, ext string) ([]byte, error)

// Result is the terminal outcome of an extension retry.
type Result struct {
	Data []byte
	Ext  string
	Err  error
}

// Candidates orders the extensions to try: hint first, then the rest of
// candidates in their configured order without duplicates.
func Candidates(hint string, candidates []string) []string {
	order := make([]string, 0, len(candidates)+1)
	seen := make(map[string]struct{}, len(candidates)+1)
	add := func(ext string) {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			return
		}
		if _, ok := seen[ext]; ok {
			return
		}
		seen[ext] = struct{}{}
		order = append(order, ext)
	}
	add(hint)
	for _, ext := range candidates {
		add(ext)
	}
	return order
}

// ExtensionRetry walks a page through its candidate extensions on a Queue
// lane. The first attempt is queued normally; every failed attempt queues
// the next candidate with priority so it runs before other pages of the same
// gallery. done is called exactly once.
type ExtensionRetry struct {
	Queue      *Queue
	Key        int64
	Candidates []string
	Fetch      FetchFunc
	Done       func(Result)

	errs []error
}

// Start queues the first attempt.
func (r *ExtensionRetry) Start() {
	if len(r.Candidates) == 0 {
		r.Done(Result{Err: services.Wrap(services.ErrValidation, "pagefetch", "retry", "no candidate extensions", nil)})
		return
	}
	r.Queue.Enqueue(r.Key, r.attempt(0), false)
}

func (r *ExtensionRetry) attempt(index int) Task {
	return func(ctx context.Context) {
		ext := r.Candidates[index]
		data, err := r.Fetch(ctx, ext)
		if err == nil {
			metrics.PageFetchAttempts.WithLabelValues(metrics.OutcomeOK).Inc()
			r.Done(Result{Data: data, Ext: ext})
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			metrics.PageFetchAttempts.WithLabelValues(metrics.OutcomeDropped).Inc()
			r.Done(Result{Err: err})
			return
		}
		metrics.PageFetchAttempts.WithLabelValues(metrics.OutcomeTransient).Inc()
		r.errs = append(r.errs, fmt.Errorf("%s: %w", ext, err))
		if index+1 < len(r.Candidates) {
			r.Queue.Enqueue(r.Key, r.attempt(index+1), true)
			return
		}
		metrics.PageFetchAttempts.WithLabelValues(metrics.OutcomeFatal).Inc()
		r.Done(Result{Err: fmt.Errorf("page unavailable as %s: %w", strings.Join(r.Candidates, ", "), errors.Join(r.errs...))})
	}
}

// FetchWithRetry starts an ExtensionRetry for key trying hint first.
func (q *Queue) FetchWithRetry(key int64, hint string, candidates []string, fetch FetchFunc, done func(Result)) {
	r := &ExtensionRetry{
		Queue:      q,
		Key:        key,
		Candidates: Candidates(hint, candidates),
		Fetch:      fetch,
		Done:       done,
	}
	r.Start()
}
