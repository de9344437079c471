package queueaccess

import (
	"context"
	"fmt"

	"galleryd/internal/api"
	"galleryd/internal/queue"
	"galleryd/internal/services"
)

// Access provides queue operations regardless of daemon API or direct store
// backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.QueueItem, error)
	Describe(ctx context.Context, id int64) (*api.QueueItem, error)
	Clear(ctx context.Context, scope string) (int64, error)
	Remove(ctx context.Context, ids []int64) (int64, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	// Live reports whether changes reach a running daemon.
	Live() bool
}

// NewAPIAccess returns an Access backed by the daemon HTTP API.
func NewAPIAccess(client *api.Client) Access {
	return &apiAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store, service: api.NewQueueService(store)}
}

type apiAccess struct {
	client *api.Client
}

func (a *apiAccess) Live() bool { return true }

func (a *apiAccess) Stats(ctx context.Context) (map[string]int, error) {
	resp, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return resp.QueueStats, nil
}

func (a *apiAccess) List(ctx context.Context, statuses []string) ([]api.QueueItem, error) {
	return a.client.List(ctx, statuses)
}

func (a *apiAccess) Describe(ctx context.Context, id int64) (*api.QueueItem, error) {
	return a.client.Describe(ctx, id)
}

func (a *apiAccess) Clear(ctx context.Context, scope string) (int64, error) {
	return a.client.Clear(ctx, scope)
}

func (a *apiAccess) Remove(ctx context.Context, ids []int64) (int64, error) {
	var removed int64
	for _, id := range ids {
		n, err := a.client.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func (a *apiAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	var updated int64
	for _, id := range ids {
		if _, err := a.client.Retry(ctx, id); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

type storeAccess struct {
	store   *queue.Store
	service *api.QueueService
}

func (a *storeAccess) Live() bool { return false }

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.QueueItem, error) {
	filters, err := parseStatuses(statuses)
	if err != nil {
		return nil, err
	}
	return a.service.List(ctx, filters...)
}

func (a *storeAccess) Describe(ctx context.Context, id int64) (*api.QueueItem, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) Clear(ctx context.Context, scope string) (int64, error) {
	if err := api.Validate(api.ClearRequest{Scope: scope}); err != nil {
		return 0, err
	}
	switch scope {
	case "completed":
		return a.store.ClearCompleted(ctx)
	case "failed":
		return a.store.ClearFailed(ctx)
	default:
		return a.store.Clear(ctx)
	}
}

func (a *storeAccess) Remove(ctx context.Context, ids []int64) (int64, error) {
	var removed int64
	for _, id := range ids {
		ok, err := a.store.Delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Retry resets failed rows; the daemon restores them on its next run.
func (a *storeAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return a.store.RetryFailed(ctx, ids...)
}

func parseStatuses(values []string) ([]queue.Status, error) {
	out := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "queue", "filter", fmt.Sprintf("unknown status %q", value), nil)
		}
		out = append(out, status)
	}
	return out, nil
}
