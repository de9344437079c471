package queueaccess

import (
	"context"
	"errors"
	"fmt"

	"galleryd/internal/api"
	"galleryd/internal/queue"
)

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback uses the daemon API when it answers a status probe, then
// falls back to direct store access.
func OpenWithFallback(
	ctx context.Context,
	dial func() (*api.Client, error),
	openStore func() (*queue.Store, error),
) (Session, error) {
	if dial != nil {
		client, err := dial()
		if err == nil {
			_, err = client.Status(ctx)
			if err == nil {
				return Session{Access: NewAPIAccess(client)}, nil
			}
			if !errors.Is(err, api.ErrUnavailable) {
				return Session{}, fmt.Errorf("query daemon: %w", err)
			}
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store),
		close:  store.Close,
	}, nil
}
