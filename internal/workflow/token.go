package workflow

import "context"

// Token is the single-flight execution token. At most one holder exists at a
// time; Acquire blocks until the token is free or ctx ends.
type Token struct {
	slot chan struct{}
}

// NewToken returns a free token.
func NewToken() *Token {
	return &Token{slot: make(chan struct{}, 1)}
}

// Acquire takes the token.
func (t *Token) Acquire(ctx context.Context) error {
	select {
	case t.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the token. Releasing a free token is a no-op.
func (t *Token) Release() {
	select {
	case <-t.slot:
	default:
	}
}
