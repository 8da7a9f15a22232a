// Package inflight de-duplicates concurrent calls that share a signature.
// At most one call per signature runs at a time; everyone who asks while it
// is pending receives the same result.
package inflight

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Starter performs the underlying call for a signature
type Starter[T any] func(ctx context.Context) (T, error)

// Registry tracks pending calls by signature
type Registry[T any] struct {
	group singleflight.Group

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{pending: make(map[string]struct{})}
}

// Join runs start for sig unless a call for sig is already pending, in which
// case it waits for that call instead. shared reports whether the result was
// handed to more than one caller.
//
// start runs detached from ctx cancellation: a caller whose ctx ends stops
// waiting and gets ctx.Err(), but the call itself settles for the others.
// The entry is removed before the result is delivered.
func (r *Registry[T]) Join(ctx context.Context, sig string, start Starter[T]) (v T, shared bool, err error) {
	detached := context.WithoutCancel(ctx)

	ch := r.group.DoChan(sig, func() (any, error) {
		r.mark(sig)
		defer r.unmark(sig)
		return start(detached)
	})

	select {
	case res := <-ch:
		if res.Val != nil {
			v = res.Val.(T)
		}
		return v, res.Shared, res.Err
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// InFlight reports whether a call for sig is currently running
func (r *Registry[T]) InFlight(sig string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[sig]
	return ok
}

// Pending returns the number of running calls
func (r *Registry[T]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry[T]) mark(sig string) {
	r.mu.Lock()
	r.pending[sig] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry[T]) unmark(sig string) {
	r.mu.Lock()
	delete(r.pending, sig)
	r.mu.Unlock()
}
