// Package flight provides in-process duplicate call suppression: concurrent
// callers asking for the same key share a single in-flight computation.
//
// Unlike golang.org/x/sync/singleflight, the shared computation runs on a
// context detached from any one caller. It is cancelled only once every
// caller waiting on it has gone away.
package flight

import (
	"context"
	"fmt"
	"sync"
)

// call is an in-flight or completed Do call.
type call[T any] struct {
	done    chan struct{}
	val     T
	err     error
	waiters int
	cancel  context.CancelFunc
}

// Group deduplicates concurrent computations per key. The zero value is
// ready to use.
type Group[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

// Do executes fn for key, making sure only one execution is in flight at a
// time. Concurrent callers for the same key wait for the original to finish
// and receive the same value and error. shared reports whether the caller
// joined an existing computation.
//
// If ctx is done before the computation finishes, Do returns ctx.Err(). The
// computation itself keeps running for other waiters and is cancelled when
// the last waiter leaves.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (val T, shared bool, err error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call[T])
	}
	c, shared := g.calls[key]
	if !shared {
		cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call[T]{done: make(chan struct{}), cancel: cancel}
		g.calls[key] = c
		go g.run(cctx, key, c, fn)
	}
	c.waiters++
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, shared, c.err
	case <-ctx.Done():
		g.leave(key, c)
		var zero T
		return zero, shared, ctx.Err()
	}
}

// InFlight returns the number of keys with a computation in progress.
func (g *Group[T]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *Group[T]) leave(key string, c *call[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.waiters--
	if c.waiters > 0 {
		return
	}
	c.cancel()
	// Abandoned: later callers must start a fresh computation rather than
	// join one whose context is already cancelled.
	if g.calls[key] == c {
		delete(g.calls, key)
	}
}

func (g *Group[T]) run(ctx context.Context, key string, c *call[T], fn func(context.Context) (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("flight %q panicked: %v", key, r)
		}
		c.cancel()
		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn(ctx)
}
