// Package dispatch serializes asynchronous completions onto the host's
// logical thread.
//
// Network work runs in goroutines and posts a callback when it finishes.
// The host drains the queue once per frame (or blocks on it when headless),
// so every callback mutates game state from a single goroutine.
package dispatch

import (
	"context"
	"sync"
)

// Poster accepts callbacks to run on the logical thread.
type Poster interface {
	Post(fn func())
}

// Queue is an unbounded FIFO of callbacks.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	notify  chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Post enqueues fn. Safe for concurrent use; never blocks.
func (q *Queue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued callbacks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain runs every callback queued so far and returns how many ran.
// Callbacks posted while draining run on the next call.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Wait blocks until at least one callback is queued or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	for {
		if q.Len() > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notify:
		}
	}
}

// RunOne waits for a callback and drains the queue.
func (q *Queue) RunOne(ctx context.Context) error {
	if err := q.Wait(ctx); err != nil {
		return err
	}
	q.Drain()
	return nil
}

// Run drains the queue until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if err := q.RunOne(ctx); err != nil {
			return err
		}
	}
}

// RunUntil drains the queue until done reports true or ctx expires.
func (q *Queue) RunUntil(ctx context.Context, done func() bool) error {
	for !done() {
		if err := q.RunOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Immediate runs callbacks inline. Useful where no host loop exists.
type Immediate struct{}

// Post runs fn right away.
func (Immediate) Post(fn func()) {
	if fn != nil {
		fn()
	}
}
