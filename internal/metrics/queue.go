package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/verte-zerg/learnsignals/internal/api"
	"github.com/verte-zerg/learnsignals/internal/logging"
)

type outgoing struct {
	method  string
	path    string
	body    any
	timeout time.Duration
	done    func(error)
}

// writeQueue sends requests one at a time in submission order. At most one
// worker goroutine drains it; the draining flag guards against a second.
type writeQueue struct {
	client *api.Client
	log    *logging.Logger

	mu       sync.Mutex
	items    []outgoing
	draining bool
	pending  int
	idle     chan struct{}
	workers  int
}

func newWriteQueue(client *api.Client, log *logging.Logger) *writeQueue {
	idle := make(chan struct{})
	close(idle)
	return &writeQueue{client: client, log: log, idle: idle}
}

func (q *writeQueue) enqueue(item outgoing) {
	q.mu.Lock()
	q.items = append(q.items, item)
	if q.pending == 0 {
		q.idle = make(chan struct{})
	}
	q.pending++
	start := !q.draining
	if start {
		q.draining = true
		q.workers++
	}
	q.mu.Unlock()
	if start {
		go q.drain()
	}
}

func (q *writeQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		err := q.client.DoJSON(context.Background(), item.timeout, item.method, item.path, item.body, nil)
		if err != nil {
			q.log.Warn("metrics write dropped", "method", item.method, "path", item.path, "error", err)
		}
		if item.done != nil {
			item.done(err)
		}

		q.mu.Lock()
		q.pending--
		if q.pending == 0 {
			close(q.idle)
		}
		q.mu.Unlock()
	}
}

// wait blocks until every enqueued request has been attempted.
func (q *writeQueue) wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *writeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// workerStarts reports how many drain goroutines have been started.
func (q *writeQueue) workerStarts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.workers
}

func post(path string, body any, timeout time.Duration) outgoing {
	return outgoing{method: http.MethodPost, path: path, body: body, timeout: timeout}
}
