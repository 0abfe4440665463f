// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rejit // import "go.opentelemetry.io/clrprofiler/rejit"

import (
	"errors"
	"sync"
)

// ErrShutdown is returned for work submitted after the handler started
// shutting down.
var ErrShutdown = errors.New("rejit handler is shut down")

// queue is an unbounded FIFO with many producers and one consumer.
// Producers never block beyond the short lock hold; pop blocks until an item
// is available.
type queue struct {
	mu     sync.Mutex
	cond   sync.Cond
	items  []WorkItem
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond.L = &q.mu
	return q
}

// push appends item unless the queue was closed.
func (q *queue) push(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrShutdown
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return nil
}

// close appends the final item and rejects all later pushes. It reports
// whether the queue was open.
func (q *queue) close(final WorkItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, final)
	q.closed = true
	q.cond.Signal()
	return true
}

// pop removes and returns the oldest item, waiting for one if necessary.
func (q *queue) pop() WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return item
}

// len returns the number of queued items.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
