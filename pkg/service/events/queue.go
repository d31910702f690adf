// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

// Package events holds the bounded queue that carries button events from
// interrupt context to readers.
//
// The producer side (Push) never blocks and never allocates. When the queue
// is full the new event is dropped and counted; the oldest queued events are
// kept. The consumer side (Pop, Read) blocks until an event is available, the
// caller's context is canceled, or the queue is closed. Every accepted event
// is delivered to exactly one consumer, in the order it was accepted.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	// QueueClosedError is returned by consumers once the queue has been closed
	// and no more events are queued.
	QueueClosedError = errors.New("event queue closed")
	// IsQueueClosed returns true when the cause of the given error is QueueClosedError.
	IsQueueClosed = func(err error) bool {
		return errors.Cause(err) == QueueClosedError
	}
	// InvalidBufferError is returned when Read is given an empty buffer.
	InvalidBufferError = errors.New("invalid buffer")
)

// Event is a single button event: the edge-capture bitmask at interrupt time.
type Event byte

// Queue is a fixed capacity FIFO of events.
type Queue struct {
	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
	accepted  atomic.Uint64
	dropped   atomic.Uint64
}

// NewQueue creates an empty queue with given capacity.
func NewQueue(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("queue capacity must be positive, got %d", capacity)
	}
	return &Queue{
		events: make(chan Event, capacity),
		closed: make(chan struct{}),
	}, nil
}

// Push adds an event to the queue without blocking.
// Returns false when the queue is full (the event is dropped).
// Push must not be called after Close.
func (q *Queue) Push(ev Event) bool {
	select {
	case q.events <- ev:
		q.accepted.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// TryPop removes the oldest event without blocking.
func (q *Queue) TryPop() (Event, bool) {
	select {
	case ev := <-q.events:
		return ev, true
	default:
		return 0, false
	}
}

// Pop removes the oldest event, waiting until one is available.
func (q *Queue) Pop(ctx context.Context) (Event, error) {
	if ev, ok := q.TryPop(); ok {
		return ev, nil
	}
	select {
	case ev := <-q.events:
		return ev, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-q.closed:
		// Deliver what was queued before closing
		if ev, ok := q.TryPop(); ok {
			return ev, nil
		}
		return 0, errors.WithStack(QueueClosedError)
	}
}

// Read fills p with queued events, one byte per event.
// When the queue is empty, Read waits for the first event; it then takes
// whatever else is queued (up to len(p)) without waiting again.
// Returns the number of bytes delivered.
func (q *Queue) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, errors.WithStack(InvalidBufferError)
	}
	ev, err := q.Pop(ctx)
	if err != nil {
		return 0, err
	}
	p[0] = byte(ev)
	n := 1
	for n < len(p) {
		ev, ok := q.TryPop()
		if !ok {
			break
		}
		p[n] = byte(ev)
		n++
	}
	return n, nil
}

// Close wakes all waiting consumers.
// Events still queued can be drained after Close.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

// Len returns the number of queued events.
func (q *Queue) Len() int { return len(q.events) }

// Cap returns the capacity of the queue.
func (q *Queue) Cap() int { return cap(q.events) }

// Accepted returns the number of events accepted by Push.
func (q *Queue) Accepted() uint64 { return q.accepted.Load() }

// Dropped returns the number of events dropped by Push because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
