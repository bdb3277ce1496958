package command

import (
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/parking-simulator/internal/logging"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("command queue closed")

// DepthRecorder receives the queue depth after every change.
type DepthRecorder interface {
	SetQueueDepth(depth int)
}

// QueueOption customises Queue construction.
type QueueOption func(*Queue)

// WithDepthRecorder attaches an optional depth gauge.
func WithDepthRecorder(r DepthRecorder) QueueOption {
	return func(q *Queue) {
		q.depth = r
	}
}

// WithClock overrides the function used to stamp EnqueuedAt.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// Queue is an unbounded multiple-producer, single-consumer FIFO.
//
// Enqueue never blocks. Commands come out of Drain in exactly the order they
// went in; nothing is merged, dropped or reprioritised while the queue is open.
type Queue struct {
	mu     sync.Mutex
	items  []Command
	closed bool

	depth DepthRecorder
	now   func() time.Time
}

// NewQueue constructs an empty, open queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Enqueue appends cmd, assigning an ID and enqueue timestamp when missing.
// It returns the stored command.
func (q *Queue) Enqueue(cmd Command) (Command, error) {
	if cmd.ID == "" {
		cmd.ID = logging.NewCommandID()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return cmd, ErrQueueClosed
	}
	if cmd.EnqueuedAt.IsZero() {
		cmd.EnqueuedAt = q.now()
	}
	q.items = append(q.items, cmd)
	q.recordDepth(len(q.items))
	q.mu.Unlock()
	return cmd, nil
}

// Drain removes and returns every command queued at the time of the call,
// oldest first. Commands enqueued while the caller processes the batch are
// left for the next Drain.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	batch := q.items
	q.items = nil
	q.recordDepth(0)
	q.mu.Unlock()
	return batch
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the queued commands without removing them.
func (q *Queue) Pending() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Command(nil), q.items...)
}

// Close stops accepting commands and returns the ones still queued, which the
// caller may treat as abandoned.
func (q *Queue) Close() []Command {
	q.mu.Lock()
	q.closed = true
	abandoned := q.items
	q.items = nil
	q.recordDepth(0)
	q.mu.Unlock()
	return abandoned
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// recordDepth must be called with q.mu held.
func (q *Queue) recordDepth(depth int) {
	if q.depth != nil {
		q.depth.SetQueueDepth(depth)
	}
}
