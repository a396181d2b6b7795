// Package queue buffers generated events between session producers and the
// batch sender.
package queue

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"clicksim/internal/event"
)

// Queue is an unbounded FIFO safe for many producers and one consumer.
// Growth is not limited; a high watermark only produces a warning.
type Queue struct {
	mu      sync.Mutex
	backlog []event.Event

	highWatermark int
	overWatermark bool
	logger        *zap.Logger

	pushed   atomic.Uint64
	popped   atomic.Uint64
	requeued atomic.Uint64
}

// Option configures a Queue.
type Option func(*Queue)

// WithHighWatermark logs a warning each time the backlog grows past n.
// Zero disables the check.
func WithHighWatermark(n int) Option {
	return func(q *Queue) { q.highWatermark = n }
}

// WithLogger sets the logger used for watermark warnings.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates an empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends ev at the tail.
func (q *Queue) Push(ev event.Event) {
	q.pushed.Add(1)
	q.mu.Lock()
	q.backlog = append(q.backlog, ev)
	q.checkWatermarkLocked()
	q.mu.Unlock()
}

// PushBatch re-enqueues events at the tail, preserving their relative order.
func (q *Queue) PushBatch(batch []event.Event) {
	if len(batch) == 0 {
		return
	}
	q.requeued.Add(uint64(len(batch)))
	q.mu.Lock()
	q.backlog = append(q.backlog, batch...)
	q.checkWatermarkLocked()
	q.mu.Unlock()
}

// PopBatch removes up to max events from the head. It never blocks and
// returns nil when the queue is empty.
func (q *Queue) PopBatch(max int) []event.Event {
	if max <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.backlog)
	if n == 0 {
		return nil
	}
	if n > max {
		n = max
	}
	batch := make([]event.Event, n)
	copy(batch, q.backlog[:n])

	// drop references so delivered events can be collected
	clear(q.backlog[:n])
	q.backlog = q.backlog[n:]
	if len(q.backlog) == 0 {
		q.backlog = nil
	}

	q.popped.Add(uint64(n))
	if q.highWatermark > 0 && len(q.backlog) <= q.highWatermark {
		q.overWatermark = false
	}
	return batch
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Metrics is a snapshot of queue counters.
type Metrics struct {
	Pushed   uint64
	Popped   uint64
	Requeued uint64
	Backlog  int
}

// Metrics returns counters and current size.
func (q *Queue) Metrics() Metrics {
	return Metrics{
		Pushed:   q.pushed.Load(),
		Popped:   q.popped.Load(),
		Requeued: q.requeued.Load(),
		Backlog:  q.Len(),
	}
}

func (q *Queue) checkWatermarkLocked() {
	if q.highWatermark <= 0 || q.overWatermark {
		return
	}
	if size := len(q.backlog); size > q.highWatermark {
		q.overWatermark = true
		q.logger.Warn("queue backlog exceeds high watermark",
			zap.Int("backlog_size", size),
			zap.Int("high_watermark", q.highWatermark))
	}
}
