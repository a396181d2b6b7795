// Package collector aggregates delivery attempts and computes delivery metrics.
package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"clicksim/internal/core"
)

// Collector aggregates attempts reported by the batch sender.
type Collector struct {
	attempts  []core.Attempt
	ch        chan core.Attempt
	done      chan struct{}
	mu        sync.Mutex
	dropped   atomic.Int64
	closeOnce sync.Once
	startTime time.Time
	endTime   time.Time
}

// NewCollector creates a new Collector and starts its collection goroutine.
func NewCollector() *Collector {
	c := &Collector{
		attempts:  make([]core.Attempt, 0),
		ch:        make(chan core.Attempt, 1000),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	go c.collect()
	return c
}

func (c *Collector) collect() {
	for a := range c.ch {
		c.mu.Lock()
		c.attempts = append(c.attempts, a)
		c.mu.Unlock()
	}
	close(c.done)
}

// Report sends an attempt to the collector. Thread-safe. Attempts reported
// while the buffer is full are counted as dropped.
func (c *Collector) Report(a core.Attempt) {
	select {
	case c.ch <- a:
	default:
		c.dropped.Add(1)
	}
}

// Close stops accepting attempts and waits for the buffer to drain.
// Calling Close more than once is a no-op.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.endTime = time.Now()
		c.mu.Unlock()
		close(c.ch)
		<-c.done
	})
}

// Attempts returns a copy of collected attempts.
func (c *Collector) Attempts() []core.Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]core.Attempt, len(c.attempts))
	copy(result, c.attempts)
	return result
}

// DroppedAttempts returns the number of attempts lost to a full buffer.
func (c *Collector) DroppedAttempts() int64 {
	return c.dropped.Load()
}

// Duration returns the collection window. Before Close it is measured to now.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endTime.IsZero() {
		return c.endTime.Sub(c.startTime)
	}
	return time.Since(c.startTime)
}

// Compute returns metrics over everything collected so far.
func (c *Collector) Compute() *Metrics {
	return ComputeMetrics(c.Attempts(), c.Duration())
}
