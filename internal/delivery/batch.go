package delivery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"clicksim/internal/core"
	"clicksim/internal/queue"
)

// Defaults for BatchConfig.
const (
	DefaultTick         = time.Second
	DefaultMaxBatchSize = 20
	DefaultFlushTimeout = 5 * time.Second
)

// BatchConfig controls the sender loop.
type BatchConfig struct {
	Tick         time.Duration
	MaxBatchSize int
	// FlushTimeout bounds the final drain after the run context ends.
	// Zero disables the final flush.
	FlushTimeout time.Duration
}

// DefaultBatchConfig returns the stock sender settings.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Tick:         DefaultTick,
		MaxBatchSize: DefaultMaxBatchSize,
		FlushTimeout: DefaultFlushTimeout,
	}
}

// DeliveryRecorder is told how many events each successful attempt delivered.
type DeliveryRecorder interface {
	AddDelivered(n int)
}

// BatchSender periodically drains the queue through a Sender. Failed events
// go back to the tail of the queue and are retried on a later tick.
type BatchSender struct {
	queue    *queue.Queue
	sender   Sender
	cfg      BatchConfig
	logger   *zap.Logger
	reporter core.Reporter
	recorder DeliveryRecorder

	// sending is held for the whole pop/send/requeue span of one attempt.
	sending   sync.Mutex
	delivered atomic.Int64
	failed    atomic.Int64
}

// Option configures a BatchSender.
type Option func(*BatchSender)

// WithReporter publishes every attempt to r.
func WithReporter(r core.Reporter) Option {
	return func(b *BatchSender) {
		if r != nil {
			b.reporter = r
		}
	}
}

// WithRecorder counts delivered events in r.
func WithRecorder(r DeliveryRecorder) Option {
	return func(b *BatchSender) { b.recorder = r }
}

// NewBatchSender creates a BatchSender. Zero fields in cfg take defaults,
// except FlushTimeout.
func NewBatchSender(q *queue.Queue, s Sender, cfg BatchConfig, logger *zap.Logger, opts ...Option) *BatchSender {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &BatchSender{
		queue:    q,
		sender:   s,
		cfg:      cfg,
		logger:   logger,
		reporter: core.NullReporter,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run sends one batch per tick until ctx is done, then makes a final flush
// pass bounded by FlushTimeout. It always returns nil; delivery failures are
// logged and retried, never propagated.
func (b *BatchSender) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.finalFlush()
			return nil
		case <-ticker.C:
			b.SendOnce(ctx)
		}
	}
}

func (b *BatchSender) finalFlush() {
	if b.cfg.FlushTimeout <= 0 || b.queue.Len() == 0 {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
	defer cancel()

	remaining := b.Flush(flushCtx)
	b.logger.Info("final flush complete",
		zap.Int("remaining", remaining),
		zap.Int64("delivered_total", b.delivered.Load()))
}

// Flush sends batches until the queue is empty, a batch fails or ctx is
// done. It returns the number of events still queued.
func (b *BatchSender) Flush(ctx context.Context) int {
	for ctx.Err() == nil && b.queue.Len() > 0 {
		if _, ok := b.SendOnce(ctx); !ok {
			break
		}
	}
	return b.queue.Len()
}

// SendOnce pops at most MaxBatchSize events and attempts one delivery. It
// returns the number of events in the batch and whether all were accepted.
// An empty queue is a successful no-op.
func (b *BatchSender) SendOnce(ctx context.Context) (int, bool) {
	b.sending.Lock()
	defer b.sending.Unlock()

	batch := b.queue.PopBatch(b.cfg.MaxBatchSize)
	if len(batch) == 0 {
		return 0, true
	}

	start := time.Now()
	res, err := b.sender.Send(ctx, batch)
	duration := time.Since(start)

	failed := res.Failed
	if err != nil && len(failed) == 0 {
		failed = batch
	}
	if err == nil {
		failed = nil
	}

	attempt := core.Attempt{
		Timestamp:  start,
		Sink:       b.sender.Name(),
		BatchSize:  len(batch),
		Failed:     len(failed),
		Duration:   duration,
		Success:    err == nil,
		StatusCode: res.StatusCode,
		BytesSent:  res.BytesSent,
	}
	if err != nil {
		attempt.Error = err.Error()
	}
	b.reporter.Report(attempt)

	if n := attempt.Delivered(); n > 0 {
		b.delivered.Add(int64(n))
		if b.recorder != nil {
			b.recorder.AddDelivered(n)
		}
	}

	if err != nil {
		b.failed.Add(int64(len(failed)))
		b.queue.PushBatch(failed)
		b.logger.Warn("batch delivery failed",
			zap.String("sink", attempt.Sink),
			zap.Int("batch_size", len(batch)),
			zap.Int("requeued", len(failed)),
			zap.Int("status", res.StatusCode),
			zap.Duration("duration", duration),
			zap.Error(err))
		return len(batch), false
	}

	b.logger.Info("batch delivered",
		zap.String("sink", attempt.Sink),
		zap.Int("batch_size", len(batch)),
		zap.Duration("duration", duration))
	return len(batch), true
}

// Idle reports whether the queue is empty and no attempt is in flight.
func (b *BatchSender) Idle() bool {
	if !b.sending.TryLock() {
		return false
	}
	defer b.sending.Unlock()
	return b.queue.Len() == 0
}

// Delivered returns the number of events accepted by the sink so far.
func (b *BatchSender) Delivered() int64 { return b.delivered.Load() }

// FailedDeliveries returns how many event deliveries failed and were requeued.
func (b *BatchSender) FailedDeliveries() int64 { return b.failed.Load() }
