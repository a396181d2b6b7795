// Package orchestrator launches waves of sessions for a fixed duration while
// the batch sender drains the delivery queue.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clicksim/internal/core"
	"clicksim/internal/progress"
	"clicksim/internal/queue"
	"clicksim/internal/ratelimit"
	"clicksim/internal/runner"
	"clicksim/internal/stats"
)

// DrainPolicy decides what happens to sessions still running when the
// duration ends.
type DrainPolicy string

const (
	// DrainAbandon cancels in-flight sessions once the grace period is over.
	DrainAbandon DrainPolicy = "abandon"
	// DrainWait lets every in-flight session finish its journey.
	DrainWait DrainPolicy = "wait"
)

// ParseDrainPolicy accepts "abandon", "wait" or "" (abandon).
func ParseDrainPolicy(s string) (DrainPolicy, error) {
	switch DrainPolicy(s) {
	case "", DrainAbandon:
		return DrainAbandon, nil
	case DrainWait:
		return DrainWait, nil
	}
	return "", fmt.Errorf("unknown drain policy %q (want %q or %q)", s, DrainAbandon, DrainWait)
}

const drainPollInterval = 50 * time.Millisecond

// Config controls a run.
type Config struct {
	Duration       time.Duration
	MaxConcurrency int
	WaveInterval   core.Range
	GracePeriod    time.Duration
	DrainPolicy    DrainPolicy
	// Seed makes every random draw of the run reproducible. Zero picks a
	// time-based seed.
	Seed int64
	// SessionRate caps session starts per second. Zero means unlimited.
	SessionRate float64
}

// DefaultConfig returns the stock run settings.
func DefaultConfig() Config {
	return Config{
		Duration:       60 * time.Second,
		MaxConcurrency: 10,
		WaveInterval:   core.Range{Min: 2 * time.Second, Max: 5 * time.Second},
		GracePeriod:    2 * time.Second,
		DrainPolicy:    DrainAbandon,
	}
}

// SessionRunner plays one session to completion or cancellation.
type SessionRunner interface {
	Run(ctx context.Context, rng *rand.Rand) runner.Outcome
}

// Sender is the background delivery loop. Run must return once ctx is done.
// Idle reports that nothing is queued or in flight.
type Sender interface {
	Run(ctx context.Context) error
	Idle() bool
}

// Orchestrator owns the session goroutines of a run.
type Orchestrator struct {
	cfg     Config
	runner  SessionRunner
	sender  Sender
	queue   *queue.Queue
	stats   *stats.Stats
	limiter *ratelimit.RateLimiter
	logger  *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	wg       sync.WaitGroup
	active   atomic.Int32
	launched atomic.Int64
	waves    atomic.Int64
}

// New creates an Orchestrator. The runner must record its events in st and
// push them to q.
func New(cfg Config, r SessionRunner, s Sender, q *queue.Queue, st *stats.Stats, logger *zap.Logger) *Orchestrator {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.DrainPolicy == "" {
		cfg.DrainPolicy = DrainAbandon
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:    cfg,
		runner: r,
		sender: s,
		queue:  q,
		stats:  st,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	if cfg.SessionRate > 0 {
		o.limiter = ratelimit.NewRateLimiter(cfg.SessionRate)
	}
	return o
}

// Result is the outcome of a run.
type Result struct {
	Summary     stats.Summary
	Waves       int64
	Undelivered int
	Seed        int64
}

// Run launches waves until the duration elapses or ctx is done, drains
// according to the drain policy, stops the sender and returns the final
// summary. Delivery failures never fail a run.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	o.logger.Info("simulation starting",
		zap.Duration("duration", o.cfg.Duration),
		zap.Int("max_concurrency", o.cfg.MaxConcurrency),
		zap.String("drain_policy", string(o.cfg.DrainPolicy)),
		zap.Int64("seed", o.cfg.Seed))

	g, gctx := errgroup.WithContext(ctx)
	senderCtx, stopSender := context.WithCancel(gctx)
	sessCtx, cancelSessions := context.WithCancel(gctx)
	defer stopSender()
	defer cancelSessions()

	g.Go(func() error {
		return o.sender.Run(senderCtx)
	})

	g.Go(func() error {
		defer stopSender()

		waveCtx, cancel := context.WithTimeout(gctx, o.cfg.Duration)
		o.launchWaves(waveCtx, sessCtx)
		cancel()

		o.drain(gctx, cancelSessions)
		return nil
	})

	err := g.Wait()

	res := Result{
		Summary:     o.stats.Snapshot(),
		Waves:       o.waves.Load(),
		Undelivered: o.queue.Len(),
		Seed:        o.cfg.Seed,
	}
	o.logger.Info("simulation finished",
		zap.Int64("sessions", res.Summary.TotalSessions),
		zap.Int64("events", res.Summary.TotalEvents),
		zap.Int64("delivered", res.Summary.DeliveredEvents),
		zap.Int("undelivered", res.Undelivered),
		zap.String("revenue", res.Summary.TotalRevenue.StringFixed(2)))
	if err != nil {
		return res, fmt.Errorf("simulation: %w", err)
	}
	return res, nil
}

func (o *Orchestrator) launchWaves(waveCtx, sessCtx context.Context) {
	for waveCtx.Err() == nil {
		var size int
		var pause time.Duration
		o.draw(func(rng *rand.Rand) {
			size = core.IntBetween(rng, 1, o.cfg.MaxConcurrency)
			pause = o.cfg.WaveInterval.Draw(rng)
		})
		started := 0
		for ; started < size; started++ {
			if err := o.limiter.Wait(waveCtx); err != nil {
				break
			}
			o.spawn(sessCtx)
		}

		wave := o.waves.Add(1)
		o.logger.Info("wave launched",
			zap.Int64("wave", wave),
			zap.Int("sessions", started),
			zap.Int32("active", o.active.Load()),
			zap.Int("queued", o.queue.Len()))

		if err := core.Sleep(waveCtx, pause); err != nil {
			return
		}
	}
}

func (o *Orchestrator) spawn(ctx context.Context) {
	var seed int64
	o.draw(func(rng *rand.Rand) { seed = rng.Int63() })
	rng := rand.New(rand.NewSource(seed))
	o.launched.Add(1)
	o.active.Add(1)
	o.wg.Add(1)
	go func() {
		defer func() {
			o.active.Add(-1)
			o.wg.Done()
		}()
		o.runner.Run(ctx, rng)
	}()
}

func (o *Orchestrator) draw(fn func(rng *rand.Rand)) {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	fn(o.rng)
}

func (o *Orchestrator) drain(ctx context.Context, cancelSessions context.CancelFunc) {
	if o.cfg.DrainPolicy == DrainWait {
		o.logger.Info("waiting for in-flight sessions", zap.Int32("active", o.active.Load()))
		o.waitRunners(ctx)
	}

	grace, cancel := context.WithTimeout(ctx, o.cfg.GracePeriod)
	defer cancel()
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for !o.idle() {
		select {
		case <-grace.Done():
			o.logger.Info("grace period over",
				zap.Int32("active", o.active.Load()),
				zap.Int("queued", o.queue.Len()))
			cancelSessions()
			o.waitRunners(context.Background())
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) idle() bool {
	return o.active.Load() == 0 && o.sender.Idle()
}

func (o *Orchestrator) waitRunners(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// ActiveSessions returns the number of running session goroutines.
func (o *Orchestrator) ActiveSessions() int {
	return int(o.active.Load())
}

// ProgressSnapshot implements progress.Source.
func (o *Orchestrator) ProgressSnapshot() progress.Snapshot {
	return progress.Snapshot{
		Sessions:  o.launched.Load(),
		Active:    int64(o.active.Load()),
		Events:    o.stats.TotalEvents(),
		Queued:    int64(o.queue.Len()),
		Delivered: o.stats.Delivered(),
		Revenue:   o.stats.Revenue(),
	}
}
