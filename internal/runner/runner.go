// Package runner drives a single simulated visitor session from start to end.
package runner

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"clicksim/internal/core"
	"clicksim/internal/event"
	"clicksim/internal/journey"
	"clicksim/internal/session"
)

// Pacing controls the think time between consecutive events. Sessions use
// the Cold range until they have WarmAfterPageViews page views, then Warm.
type Pacing struct {
	Cold               core.Range
	Warm               core.Range
	WarmAfterPageViews int
}

// DefaultPacing returns the stock think times.
func DefaultPacing() Pacing {
	return Pacing{
		Cold:               core.Range{Min: 500 * time.Millisecond, Max: 5 * time.Second},
		Warm:               core.Range{Min: 200 * time.Millisecond, Max: 2 * time.Second},
		WarmAfterPageViews: 3,
	}
}

// Delay draws the pause that follows an event, given the session's page
// view count at that point.
func (p Pacing) Delay(rng *rand.Rand, pageViews int) time.Duration {
	if pageViews < p.WarmAfterPageViews {
		return p.Cold.Draw(rng)
	}
	return p.Warm.Draw(rng)
}

// Sink receives generated events. queue.Queue satisfies it.
type Sink interface {
	Push(event.Event)
}

// Lifecycle is notified as sessions start and end. stats.Stats satisfies it.
type Lifecycle interface {
	SessionStarted()
	SessionCompleted()
	SessionAbandoned()
}

// Config wires a Runner. Journeys, Factory and Sink are required.
type Config struct {
	Journeys  *journey.Model
	Factory   *event.Factory
	Sink      Sink
	Lifecycle Lifecycle
	Pacing    Pacing
	Clock     core.Clock
	Logger    *zap.Logger
	// Sleep replaces core.Sleep for the pauses between events.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Runner plays sessions. A Runner holds no per-session state and may run
// many sessions concurrently, each with its own *rand.Rand.
type Runner struct {
	cfg Config
}

func New(cfg Config) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = core.Sleep
	}
	if cfg.Lifecycle == nil {
		cfg.Lifecycle = nopLifecycle{}
	}
	return &Runner{cfg: cfg}
}

// Outcome summarizes one finished session.
type Outcome struct {
	SessionID string
	UserID    string
	Persona   journey.Persona
	Events    int
	Duration  time.Duration
	Completed bool
}

// Run creates a session, picks its journey and emits every event of the
// journey in order, pausing between events. A done ctx ends the session
// early and marks it abandoned. rng must not be shared with other sessions.
func (r *Runner) Run(ctx context.Context, rng *rand.Rand) (out Outcome) {
	sess := session.New(rng, r.cfg.Clock.Now())
	persona, steps := r.cfg.Journeys.Choose(rng)
	out = Outcome{SessionID: sess.ID, UserID: sess.UserID, Persona: persona}

	r.cfg.Lifecycle.SessionStarted()
	defer r.recoverPanic(&out)

	for i, t := range steps {
		if ctx.Err() != nil {
			return r.abandon(out, sess)
		}

		r.cfg.Sink.Push(r.cfg.Factory.Generate(rng, sess, t))
		out.Events++

		if i == len(steps)-1 {
			break
		}
		if err := r.cfg.Sleep(ctx, r.cfg.Pacing.Delay(rng, sess.PageViews)); err != nil {
			return r.abandon(out, sess)
		}
	}

	out.Duration = sess.Duration(r.cfg.Clock)
	out.Completed = true
	r.cfg.Lifecycle.SessionCompleted()
	r.cfg.Logger.Info("session completed",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.Stringer("persona", persona),
		zap.Int("events", out.Events),
		zap.Duration("duration", out.Duration))
	return out
}

func (r *Runner) abandon(out Outcome, sess *session.Session) Outcome {
	out.Duration = sess.Duration(r.cfg.Clock)
	r.cfg.Lifecycle.SessionAbandoned()
	r.cfg.Logger.Debug("session abandoned",
		zap.String("session_id", sess.ID),
		zap.Int("events", out.Events),
		zap.Duration("duration", out.Duration))
	return out
}

// recoverPanic turns a panic in a session into an abandoned session.
func (r *Runner) recoverPanic(out *Outcome) {
	if p := recover(); p != nil {
		out.Completed = false
		r.cfg.Lifecycle.SessionAbandoned()
		r.cfg.Logger.Error("session panicked",
			zap.String("session_id", out.SessionID),
			zap.Int("events", out.Events),
			zap.String("panic", fmt.Sprint(p)))
	}
}

type nopLifecycle struct{}

func (nopLifecycle) SessionStarted()   {}
func (nopLifecycle) SessionCompleted() {}
func (nopLifecycle) SessionAbandoned() {}
