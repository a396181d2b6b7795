package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"clicksim/internal/core"
	"clicksim/internal/event"
	"clicksim/internal/queue"
)

// scriptedSender fails the first n calls, then accepts everything.
type scriptedSender struct {
	mu       sync.Mutex
	failures int
	partial  bool
	calls    int
	accepted []string
}

func (s *scriptedSender) Name() string { return "scripted" }
func (s *scriptedSender) Close() error { return nil }

func (s *scriptedSender) Send(_ context.Context, batch []event.Event) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		if s.partial {
			for _, ev := range batch[1:] {
				s.accepted = append(s.accepted, ev.ID)
			}
			return Result{Failed: batch[:1]}, errors.New("partial failure")
		}
		return Result{StatusCode: 503}, errors.New("unavailable")
	}
	for _, ev := range batch {
		s.accepted = append(s.accepted, ev.ID)
	}
	return Result{StatusCode: 202}, nil
}

type attemptLog struct {
	mu       sync.Mutex
	attempts []core.Attempt
}

func (l *attemptLog) Report(a core.Attempt) {
	l.mu.Lock()
	l.attempts = append(l.attempts, a)
	l.mu.Unlock()
}

type counter struct{ n atomic.Int64 }

func (c *counter) AddDelivered(n int) { c.n.Add(int64(n)) }

func fill(q *queue.Queue, n int) {
	for i := 0; i < n; i++ {
		q.Push(event.Event{ID: fmt.Sprintf("e%02d", i), Type: event.Click, UserID: "user_1000"})
	}
}

func TestSendOnce_RespectsMaxBatchSize(t *testing.T) {
	q := queue.New()
	fill(q, 25)
	s := &scriptedSender{}
	log := &attemptLog{}
	b := NewBatchSender(q, s, BatchConfig{MaxBatchSize: 20}, nil, WithReporter(log))

	n, ok := b.SendOnce(context.Background())
	if n != 20 || !ok {
		t.Fatalf("SendOnce = %d, %v", n, ok)
	}
	if q.Len() != 5 {
		t.Errorf("queue length = %d, want 5", q.Len())
	}
	if len(log.attempts) != 1 || log.attempts[0].BatchSize != 20 || !log.attempts[0].Success {
		t.Errorf("unexpected attempts: %+v", log.attempts)
	}
}

func TestSendOnce_EmptyQueueIsNoop(t *testing.T) {
	s := &scriptedSender{}
	b := NewBatchSender(queue.New(), s, BatchConfig{}, nil)

	if n, ok := b.SendOnce(context.Background()); n != 0 || !ok {
		t.Errorf("SendOnce on empty queue = %d, %v", n, ok)
	}
	if s.calls != 0 {
		t.Error("sender must not be called for an empty queue")
	}
}

func TestSendOnce_FailureRequeuesAtTail(t *testing.T) {
	q := queue.New()
	fill(q, 3)
	s := &scriptedSender{failures: 1}
	log := &attemptLog{}
	b := NewBatchSender(q, s, BatchConfig{MaxBatchSize: 2}, nil, WithReporter(log))

	if _, ok := b.SendOnce(context.Background()); ok {
		t.Fatal("first attempt must fail")
	}
	remaining := q.PopBatch(10)
	var got []string
	for _, ev := range remaining {
		got = append(got, ev.ID)
	}
	if fmt.Sprint(got) != "[e02 e00 e01]" {
		t.Errorf("queue after failure = %v, want [e02 e00 e01]", got)
	}

	a := log.attempts[0]
	if a.Success || a.Failed != 2 || a.StatusCode != 503 || a.Error != "unavailable" {
		t.Errorf("unexpected attempt: %+v", a)
	}
	if b.FailedDeliveries() != 2 || b.Delivered() != 0 {
		t.Errorf("counters = %d failed / %d delivered", b.FailedDeliveries(), b.Delivered())
	}
}

func TestSendOnce_PartialFailureRequeuesOnlyFailed(t *testing.T) {
	q := queue.New()
	fill(q, 4)
	rec := &counter{}
	b := NewBatchSender(q, &scriptedSender{failures: 1, partial: true}, BatchConfig{MaxBatchSize: 4}, nil, WithRecorder(rec))

	b.SendOnce(context.Background())

	if q.Len() != 1 {
		t.Fatalf("expected only the failed event to be requeued, queue length %d", q.Len())
	}
	if rec.n.Load() != 3 || b.Delivered() != 3 {
		t.Errorf("delivered = %d (recorder %d), want 3", b.Delivered(), rec.n.Load())
	}
}

func TestFlush_StopsOnFailure(t *testing.T) {
	q := queue.New()
	fill(q, 10)
	s := &scriptedSender{failures: 100}
	b := NewBatchSender(q, s, BatchConfig{MaxBatchSize: 3}, nil)

	remaining := b.Flush(context.Background())
	if remaining != 10 || s.calls != 1 {
		t.Errorf("Flush = %d after %d calls, want 10 after 1", remaining, s.calls)
	}
}

func TestRun_FinalFlushDrainsQueue(t *testing.T) {
	q := queue.New()
	fill(q, 45)
	s := &scriptedSender{}
	b := NewBatchSender(q, s, BatchConfig{Tick: time.Hour, MaxBatchSize: 20, FlushTimeout: time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if q.Len() != 0 || len(s.accepted) != 45 {
		t.Errorf("final flush left %d queued, accepted %d", q.Len(), len(s.accepted))
	}
}

func TestRun_NoFlushWhenDisabled(t *testing.T) {
	q := queue.New()
	fill(q, 5)
	s := &scriptedSender{}
	b := NewBatchSender(q, s, BatchConfig{Tick: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = b.Run(ctx)

	if s.calls != 0 || q.Len() != 5 {
		t.Errorf("expected no delivery without flush timeout, calls=%d len=%d", s.calls, q.Len())
	}
}

func TestRun_RetriesUntilAccepted(t *testing.T) {
	var mu sync.Mutex
	var rejected int
	accepted := make(map[string]int)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if rejected < 2 {
			rejected++
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		for _, id := range gjson.GetBytes(body, "records.#.event_id").Array() {
			accepted[id.String()]++
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	q := queue.New()
	fill(q, 6)
	observed, logs := observer.New(zapcore.InfoLevel)
	b := NewBatchSender(q, NewHTTPSender(server.URL, time.Second, nil),
		BatchConfig{Tick: 10 * time.Millisecond, MaxBatchSize: 4}, zap.New(observed))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for b.Delivered() < 6 {
		select {
		case <-deadline:
			t.Fatalf("timed out; delivered %d", b.Delivered())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(accepted) != 6 {
		t.Errorf("expected all 6 events accepted, got %v", accepted)
	}
	for id, n := range accepted {
		if n != 1 {
			t.Errorf("event %s accepted %d times", id, n)
		}
	}
	if logs.FilterMessage("batch delivery failed").Len() != 2 {
		t.Errorf("expected 2 failure logs, got %d", logs.FilterMessage("batch delivery failed").Len())
	}
}

// blockingSender holds every Send until release is closed.
type blockingSender struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSender) Name() string { return "blocking" }
func (s *blockingSender) Close() error { return nil }

func (s *blockingSender) Send(_ context.Context, batch []event.Event) (Result, error) {
	close(s.entered)
	<-s.release
	return Result{StatusCode: 202}, nil
}

func TestIdle_TracksInFlightAttempt(t *testing.T) {
	q := queue.New()
	s := &blockingSender{entered: make(chan struct{}), release: make(chan struct{})}
	b := NewBatchSender(q, s, DefaultBatchConfig(), nil)

	if !b.Idle() {
		t.Fatal("empty sender should be idle")
	}

	fill(q, 3)
	if b.Idle() {
		t.Fatal("queued events must not be idle")
	}

	done := make(chan struct{})
	go func() {
		b.SendOnce(context.Background())
		close(done)
	}()
	<-s.entered

	if q.Len() != 0 {
		t.Fatalf("batch should have been popped, %d left", q.Len())
	}
	if b.Idle() {
		t.Error("attempt in flight must not be idle")
	}

	close(s.release)
	<-done
	if !b.Idle() {
		t.Error("sender should be idle after the attempt")
	}
}
