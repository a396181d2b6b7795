package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRealClock(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("RealClock.Now() returned %v, expected between %v and %v", now, before, after)
	}
	if clock.Since(before.Add(-time.Second)) < time.Second {
		t.Error("RealClock.Since() undercounts elapsed time")
	}
}

func TestFakeClock_AdvanceAndSet(t *testing.T) {
	clock := NewFakeClock(epoch)

	if clock.Since(epoch) != 0 {
		t.Errorf("Since(start) = %v, expected 0", clock.Since(epoch))
	}

	clock.Advance(90 * time.Second)
	if clock.Since(epoch) != 90*time.Second {
		t.Errorf("after Advance(90s), Since(start) = %v", clock.Since(epoch))
	}

	later := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("after Set(), Now() = %v, expected %v", clock.Now(), later)
	}
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	clock := NewFakeClock(epoch)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	if clock.Since(epoch) != 50*time.Second {
		t.Errorf("Since(start) = %v, expected 50s", clock.Since(epoch))
	}
}

func TestSleep(t *testing.T) {
	t.Run("full duration", func(t *testing.T) {
		start := time.Now()
		if err := Sleep(context.Background(), 20*time.Millisecond); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if time.Since(start) < 20*time.Millisecond {
			t.Error("Sleep returned early")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := Sleep(ctx, time.Minute)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
		if time.Since(start) > time.Second {
			t.Error("Sleep ignored cancellation")
		}
	})

	t.Run("zero duration reports context state", func(t *testing.T) {
		if err := Sleep(context.Background(), 0); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := Sleep(ctx, 0); !errors.Is(err, context.Canceled) {
			t.Errorf("expected canceled, got %v", err)
		}
	})
}
