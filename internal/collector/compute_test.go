package collector

import (
	"testing"
	"time"

	"clicksim/internal/core"
)

func TestComputeMetrics_EmptyAttempts(t *testing.T) {
	m := ComputeMetrics(nil, 10*time.Second)

	if m.TotalBatches != 0 {
		t.Errorf("expected 0 batches, got %d", m.TotalBatches)
	}
	if m.TestDuration != 10*time.Second {
		t.Errorf("expected 10s duration, got %v", m.TestDuration)
	}
	if m.Sinks == nil || m.StatusCodes == nil {
		t.Error("expected maps to be initialized")
	}
}

func TestComputeMetrics_SuccessRate(t *testing.T) {
	attempts := make([]core.Attempt, 0)

	// 7 successes, 3 failures = 70% success rate
	for i := 0; i < 7; i++ {
		attempts = append(attempts, core.Attempt{Sink: "http", BatchSize: 1, Success: true, Duration: time.Millisecond})
	}
	for i := 0; i < 3; i++ {
		attempts = append(attempts, core.Attempt{Sink: "http", BatchSize: 1, Failed: 1, Success: false, Duration: time.Millisecond})
	}

	m := ComputeMetrics(attempts, time.Second)

	if m.SuccessRate != 70.0 {
		t.Errorf("expected 70%% success rate, got %.1f%%", m.SuccessRate)
	}
	if m.EventsPerSec != 7 {
		t.Errorf("expected 7 events/sec, got %.1f", m.EventsPerSec)
	}
}

func TestComputeMetrics_PartialKafkaFailure(t *testing.T) {
	attempts := []core.Attempt{
		{Sink: "kafka", BatchSize: 20, Failed: 3, Success: false, Duration: 5 * time.Millisecond, BytesSent: 1000},
		{Sink: "kafka", BatchSize: 3, Success: true, Duration: 3 * time.Millisecond, BytesSent: 150},
	}

	m := ComputeMetrics(attempts, 2*time.Second)

	if m.EventsAttempted != 23 || m.EventsDelivered != 20 || m.EventsRequeued != 3 {
		t.Errorf("unexpected event counts: attempted=%d delivered=%d requeued=%d",
			m.EventsAttempted, m.EventsDelivered, m.EventsRequeued)
	}
	if m.BytesSent != 1150 {
		t.Errorf("expected 1150 bytes, got %d", m.BytesSent)
	}
	if len(m.StatusCodes) != 0 {
		t.Errorf("kafka attempts carry no status codes, got %v", m.StatusCodes)
	}
	sink := m.Sinks["kafka"]
	if sink == nil || sink.Batches != 2 || sink.Delivered != 20 || sink.Failed != 1 {
		t.Errorf("unexpected sink metrics: %+v", sink)
	}
}

func TestComputeMetrics_PerSink(t *testing.T) {
	attempts := []core.Attempt{
		{Sink: "http", BatchSize: 2, Success: true, Duration: 10 * time.Millisecond},
		{Sink: "http", BatchSize: 2, Success: true, Duration: 30 * time.Millisecond},
		{Sink: "kafka", BatchSize: 2, Success: true, Duration: 50 * time.Millisecond},
	}

	m := ComputeMetrics(attempts, time.Second)

	if m.Sinks["http"].Duration.Avg != 20*time.Millisecond {
		t.Errorf("expected http avg 20ms, got %v", m.Sinks["http"].Duration.Avg)
	}
	if m.Duration.Max != 50*time.Millisecond {
		t.Errorf("expected overall max 50ms, got %v", m.Duration.Max)
	}
}

func TestComputePercentile(t *testing.T) {
	durations := []time.Duration{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 10},
		{0.50, 50},
		{0.90, 90},
		{1, 100},
	}
	for _, tt := range tests {
		if got := ComputePercentile(durations, tt.p); got != tt.want {
			t.Errorf("ComputePercentile(%v) = %d, want %d", tt.p, got, tt.want)
		}
	}

	if ComputePercentile(nil, 0.5) != 0 {
		t.Error("empty slice must yield 0")
	}
	if ComputePercentile([]time.Duration{7}, 0.99) != 7 {
		t.Error("single element must be returned for any percentile")
	}
}

func TestComputeDurationMetrics_Unsorted(t *testing.T) {
	d := ComputeDurationMetrics([]time.Duration{30, 10, 20})

	if d.Min != 10 || d.Max != 30 || d.Avg != 20 || d.P50 != 20 {
		t.Errorf("unexpected metrics: %+v", d)
	}
}
