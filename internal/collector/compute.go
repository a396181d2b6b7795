package collector

import (
	"sort"
	"time"

	"clicksim/internal/core"
)

// Metrics contains aggregated delivery results.
type Metrics struct {
	TotalBatches    int                     `json:"totalBatches"`
	SuccessCount    int                     `json:"successCount"`
	FailureCount    int                     `json:"failureCount"`
	SuccessRate     float64                 `json:"successRate"`
	EventsAttempted int                     `json:"eventsAttempted"`
	EventsDelivered int                     `json:"eventsDelivered"`
	EventsRequeued  int                     `json:"eventsRequeued"`
	BytesSent       int64                   `json:"bytesSent"`
	EventsPerSec    float64                 `json:"eventsPerSec"`
	TestDuration    time.Duration           `json:"testDuration"`
	Duration        DurationMetrics         `json:"durations"`
	StatusCodes     map[int]int             `json:"statusCodes"`
	Sinks           map[string]*SinkMetrics `json:"sinks"`
}

// DurationMetrics contains latency statistics.
type DurationMetrics struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
	Avg time.Duration `json:"avg"`
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// SinkMetrics contains per-sink statistics.
type SinkMetrics struct {
	Batches   int             `json:"batches"`
	Success   int             `json:"success"`
	Failed    int             `json:"failed"`
	Delivered int             `json:"delivered"`
	Duration  DurationMetrics `json:"durations"`
}

// ComputeMetrics computes metrics from attempts. Pure function, no side effects.
func ComputeMetrics(attempts []core.Attempt, testDuration time.Duration) *Metrics {
	m := &Metrics{
		StatusCodes:  make(map[int]int),
		Sinks:        make(map[string]*SinkMetrics),
		TestDuration: testDuration,
	}

	if len(attempts) == 0 {
		return m
	}

	allDurations := make([]time.Duration, 0, len(attempts))
	sinkDurations := make(map[string][]time.Duration)

	for _, a := range attempts {
		m.TotalBatches++
		if a.Success {
			m.SuccessCount++
		} else {
			m.FailureCount++
		}
		m.EventsAttempted += a.BatchSize
		m.EventsDelivered += a.Delivered()
		m.EventsRequeued += a.Failed
		m.BytesSent += a.BytesSent
		if a.StatusCode != 0 {
			m.StatusCodes[a.StatusCode]++
		}

		allDurations = append(allDurations, a.Duration)

		sink, exists := m.Sinks[a.Sink]
		if !exists {
			sink = &SinkMetrics{}
			m.Sinks[a.Sink] = sink
		}
		sink.Batches++
		sink.Delivered += a.Delivered()
		if a.Success {
			sink.Success++
		} else {
			sink.Failed++
		}
		sinkDurations[a.Sink] = append(sinkDurations[a.Sink], a.Duration)
	}

	m.SuccessRate = float64(m.SuccessCount) / float64(m.TotalBatches) * 100

	if m.TestDuration > 0 {
		m.EventsPerSec = float64(m.EventsDelivered) / m.TestDuration.Seconds()
	}

	m.Duration = ComputeDurationMetrics(allDurations)

	for sink, durations := range sinkDurations {
		m.Sinks[sink].Duration = ComputeDurationMetrics(durations)
	}

	return m
}

// ComputePercentile calculates the percentile value from a sorted slice of durations.
// The percentile p should be between 0 and 1 (e.g., 0.95 for p95).
// The slice must be sorted in ascending order.
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}

	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}

// ComputeDurationMetrics calculates all duration statistics from a slice of durations.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: ComputePercentile(sorted, 0.50),
		P90: ComputePercentile(sorted, 0.90),
		P95: ComputePercentile(sorted, 0.95),
		P99: ComputePercentile(sorted, 0.99),
	}
}
