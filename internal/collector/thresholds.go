package collector

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria for a run.
type Thresholds struct {
	DeliveryDuration *DurationThresholds `yaml:"delivery_duration"`
	DeliveryFailed   *FailureThresholds  `yaml:"delivery_failed"`
}

// DurationThresholds defines per-batch delivery latency limits.
type DurationThresholds struct {
	Avg time.Duration `yaml:"avg"`
	P50 time.Duration `yaml:"p50"`
	P90 time.Duration `yaml:"p90"`
	P95 time.Duration `yaml:"p95"`
	P99 time.Duration `yaml:"p99"`
}

// FailureThresholds defines the failed batch rate limit, e.g. "5%".
type FailureThresholds struct {
	Rate string `yaml:"rate"`
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Validate reports a malformed failure rate.
func (t *Thresholds) Validate() error {
	if t == nil || t.DeliveryFailed == nil || t.DeliveryFailed.Rate == "" {
		return nil
	}
	if _, err := parsePercentage(t.DeliveryFailed.Rate); err != nil {
		return fmt.Errorf("delivery_failed.rate: %w", err)
	}
	return nil
}

// Check evaluates all thresholds against computed metrics.
func (t *Thresholds) Check(m *Metrics) *ThresholdResults {
	if t == nil {
		return &ThresholdResults{Passed: true, Results: nil}
	}

	results := &ThresholdResults{
		Passed:  true,
		Results: make([]ThresholdResult, 0),
	}

	if t.DeliveryDuration != nil {
		results.checkDurationThresholds(t.DeliveryDuration, &m.Duration)
	}

	if t.DeliveryFailed != nil && t.DeliveryFailed.Rate != "" {
		results.checkFailureRate(t.DeliveryFailed, m)
	}

	return results
}

func (r *ThresholdResults) checkDurationThresholds(thresholds *DurationThresholds, actual *DurationMetrics) {
	checks := []struct {
		name      string
		threshold time.Duration
		actual    time.Duration
	}{
		{"delivery_duration.avg", thresholds.Avg, actual.Avg},
		{"delivery_duration.p50", thresholds.P50, actual.P50},
		{"delivery_duration.p90", thresholds.P90, actual.P90},
		{"delivery_duration.p95", thresholds.P95, actual.P95},
		{"delivery_duration.p99", thresholds.P99, actual.P99},
	}

	for _, check := range checks {
		if check.threshold == 0 {
			continue
		}

		passed := check.actual < check.threshold
		if !passed {
			r.Passed = false
		}

		r.Results = append(r.Results, ThresholdResult{
			Name:      check.name,
			Passed:    passed,
			Threshold: FormatDuration(check.threshold),
			Actual:    FormatDuration(check.actual),
		})
	}
}

func (r *ThresholdResults) checkFailureRate(thresholds *FailureThresholds, m *Metrics) {
	thresholdRate, err := parsePercentage(thresholds.Rate)
	if err != nil {
		return
	}

	var actualRate float64
	if m.TotalBatches > 0 {
		actualRate = 100.0 - m.SuccessRate
	}
	passed := actualRate < thresholdRate

	if !passed {
		r.Passed = false
	}

	r.Results = append(r.Results, ThresholdResult{
		Name:      "delivery_failed.rate",
		Passed:    passed,
		Threshold: thresholds.Rate,
		Actual:    fmt.Sprintf("%.2f%%", actualRate),
	})
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	s = strings.TrimSuffix(s, "%")
	return strconv.ParseFloat(s, 64)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
