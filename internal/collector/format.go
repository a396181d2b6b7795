package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// FormatText writes delivery metrics in human-readable format.
func FormatText(w io.Writer, m *Metrics, thresholds *ThresholdResults) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Delivery")
	fmt.Fprintln(w, "==============================")

	if m.TotalBatches == 0 {
		fmt.Fprintln(w, "No delivery attempts")
	} else {
		fmt.Fprintf(w, "Batches:        %s\n", formatNumber(m.TotalBatches))
		fmt.Fprintf(w, "Success Rate:   %.1f%% (%s / %s)\n",
			m.SuccessRate, formatNumber(m.SuccessCount), formatNumber(m.TotalBatches))
		fmt.Fprintf(w, "Events:         %s delivered, %s requeued\n",
			formatNumber(m.EventsDelivered), formatNumber(m.EventsRequeued))
		fmt.Fprintf(w, "Events/sec:     %.1f\n", m.EventsPerSec)
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Batch Latency:")
		fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(m.Duration.Min))
		fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(m.Duration.Avg))
		fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(m.Duration.P50))
		fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(m.Duration.P90))
		fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(m.Duration.P95))
		fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(m.Duration.P99))
		fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(m.Duration.Max))

		if len(m.StatusCodes) > 0 {
			fmt.Fprintln(w, "")
			fmt.Fprintln(w, "Status Codes:")
			for _, code := range sortedCodes(m.StatusCodes) {
				fmt.Fprintf(w, "  %d: %s\n", code, formatNumber(m.StatusCodes[code]))
			}
		}
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s < %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes delivery metrics in JSON format.
func FormatJSON(w io.Writer, m *Metrics, thresholds *ThresholdResults) {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(ToJSON(m, thresholds)) // stdout errors are unrecoverable
}

// JSONReport is the serializable form of Metrics, with durations rendered
// as display strings.
type JSONReport struct {
	Duration        string                     `json:"duration"`
	TotalBatches    int                        `json:"totalBatches"`
	SuccessCount    int                        `json:"successCount"`
	FailureCount    int                        `json:"failureCount"`
	SuccessRate     float64                    `json:"successRate"`
	EventsDelivered int                        `json:"eventsDelivered"`
	EventsRequeued  int                        `json:"eventsRequeued"`
	BytesSent       int64                      `json:"bytesSent"`
	EventsPerSec    float64                    `json:"eventsPerSec"`
	Durations       jsonDurationMetrics        `json:"durations"`
	StatusCodes     map[string]int             `json:"statusCodes,omitempty"`
	Sinks           map[string]jsonSinkMetrics `json:"sinks"`
	Thresholds      *ThresholdResults          `json:"thresholds,omitempty"`
}

// ToJSON converts metrics for embedding in a larger JSON document.
func ToJSON(m *Metrics, thresholds *ThresholdResults) JSONReport {
	output := JSONReport{
		Duration:        m.TestDuration.Round(time.Millisecond).String(),
		TotalBatches:    m.TotalBatches,
		SuccessCount:    m.SuccessCount,
		FailureCount:    m.FailureCount,
		SuccessRate:     m.SuccessRate,
		EventsDelivered: m.EventsDelivered,
		EventsRequeued:  m.EventsRequeued,
		BytesSent:       m.BytesSent,
		EventsPerSec:    m.EventsPerSec,
		Durations:       toJSONDurationMetrics(m.Duration),
		Sinks:           make(map[string]jsonSinkMetrics),
		Thresholds:      thresholds,
	}

	if len(m.StatusCodes) > 0 {
		output.StatusCodes = make(map[string]int, len(m.StatusCodes))
		for code, n := range m.StatusCodes {
			output.StatusCodes[strconv.Itoa(code)] = n
		}
	}

	for sink, sm := range m.Sinks {
		output.Sinks[sink] = jsonSinkMetrics{
			Batches:     sm.Batches,
			Success:     sm.Success,
			Failed:      sm.Failed,
			Delivered:   sm.Delivered,
			SuccessRate: float64(sm.Success) / float64(sm.Batches) * 100,
			Durations:   toJSONDurationMetrics(sm.Duration),
		}
	}
	return output
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

type jsonSinkMetrics struct {
	Batches     int                 `json:"batches"`
	Success     int                 `json:"success"`
	Failed      int                 `json:"failed"`
	Delivered   int                 `json:"delivered"`
	SuccessRate float64             `json:"successRate"`
	Durations   jsonDurationMetrics `json:"durations"`
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

func sortedCodes(codes map[int]int) []int {
	out := make([]int, 0, len(codes))
	for code := range codes {
		out = append(out, code)
	}
	sort.Ints(out)
	return out
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}
