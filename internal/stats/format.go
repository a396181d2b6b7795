package stats

import (
	"encoding/json"
	"fmt"
	"io"
)

// FormatText writes the summary in human-readable form.
func FormatText(w io.Writer, s Summary) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Clicksim - Simulation Summary")
	fmt.Fprintln(w, "==============================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Total Events:   %s\n", formatNumber(s.TotalEvents))
	fmt.Fprintf(w, "Total Sessions: %s (completed %s, abandoned %s)\n",
		formatNumber(s.TotalSessions), formatNumber(s.CompletedSessions), formatNumber(s.AbandonedSessions))
	fmt.Fprintf(w, "Total Revenue:  $%s\n", s.TotalRevenue.StringFixed(2))
	fmt.Fprintf(w, "Delivered:      %s\n", formatNumber(s.DeliveredEvents))

	if len(s.EventsByType) == 0 {
		return
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Events by Type:")
	for _, tc := range s.EventsByType {
		fmt.Fprintf(w, "  %-18s %s\n", tc.Type, formatNumber(tc.Count))
	}
}

// FormatJSON writes the summary as indented JSON.
func FormatJSON(w io.Writer, s Summary) {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(ToJSON(s)) // stdout errors are unrecoverable
}

// JSONSummary is the JSON shape of a Summary. Revenue is a string with two
// decimal places.
type JSONSummary struct {
	TotalEvents       int64            `json:"totalEvents"`
	TotalSessions     int64            `json:"totalSessions"`
	CompletedSessions int64            `json:"completedSessions"`
	AbandonedSessions int64            `json:"abandonedSessions"`
	TotalRevenue      string           `json:"totalRevenue"`
	DeliveredEvents   int64            `json:"deliveredEvents"`
	EventsByType      map[string]int64 `json:"eventsByType"`
}

func ToJSON(s Summary) JSONSummary {
	out := JSONSummary{
		TotalEvents:       s.TotalEvents,
		TotalSessions:     s.TotalSessions,
		CompletedSessions: s.CompletedSessions,
		AbandonedSessions: s.AbandonedSessions,
		TotalRevenue:      s.TotalRevenue.StringFixed(2),
		DeliveredEvents:   s.DeliveredEvents,
		EventsByType:      make(map[string]int64, len(s.EventsByType)),
	}
	for _, tc := range s.EventsByType {
		out.EventsByType[tc.Type] = tc.Count
	}
	return out
}

func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s,%03d", formatNumber(n/1000), n%1000)
}
