// Package stats holds the process-wide simulation aggregate.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"clicksim/internal/event"
)

// Stats counts generated events, session lifecycles and revenue. All methods
// are safe for concurrent use.
type Stats struct {
	byType [event.NumTypes]atomic.Int64
	total  atomic.Int64

	started   atomic.Int64
	completed atomic.Int64
	abandoned atomic.Int64

	delivered atomic.Int64

	mu      sync.Mutex
	revenue decimal.Decimal
}

// New returns an empty aggregate.
func New() *Stats {
	return &Stats{}
}

// RecordEvent implements event.Recorder.
func (s *Stats) RecordEvent(t event.Type) {
	if !t.Valid() {
		return
	}
	s.byType[t].Add(1)
	s.total.Add(1)
}

// AddRevenue implements event.Recorder.
func (s *Stats) AddRevenue(d decimal.Decimal) {
	s.mu.Lock()
	s.revenue = s.revenue.Add(d)
	s.mu.Unlock()
}

func (s *Stats) SessionStarted()   { s.started.Add(1) }
func (s *Stats) SessionCompleted() { s.completed.Add(1) }
func (s *Stats) SessionAbandoned() { s.abandoned.Add(1) }

// AddDelivered counts events accepted by the sink.
func (s *Stats) AddDelivered(n int) { s.delivered.Add(int64(n)) }

func (s *Stats) TotalEvents() int64     { return s.total.Load() }
func (s *Stats) SessionsStarted() int64 { return s.started.Load() }
func (s *Stats) Delivered() int64       { return s.delivered.Load() }

// ActiveSessions is the number of sessions started but not yet ended.
func (s *Stats) ActiveSessions() int64 {
	return s.started.Load() - s.completed.Load() - s.abandoned.Load()
}

// Revenue returns the running purchase total.
func (s *Stats) Revenue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revenue
}

// TypeCount is one row of the per-type breakdown.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Summary is a point-in-time copy of the aggregate.
type Summary struct {
	TotalEvents       int64           `json:"totalEvents"`
	TotalSessions     int64           `json:"totalSessions"`
	CompletedSessions int64           `json:"completedSessions"`
	AbandonedSessions int64           `json:"abandonedSessions"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	DeliveredEvents   int64           `json:"deliveredEvents"`
	EventsByType      []TypeCount     `json:"eventsByType"`
}

// Snapshot reads every counter. Types that never occurred are omitted and the
// breakdown is sorted by type name.
func (s *Stats) Snapshot() Summary {
	sum := Summary{
		TotalEvents:       s.total.Load(),
		TotalSessions:     s.started.Load(),
		CompletedSessions: s.completed.Load(),
		AbandonedSessions: s.abandoned.Load(),
		TotalRevenue:      s.Revenue(),
		DeliveredEvents:   s.delivered.Load(),
	}
	for _, t := range event.Types() {
		if n := s.byType[t].Load(); n > 0 {
			sum.EventsByType = append(sum.EventsByType, TypeCount{Type: t.String(), Count: n})
		}
	}
	sort.Slice(sum.EventsByType, func(i, j int) bool {
		return sum.EventsByType[i].Type < sum.EventsByType[j].Type
	})
	return sum
}

// Count returns the number of events of type t in the summary.
func (s Summary) Count(t event.Type) int64 {
	name := t.String()
	for _, tc := range s.EventsByType {
		if tc.Type == name {
			return tc.Count
		}
	}
	return 0
}
