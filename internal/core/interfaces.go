// Package core defines the fundamental interfaces and types shared by the simulator.
package core

import (
	"time"
)

// Attempt represents a single delivery attempt made by the batch sender.
type Attempt struct {
	Timestamp  time.Time
	Sink       string // "http", "kafka"
	BatchSize  int
	Failed     int // events handed back for requeue
	Duration   time.Duration
	Success    bool
	Error      string
	StatusCode int   // HTTP status, 0 for transport errors and non-HTTP sinks
	BytesSent  int64 // encoded payload size
}

// Delivered returns the number of events the sink accepted.
func (a Attempt) Delivered() int {
	return a.BatchSize - a.Failed
}

// Reporter is the interface the sender uses to publish attempts to the Collector.
type Reporter interface {
	Report(Attempt)
}

// NullReporter discards all attempts.
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(Attempt) {}
