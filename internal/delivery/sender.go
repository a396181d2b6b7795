// Package delivery ships queued events to the ingestion sink in batches.
package delivery

import (
	"context"
	"errors"

	"clicksim/internal/event"
)

// Sender delivers one batch to a sink.
//
// A nil error means every event was accepted. On error, Result.Failed holds
// the events that must be retried; a Sender that cannot tell which events
// failed returns the whole batch.
type Sender interface {
	Name() string
	Send(ctx context.Context, batch []event.Event) (Result, error)
	Close() error
}

// Result describes the outcome of a Send call.
type Result struct {
	Failed     []event.Event
	StatusCode int
	BytesSent  int64
}

// ErrRejected is returned when the sink answers with anything but acceptance.
var ErrRejected = errors.New("delivery: batch rejected")

// batchPayload is the request envelope expected by the ingestion endpoint.
type batchPayload struct {
	Records []event.Event `json:"records"`
}

const maxBodyLogSize = 1024

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + "... (truncated)"
}
