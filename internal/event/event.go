// Package event defines clickstream events and the factory that derives them
// from session state.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the wire format: ISO-8601, UTC, millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Properties carries the type-specific payload of an event.
type Properties map[string]any

// Event is immutable once created.
type Event struct {
	ID         string     `json:"event_id"`
	Type       Type       `json:"event_type"`
	UserID     string     `json:"user_id"`
	SessionID  string     `json:"session_id"`
	Timestamp  time.Time  `json:"-"`
	DeviceType string     `json:"device_type"`
	Browser    string     `json:"browser"`
	Country    string     `json:"country"`
	Properties Properties `json:"properties"`
}

type wireEvent Event

// MarshalJSON renders the flat wire shape with the timestamp as an ISO-8601 string.
func (e Event) MarshalJSON() ([]byte, error) {
	props := e.Properties
	if props == nil {
		props = Properties{}
	}
	w := wireEvent(e)
	w.Properties = props
	return json.Marshal(struct {
		wireEvent
		Timestamp string `json:"timestamp"`
	}{w, e.Timestamp.UTC().Format(TimestampLayout)})
}

// UnmarshalJSON accepts the wire shape produced by MarshalJSON.
func (e *Event) UnmarshalJSON(b []byte) error {
	var aux struct {
		wireEvent
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		return fmt.Errorf("event timestamp: %w", err)
	}
	*e = Event(aux.wireEvent)
	e.Timestamp = ts.UTC()
	return nil
}

// money renders a currency amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
