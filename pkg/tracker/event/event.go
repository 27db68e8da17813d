// Package event defines the canonical outbound event emitted by the
// tracking pipeline. Events are immutable once constructed; everything the
// collector needs travels in the Data map.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the lifecycle stage an event reports.
type Kind string

const (
	KindSessionStarted Kind = "SessionStarted"
	KindProgress       Kind = "Progress"
	KindSubmitted      Kind = "Submitted"
	KindSessionEnded   Kind = "SessionEnded"
)

// Event is one outbound report. ID gives the collector an idempotency
// handle: delivery is at-least-once, so redrives reuse the same id.
type Event struct {
	ID        string
	Kind      Kind
	ContextID string
	Data      map[string]any
	CreatedAt time.Time
}

// New builds an event with a fresh id and creation timestamp. The data map
// is copied so later mutation by the caller cannot leak in.
func New(kind Kind, contextID string, data map[string]any) Event {
	copied := make(map[string]any, len(data)+1)
	for k, v := range data {
		copied[k] = v
	}
	copied["eventId"] = ""

	ev := Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		ContextID: contextID,
		Data:      copied,
		CreatedAt: time.Now().UTC(),
	}
	ev.Data["eventId"] = ev.ID
	return ev
}

// WithData returns a copy of the event whose data map has the given fields
// merged in. The receiver is left untouched.
func (e Event) WithData(extra map[string]any) Event {
	merged := make(map[string]any, len(e.Data)+len(extra))
	for k, v := range e.Data {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	e.Data = merged
	return e
}
