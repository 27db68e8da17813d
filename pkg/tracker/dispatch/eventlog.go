package dispatch

import (
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/event"
)

// Status is the audit outcome recorded for an event.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusQueued    Status = "queued"
	StatusRejected  Status = "rejected"
	StatusDropped   Status = "dropped"
)

// Entry is one audit record. An event keeps a single entry for its whole
// lifetime; requeue/redeliver transitions update it in place.
type Entry struct {
	EventID   string     `json:"eventId"`
	ContextID string     `json:"contextId"`
	Kind      event.Kind `json:"kind"`
	Status    Status     `json:"status"`
	Detail    string     `json:"detail,omitempty"`
	At        time.Time  `json:"at"`
}

// Sink mirrors audit entries into durable storage. Implementations upsert
// by event id.
type Sink interface {
	AppendEntry(entry Entry) error
}

// DefaultLogCap bounds the in-memory audit history.
const DefaultLogCap = 100

// Log is the bounded append-only audit history of delivered and attempted
// events. It is an inspection surface, not part of the reliability
// guarantees.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
	sink    Sink
	log     logr.Logger
}

// NewLog creates an audit log capped at capacity entries. sink may be nil.
func NewLog(capacity int, sink Sink, log logr.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCap
	}
	return &Log{
		cap:  capacity,
		sink: sink,
		log:  log.WithName("eventlog"),
	}
}

// Record upserts the entry for an event: an existing entry is updated in
// place, a new one is appended and the oldest dropped past the cap. Sink
// failures are logged and swallowed; the audit trail never blocks the
// pipeline.
func (l *Log) Record(entry Entry) {
	entry.At = time.Now().UTC()

	l.mu.Lock()
	updated := false
	for i := range l.entries {
		if l.entries[i].EventID == entry.EventID {
			l.entries[i] = entry
			updated = true
			break
		}
	}
	if !updated {
		l.entries = append(l.entries, entry)
		if len(l.entries) > l.cap {
			l.entries = l.entries[len(l.entries)-l.cap:]
		}
	}
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.AppendEntry(entry); err != nil {
			l.log.Error(err, "failed to mirror audit entry", "eventId", entry.EventID)
		}
	}
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Len reports the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
