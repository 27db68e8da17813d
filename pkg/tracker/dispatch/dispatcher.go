// Package dispatch converts session state changes into canonical outbound
// events, attempts immediate delivery to the collector, and hands failures
// to the retry queue. Every outcome is mirrored into the bounded audit log.
package dispatch

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/collector"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
	apperrors "github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/errors"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/event"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/session"
)

// CollectorAPI is the slice of the collector client the dispatcher needs.
type CollectorAPI interface {
	DetectProblem(ctx context.Context, req collector.DetectRequest) (*collector.DetectResponse, error)
	PostEvent(ctx context.Context, ev event.Event) error
}

// SessionResolver lets the dispatcher read session state and store a
// detection result. It never mutates anything else.
type SessionResolver interface {
	Snapshot(contextID string) (session.Snapshot, bool)
	AssignProblem(contextID, problemID string, expectedMinutes *int) bool
}

// RetryQueue accepts undelivered events and connectivity observations.
type RetryQueue interface {
	Enqueue(ev event.Event)
	MarkOnline(online bool)
}

// Dispatcher is the single entry point events flow through, whether they
// originate from signal handlers, the heartbeat tick, or a retry redrive.
type Dispatcher struct {
	settings  *config.Store
	collector CollectorAPI
	sessions  SessionResolver
	queue     RetryQueue
	audit     *Log
	log       logr.Logger
}

// NewDispatcher creates a dispatcher. The retry queue is attached
// afterwards because queue and dispatcher reference each other.
func NewDispatcher(settings *config.Store, api CollectorAPI, sessions SessionResolver, audit *Log, log logr.Logger) *Dispatcher {
	return &Dispatcher{
		settings:  settings,
		collector: api,
		sessions:  sessions,
		audit:     audit,
		log:       log.WithName("dispatch"),
	}
}

// AttachQueue wires the retry queue in. Must be called before Dispatch.
func (d *Dispatcher) AttachQueue(q RetryQueue) {
	d.queue = q
}

// Audit exposes the bounded event log for the inspection surfaces.
func (d *Dispatcher) Audit() *Log {
	return d.audit
}

// Dispatch attempts synchronous delivery and routes failures: retryable
// ones into the queue, configuration failures into the log only. The
// returned error is informational; callers must not treat it as fatal to
// the session.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) error {
	err := d.Deliver(ctx, ev)
	if err == nil {
		d.noteDelivered(ev, "")
		return nil
	}

	if apperrors.IsConfiguration(err) {
		eventsRejected.Inc()
		d.log.Info("event rejected", "eventId", ev.ID, "kind", ev.Kind, "error", err.Error())
		d.audit.Record(Entry{EventID: ev.ID, ContextID: ev.ContextID, Kind: ev.Kind,
			Status: StatusRejected, Detail: err.Error()})
		return err
	}

	d.observeConnectivity(err)
	d.queue.Enqueue(ev)
	d.audit.Record(Entry{EventID: ev.ID, ContextID: ev.ContextID, Kind: ev.Kind,
		Status: StatusQueued, Detail: err.Error()})
	d.log.V(1).Info("event queued after delivery failure", "eventId", ev.ID, "kind", ev.Kind, "error", err.Error())
	return err
}

// Redrive is the retry queue's delivery function: same path as Dispatch
// but failures stay in the queue instead of being re-enqueued.
func (d *Dispatcher) Redrive(ctx context.Context, ev event.Event) error {
	err := d.Deliver(ctx, ev)
	if err == nil {
		d.noteDelivered(ev, "delivered on redrive")
		return nil
	}
	d.observeConnectivity(err)
	return err
}

// NoteDropped records an event discarded by the retry queue after max
// attempts. Wired as the queue's OnDrop callback.
func (d *Dispatcher) NoteDropped(ev event.Event, lastErr error) {
	detail := ""
	if lastErr != nil {
		detail = lastErr.Error()
	}
	d.audit.Record(Entry{EventID: ev.ID, ContextID: ev.ContextID, Kind: ev.Kind,
		Status: StatusDropped, Detail: detail})
}

// Deliver performs one outbound attempt. A missing user id fails fast
// before any network call. SessionStarted events without a problem id go
// through the detection round-trip first, so detection shares the retry
// path of the event itself.
func (d *Dispatcher) Deliver(ctx context.Context, ev event.Event) error {
	tracking := d.settings.Tracking()
	if tracking.UserID == "" {
		return apperrors.New(apperrors.ErrCodeConfiguration, "user id is not configured", nil)
	}

	wire := ev.WithData(map[string]any{"userId": tracking.UserID})

	if ev.Kind == event.KindSessionStarted && dataString(wire.Data, "problemId") == "" {
		resolved, err := d.resolveProblem(ctx, wire, tracking.UserID)
		if err != nil {
			return err
		}
		wire = resolved
	}

	return d.collector.PostEvent(ctx, wire)
}

// resolveProblem fills in problemId for a SessionStarted event, preferring
// a result another delivery already stored on the session.
func (d *Dispatcher) resolveProblem(ctx context.Context, wire event.Event, userID string) (event.Event, error) {
	if snap, ok := d.sessions.Snapshot(wire.ContextID); ok && snap.ProblemID != "" {
		return wire.WithData(problemFields(snap.ProblemID, snap.ExpectedMinutes)), nil
	}

	resp, err := d.collector.DetectProblem(ctx, collector.DetectRequest{
		UserID:       userID,
		Platform:     dataString(wire.Data, "platform"),
		ProblemTitle: dataString(wire.Data, "problemTitle"),
		ProblemURL:   dataString(wire.Data, "problemUrl"),
	})
	if err != nil {
		return wire, err
	}

	d.sessions.AssignProblem(wire.ContextID, resp.ProblemID, resp.ExpectedMinutes())
	return wire.WithData(problemFields(resp.ProblemID, resp.ExpectedMinutes())), nil
}

func (d *Dispatcher) noteDelivered(ev event.Event, detail string) {
	d.queue.MarkOnline(true)
	eventsDelivered.WithLabelValues(string(ev.Kind)).Inc()
	d.audit.Record(Entry{EventID: ev.ID, ContextID: ev.ContextID, Kind: ev.Kind,
		Status: StatusDelivered, Detail: detail})
}

// observeConnectivity translates a delivery failure into a connectivity
// hint for the sweep gate: a transport error means the collector is
// unreachable, any HTTP status means it is up.
func (d *Dispatcher) observeConnectivity(err error) {
	if status, ok := apperrors.DeliveryStatus(err); ok {
		d.queue.MarkOnline(status != 0)
	}
}

func problemFields(problemID string, expectedMinutes *int) map[string]any {
	fields := map[string]any{"problemId": problemID}
	if expectedMinutes != nil {
		fields["expectedTimeMinutes"] = *expectedMinutes
	}
	return fields
}

func dataString(data map[string]any, key string) string {
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}
