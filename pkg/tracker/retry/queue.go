// Package retry implements the durable, time-ordered queue of undelivered
// events and the background sweeper that redrives them with exponential
// backoff.
package retry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/event"
)

// Item is one undelivered event. NextAttemptAt is always derived from
// RetryCount via Backoff; RetryCount only ever grows.
type Item struct {
	Event         event.Event
	RetryCount    int
	NextAttemptAt time.Time
}

// DeliverFunc redrives one event. It must be safe to call repeatedly for
// the same event (delivery is at-least-once).
type DeliverFunc func(ctx context.Context, ev event.Event) error

// Persister stores the queue contents so a restart resumes pending
// retries.
type Persister interface {
	SaveItems(items []Item) error
	LoadItems() ([]Item, error)
}

// Options tunes the queue. Zero values fall back to the defaults used in
// production.
type Options struct {
	MaxAttempts   int
	SweepInterval time.Duration
	KickDelay     time.Duration
	// Probe checks collector reachability when the queue believes the
	// collector is down. Optional.
	Probe func(ctx context.Context) error
	// OnDrop observes events discarded after exhausting their retries.
	// Optional; data loss past this point is accepted.
	OnDrop func(ev event.Event, lastErr error)
	// Now overrides the queue clock. Tests only.
	Now func() time.Time
}

// Queue holds undelivered events in enqueue order and redrives eligible
// ones on each sweep.
type Queue struct {
	mu    sync.Mutex
	items []Item

	deliver DeliverFunc
	persist Persister
	opts    Options
	log     logr.Logger

	online atomic.Bool
	kick   chan struct{}

	// now is swappable for deterministic sweep tests.
	now func() time.Time
}

// NewQueue creates a queue that redrives through deliver and persists
// through persist. persist may be nil for ephemeral queues.
func NewQueue(deliver DeliverFunc, persist Persister, opts Options, log logr.Logger) *Queue {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = 30 * time.Second
	}
	if opts.KickDelay == 0 {
		opts.KickDelay = 5 * time.Second
	}

	q := &Queue{
		deliver: deliver,
		persist: persist,
		opts:    opts,
		log:     log.WithName("retry"),
		kick:    make(chan struct{}, 1),
		now:     time.Now,
	}
	if opts.Now != nil {
		q.now = opts.Now
	}
	q.online.Store(true)
	return q
}

// Restore loads persisted items into the queue. Call once at startup,
// before the sweeper runs.
func (q *Queue) Restore() error {
	if q.persist == nil {
		return nil
	}
	items, err := q.persist.LoadItems()
	if err != nil {
		return err
	}

	// A lowered max_attempts can leave persisted items past the limit;
	// those would otherwise sit in the queue forever without a final
	// attempt that drops them.
	kept := make([]Item, 0, len(items))
	for _, it := range items {
		if it.RetryCount >= q.opts.MaxAttempts {
			eventsDropped.Inc()
			q.log.Info("restored event dropped, retries already exhausted",
				"eventId", it.Event.ID, "kind", it.Event.Kind, "attempts", it.RetryCount)
			if q.opts.OnDrop != nil {
				q.opts.OnDrop(it.Event, nil)
			}
			continue
		}
		kept = append(kept, it)
	}

	q.mu.Lock()
	q.items = kept
	q.mu.Unlock()

	if len(kept) > 0 {
		q.log.Info("restored pending retries", "count", len(kept))
		queueDepth.Set(float64(len(kept)))
	}
	return nil
}

// Enqueue adds an undelivered event with a fresh first backoff delay and
// arms the fast-recovery kick timer.
func (q *Queue) Enqueue(ev event.Event) {
	q.mu.Lock()
	q.items = append(q.items, Item{
		Event:         ev,
		RetryCount:    0,
		NextAttemptAt: q.now().Add(Backoff(0)),
	})
	depth := len(q.items)
	q.mu.Unlock()

	eventsQueued.Inc()
	queueDepth.Set(float64(depth))
	q.log.V(1).Info("event queued for retry", "eventId", ev.ID, "kind", ev.Kind, "depth", depth)

	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Len reports the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the pending items in queue order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// MarkOnline records a delivery outcome observed elsewhere; offline gates
// the next sweep until a probe succeeds.
func (q *Queue) MarkOnline(online bool) {
	q.online.Store(online)
}

// Sweep redrives every eligible item in queue order: remove on success,
// advance the backoff on failure, drop after the final attempt. The queue
// is persisted after every sweep. Skipped entirely while the collector is
// unreachable.
func (q *Queue) Sweep(ctx context.Context) error {
	if !q.online.Load() {
		if q.opts.Probe == nil || q.opts.Probe(ctx) != nil {
			q.log.V(1).Info("sweep skipped, collector unreachable")
			return nil
		}
		q.online.Store(true)
	}

	now := q.now()
	start := time.Now()

	q.mu.Lock()
	pending := make([]Item, len(q.items))
	copy(pending, q.items)
	q.mu.Unlock()

	var sweepErr *multierror.Error
	var kept []Item
	attempted := 0

	for _, it := range pending {
		if it.NextAttemptAt.After(now) || it.RetryCount >= q.opts.MaxAttempts {
			kept = append(kept, it)
			continue
		}
		attempted++

		err := q.deliver(ctx, it.Event)
		if err == nil {
			q.online.Store(true)
			eventsRedelivered.Inc()
			continue
		}

		sweepErr = multierror.Append(sweepErr, err)
		it.RetryCount++
		if it.RetryCount >= q.opts.MaxAttempts {
			eventsDropped.Inc()
			q.log.Info("event dropped after max retries",
				"eventId", it.Event.ID, "kind", it.Event.Kind, "attempts", it.RetryCount, "error", err.Error())
			if q.opts.OnDrop != nil {
				q.opts.OnDrop(it.Event, err)
			}
			continue
		}
		it.NextAttemptAt = q.now().Add(Backoff(it.RetryCount))
		kept = append(kept, it)
	}

	q.mu.Lock()
	// Items enqueued during the sweep are appended behind the survivors.
	newlyArrived := q.items[len(pending):]
	q.items = append(kept, newlyArrived...)
	depth := len(q.items)
	q.mu.Unlock()

	queueDepth.Set(float64(depth))
	sweepDuration.Observe(time.Since(start).Seconds())

	if q.persist != nil {
		if err := q.persist.SaveItems(q.Items()); err != nil {
			q.log.Error(err, "failed to persist retry queue")
			sweepErr = multierror.Append(sweepErr, err)
		}
	}

	if attempted > 0 {
		q.log.V(1).Info("sweep complete", "attempted", attempted, "remaining", depth)
	}
	return sweepErr.ErrorOrNil()
}

// Run drives the sweeper until ctx is cancelled: a steady periodic sweep
// as the safety net, plus a one-shot kick timer armed shortly after each
// enqueue. The kick timer is re-armed, never stacked, when items arrive
// back to back. The queue is persisted one last time on shutdown.
func (q *Queue) Run(ctx context.Context) error {
	q.log.Info("retry sweeper started",
		"sweepInterval", q.opts.SweepInterval, "kickDelay", q.opts.KickDelay, "maxAttempts", q.opts.MaxAttempts)

	ticker := time.NewTicker(q.opts.SweepInterval)
	defer ticker.Stop()

	kickTimer := time.NewTimer(q.opts.KickDelay)
	if !kickTimer.Stop() {
		<-kickTimer.C
	}
	defer kickTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			if q.persist != nil {
				if err := q.persist.SaveItems(q.Items()); err != nil {
					q.log.Error(err, "failed to persist retry queue on shutdown")
				}
			}
			q.log.Info("retry sweeper stopped")
			return ctx.Err()

		case <-q.kick:
			// Cancel-and-reschedule: a burst of enqueues yields one kick.
			if !kickTimer.Stop() {
				select {
				case <-kickTimer.C:
				default:
				}
			}
			kickTimer.Reset(q.opts.KickDelay)

		case <-kickTimer.C:
			if err := q.Sweep(ctx); err != nil {
				q.log.V(1).Info("kick sweep finished with failures", "error", err.Error())
			}

		case <-ticker.C:
			if err := q.Sweep(ctx); err != nil {
				q.log.V(1).Info("periodic sweep finished with failures", "error", err.Error())
			}
		}
	}
}
