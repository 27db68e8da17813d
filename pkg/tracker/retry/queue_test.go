package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/errors"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/event"
)

type fakePersister struct {
	saved     [][]Item
	loadItems []Item
	loadErr   error
}

func (p *fakePersister) SaveItems(items []Item) error {
	copied := make([]Item, len(items))
	copy(copied, items)
	p.saved = append(p.saved, copied)
	return nil
}

func (p *fakePersister) LoadItems() ([]Item, error) {
	return p.loadItems, p.loadErr
}

// flakyDeliverer fails the first n calls, then succeeds.
type flakyDeliverer struct {
	failures int
	calls    int
}

func (d *flakyDeliverer) deliver(ctx context.Context, ev event.Event) error {
	d.calls++
	if d.calls <= d.failures {
		return apperrors.NewDelivery(503, "collector unavailable", nil)
	}
	return nil
}

func TestBackoff(t *testing.T) {
	base := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}

	for count, want := range base {
		for i := 0; i < 50; i++ {
			d := Backoff(count)
			assert.GreaterOrEqual(t, d, want, "count %d", count)
			assert.Less(t, d, want+time.Second, "count %d", count)
		}
	}

	// Monotone non-decreasing across counts even with jitter: the worst
	// sample for count n never exceeds the best sample for count n+1.
	for count := 0; count < len(base)-1; count++ {
		assert.LessOrEqual(t, base[count]+time.Second, base[count+1]+time.Second)
		assert.GreaterOrEqual(t, base[count+1], base[count])
	}

	// Never above the 30s cap plus 1s jitter, even for absurd counts.
	for _, count := range []int{10, 20, 63, 1000} {
		d := Backoff(count)
		assert.LessOrEqual(t, d, 31*time.Second)
		assert.GreaterOrEqual(t, d, 30*time.Second)
	}
}

func newTestQueue(deliver DeliverFunc, persist Persister, opts Options) *Queue {
	return NewQueue(deliver, persist, opts, logr.Discard())
}

func TestEnqueue_SetsFirstBackoff(t *testing.T) {
	q := newTestQueue(func(ctx context.Context, ev event.Event) error { return nil }, nil, Options{})

	before := time.Now()
	q.Enqueue(event.New(event.KindProgress, "tab-1", nil))

	items := q.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].RetryCount)
	assert.True(t, items[0].NextAttemptAt.After(before.Add(time.Second-time.Millisecond)))
	assert.True(t, items[0].NextAttemptAt.Before(before.Add(3*time.Second)))
}

func TestSweep_DeliversDueItemsInOrder(t *testing.T) {
	var delivered []string
	q := newTestQueue(func(ctx context.Context, ev event.Event) error {
		delivered = append(delivered, ev.ContextID)
		return nil
	}, nil, Options{})

	q.Enqueue(event.New(event.KindSessionStarted, "first", nil))
	q.Enqueue(event.New(event.KindProgress, "second", nil))

	// Everything becomes due once the clock passes the first backoff.
	q.now = func() time.Time { return time.Now().Add(5 * time.Second) }

	require.NoError(t, q.Sweep(context.Background()))
	assert.Equal(t, []string{"first", "second"}, delivered)
	assert.Zero(t, q.Len())
}

func TestSweep_SkipsNotYetDue(t *testing.T) {
	calls := 0
	q := newTestQueue(func(ctx context.Context, ev event.Event) error {
		calls++
		return nil
	}, nil, Options{})

	q.Enqueue(event.New(event.KindProgress, "tab-1", nil))

	// Backoff(0) is at least 1s, so an immediate sweep attempts nothing.
	require.NoError(t, q.Sweep(context.Background()))
	assert.Zero(t, calls)
	assert.Equal(t, 1, q.Len())
}

func TestSweep_FailureAdvancesBackoff(t *testing.T) {
	q := newTestQueue(func(ctx context.Context, ev event.Event) error {
		return apperrors.NewDelivery(500, "boom", nil)
	}, nil, Options{MaxAttempts: 5})

	q.Enqueue(event.New(event.KindProgress, "tab-1", nil))
	q.now = func() time.Time { return time.Now().Add(5 * time.Second) }

	err := q.Sweep(context.Background())
	require.Error(t, err)

	items := q.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].RetryCount)
	// Next attempt derived from the new retry count: at least 2s out.
	assert.True(t, items[0].NextAttemptAt.After(q.now().Add(2*time.Second-time.Millisecond)))
}

func TestSweep_DropsAfterMaxAttempts(t *testing.T) {
	var dropped []event.Event
	q := newTestQueue(func(ctx context.Context, ev event.Event) error {
		return apperrors.NewDelivery(500, "boom", nil)
	}, nil, Options{
		MaxAttempts: 3,
		OnDrop:      func(ev event.Event, lastErr error) { dropped = append(dropped, ev) },
	})

	ev := event.New(event.KindSubmitted, "tab-1", nil)
	q.Enqueue(ev)

	offset := time.Duration(0)
	for i := 0; i < 3; i++ {
		offset += 40 * time.Second
		shifted := offset
		q.now = func() time.Time { return time.Now().Add(shifted) }
		q.Sweep(context.Background())
	}

	// retryCount walked 0 -> 1 -> 2 -> 3 == max: removed exactly once.
	assert.Zero(t, q.Len())
	require.Len(t, dropped, 1)
	assert.Equal(t, ev.ID, dropped[0].ID)
}

func TestSweep_FlakyThenSuccess(t *testing.T) {
	d := &flakyDeliverer{failures: 3}
	q := newTestQueue(d.deliver, nil, Options{MaxAttempts: 5})

	q.Enqueue(event.New(event.KindSessionEnded, "tab-1", nil))

	offset := time.Duration(0)
	for i := 0; i < 4; i++ {
		offset += 40 * time.Second
		shifted := offset
		q.now = func() time.Time { return time.Now().Add(shifted) }
		q.Sweep(context.Background())
	}

	// Three failed redrives (0 -> 1 -> 2 -> 3), then success on the fourth.
	assert.Equal(t, 4, d.calls)
	assert.Zero(t, q.Len())
}

func TestSweep_OfflineGate(t *testing.T) {
	calls := 0
	q := newTestQueue(func(ctx context.Context, ev event.Event) error {
		calls++
		return nil
	}, nil, Options{})

	q.Enqueue(event.New(event.KindProgress, "tab-1", nil))
	q.now = func() time.Time { return time.Now().Add(5 * time.Second) }
	q.MarkOnline(false)

	// No probe configured: sweep skips entirely.
	require.NoError(t, q.Sweep(context.Background()))
	assert.Zero(t, calls)
	assert.Equal(t, 1, q.Len())
}

func TestSweep_ProbeRestoresConnectivity(t *testing.T) {
	probeErr := errors.New("still down")
	q := newTestQueue(func(ctx context.Context, ev event.Event) error { return nil }, nil, Options{
		Probe: func(ctx context.Context) error { return probeErr },
	})

	q.Enqueue(event.New(event.KindProgress, "tab-1", nil))
	q.now = func() time.Time { return time.Now().Add(5 * time.Second) }
	q.MarkOnline(false)

	require.NoError(t, q.Sweep(context.Background()))
	assert.Equal(t, 1, q.Len())

	// Collector comes back; the probe succeeds and the sweep proceeds.
	probeErr = nil
	require.NoError(t, q.Sweep(context.Background()))
	assert.Zero(t, q.Len())
}

func TestSweep_PersistsAfterEverySweep(t *testing.T) {
	persist := &fakePersister{}
	q := newTestQueue(func(ctx context.Context, ev event.Event) error {
		return apperrors.NewDelivery(500, "boom", nil)
	}, persist, Options{MaxAttempts: 5})

	q.Enqueue(event.New(event.KindProgress, "tab-1", nil))
	q.now = func() time.Time { return time.Now().Add(5 * time.Second) }

	q.Sweep(context.Background())
	require.Len(t, persist.saved, 1)
	require.Len(t, persist.saved[0], 1)
	assert.Equal(t, 1, persist.saved[0][0].RetryCount)

	q.Sweep(context.Background())
	// Item not yet due on the second sweep, but the queue still persists.
	require.Len(t, persist.saved, 2)
}

func TestRestore(t *testing.T) {
	ev := event.New(event.KindProgress, "tab-1", nil)
	persist := &fakePersister{
		loadItems: []Item{{Event: ev, RetryCount: 2, NextAttemptAt: time.Now().Add(-time.Second)}},
	}

	var delivered []string
	q := newTestQueue(func(ctx context.Context, ev event.Event) error {
		delivered = append(delivered, ev.ID)
		return nil
	}, persist, Options{})

	require.NoError(t, q.Restore())
	assert.Equal(t, 1, q.Len())

	require.NoError(t, q.Sweep(context.Background()))
	assert.Equal(t, []string{ev.ID}, delivered)
}

func TestRestore_DropsExhaustedItems(t *testing.T) {
	stale := event.New(event.KindProgress, "tab-1", nil)
	fresh := event.New(event.KindSubmitted, "tab-2", nil)
	persist := &fakePersister{
		loadItems: []Item{
			{Event: stale, RetryCount: 5, NextAttemptAt: time.Now().Add(-time.Second)},
			{Event: fresh, RetryCount: 1, NextAttemptAt: time.Now().Add(-time.Second)},
		},
	}

	var dropped []string
	q := newTestQueue(func(ctx context.Context, ev event.Event) error {
		return nil
	}, persist, Options{
		// max_attempts lowered below the stale item's count between runs.
		MaxAttempts: 3,
		OnDrop:      func(ev event.Event, lastErr error) { dropped = append(dropped, ev.ID) },
	})

	require.NoError(t, q.Restore())
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, []string{stale.ID}, dropped)
	assert.Equal(t, fresh.ID, q.Items()[0].Event.ID)
}

func TestRun_KickSweepsShortlyAfterEnqueue(t *testing.T) {
	deliveredCh := make(chan string, 1)
	var offset atomic.Int64
	q := newTestQueue(func(ctx context.Context, ev event.Event) error {
		deliveredCh <- ev.ID
		return nil
	}, nil, Options{
		SweepInterval: time.Hour,
		KickDelay:     20 * time.Millisecond,
		Now: func() time.Time {
			return time.Now().Add(time.Duration(offset.Load()))
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	ev := event.New(event.KindProgress, "tab-1", nil)
	q.Enqueue(ev)
	// Jump the clock only after the enqueue stamped its first backoff, so
	// the item is already due when the kick sweep fires.
	offset.Store(int64(5 * time.Second))

	select {
	case id := <-deliveredCh:
		assert.Equal(t, ev.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("kick sweep did not fire")
	}
	assert.Zero(t, q.Len())
}
