package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/event"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/session"
)

type fakeTicker struct {
	snaps   []session.Snapshot
	flushes int
}

func (f *fakeTicker) FlushActive() []session.Snapshot {
	f.flushes++
	return f.snaps
}

func newTestScheduler(ticker *fakeTicker, dispatch DispatchFunc) *Scheduler {
	settings := config.NewStore(config.DefaultConfig(), "", logr.Discard())
	return NewScheduler(ticker, dispatch, settings, logr.Discard())
}

func TestTick_DispatchesProgressPerEligibleSession(t *testing.T) {
	ticker := &fakeTicker{snaps: []session.Snapshot{
		{ContextID: "tab-1", ProblemID: "p-1", ActiveTime: 90 * time.Second,
			Counters: session.Counters{Keystrokes: 40, Runs: 2}},
		{ContextID: "tab-2", ProblemID: "p-2", ActiveTime: time.Second},
	}}

	var dispatched []event.Event
	s := newTestScheduler(ticker, func(ctx context.Context, ev event.Event) error {
		dispatched = append(dispatched, ev)
		return nil
	})

	s.Tick(context.Background())

	assert.Equal(t, 1, ticker.flushes)
	require.Len(t, dispatched, 2)
	assert.Equal(t, event.KindProgress, dispatched[0].Kind)
	assert.Equal(t, "tab-1", dispatched[0].ContextID)
	assert.EqualValues(t, 90000, dispatched[0].Data["activeMs"])
	assert.Equal(t, 2, dispatched[0].Data["runs"])
}

func TestTick_NoEligibleSessions(t *testing.T) {
	ticker := &fakeTicker{}

	calls := 0
	s := newTestScheduler(ticker, func(ctx context.Context, ev event.Event) error {
		calls++
		return nil
	})

	s.Tick(context.Background())
	assert.Zero(t, calls)
}

func TestTick_DispatchFailureDoesNotStopOthers(t *testing.T) {
	ticker := &fakeTicker{snaps: []session.Snapshot{
		{ContextID: "tab-1", ProblemID: "p-1"},
		{ContextID: "tab-2", ProblemID: "p-2"},
	}}

	var seen []string
	s := newTestScheduler(ticker, func(ctx context.Context, ev event.Event) error {
		seen = append(seen, ev.ContextID)
		return errors.New("delivery failed")
	})

	s.Tick(context.Background())
	assert.Equal(t, []string{"tab-1", "tab-2"}, seen)
}

func TestRun_TicksAtInterval(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tracking.HeartbeatInterval = 10 * time.Millisecond
	settings := config.NewStore(cfg, "", logr.Discard())

	ticker := &fakeTicker{snaps: []session.Snapshot{{ContextID: "tab-1", ProblemID: "p-1"}}}
	dispatchedCh := make(chan string, 8)
	s := NewScheduler(ticker, func(ctx context.Context, ev event.Event) error {
		dispatchedCh <- ev.ContextID
		return nil
	}, settings, logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case id := <-dispatchedCh:
			assert.Equal(t, "tab-1", id)
		case <-time.After(2 * time.Second):
			t.Fatal("heartbeat tick did not fire")
		}
	}
}
