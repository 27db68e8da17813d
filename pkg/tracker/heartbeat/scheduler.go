// Package heartbeat synthesizes periodic Progress events for sessions that
// are still active and focused.
package heartbeat

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/event"
	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/session"
)

// Ticker flushes accrued time for the sessions eligible for a heartbeat
// and returns their snapshots. The session registry implements it.
type Ticker interface {
	FlushActive() []session.Snapshot
}

// DispatchFunc sends one synthesized event. Failures are the pipeline's
// problem; the scheduler only logs them.
type DispatchFunc func(ctx context.Context, ev event.Event) error

// Scheduler owns the heartbeat timer. The interval is re-read from
// settings before each re-arm, so interval changes take effect on the next
// tick without restarting the daemon.
type Scheduler struct {
	sessions Ticker
	dispatch DispatchFunc
	settings *config.Store
	log      logr.Logger
}

// NewScheduler creates a heartbeat scheduler.
func NewScheduler(sessions Ticker, dispatch DispatchFunc, settings *config.Store, log logr.Logger) *Scheduler {
	return &Scheduler{
		sessions: sessions,
		dispatch: dispatch,
		settings: settings,
		log:      log.WithName("heartbeat"),
	}
}

// Run ticks until ctx is cancelled. The timer is re-armed exactly once per
// tick, never stacked.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.settings.Tracking().HeartbeatInterval
	s.log.Info("heartbeat scheduler started", "interval", interval)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("heartbeat scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.Tick(ctx)
			timer.Reset(s.settings.Tracking().HeartbeatInterval)
		}
	}
}

// Tick dispatches one Progress event per eligible session: active,
// focused, and with an assigned problem id. Unfocused and undetected
// sessions are skipped for this tick.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, snap := range s.sessions.FlushActive() {
		ev := event.New(event.KindProgress, snap.ContextID, ProgressData(snap))
		if err := s.dispatch(ctx, ev); err != nil {
			// Delivery failures ride the retry queue like any other event.
			s.log.V(1).Info("heartbeat delivery deferred",
				"contextId", snap.ContextID, "error", err.Error())
		}
	}
}

// ProgressData builds the Progress payload for a session snapshot.
func ProgressData(snap session.Snapshot) map[string]any {
	return map[string]any{
		"problemId":    snap.ProblemID,
		"platform":     snap.Platform,
		"problemTitle": snap.ProblemTitle,
		"problemUrl":   snap.URL,
		"activeMs":     snap.ActiveTime.Milliseconds(),
		"wallTimeMs":   snap.WallTime.Milliseconds(),
		"keystrokes":   snap.Counters.Keystrokes,
		"runs":         snap.Counters.Runs,
		"submissions":  snap.Counters.Submissions,
	}
}
