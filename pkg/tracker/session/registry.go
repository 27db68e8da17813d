// Package session owns the per-context session records: lifecycle,
// focus state, interaction counters, and gap-based active-time accrual.
package session

import (
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
)

// Registry maps observation-context ids to session records. All mutation
// goes through the registry under one lock, so no two record mutations ever
// interleave mid-step.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*record
	settings *config.Store
	log      logr.Logger

	// now is swappable for deterministic accrual tests.
	now func() time.Time
}

// NewRegistry creates an empty registry bound to the settings store.
func NewRegistry(settings *config.Store, log logr.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*record),
		settings: settings,
		log:      log.WithName("registry"),
		now:      time.Now,
	}
}

// EnsureSession creates a session for contextID if none exists and returns
// true; for an existing session it only updates the url (in-page navigation
// keeps accumulated time) and returns false.
func (r *Registry) EnsureSession(contextID, url, platform, problemTitle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.sessions[contextID]; ok {
		rec.url = url
		return false
	}

	now := r.now()
	r.sessions[contextID] = &record{
		contextID:    contextID,
		url:          url,
		platform:     platform,
		problemTitle: problemTitle,
		createdAt:    now,
		lastActivity: now,
		active:       true,
		focused:      true,
	}
	r.log.V(1).Info("session created", "contextId", contextID, "platform", platform, "title", problemTitle)
	return true
}

// RecordActivity credits the gap since the previous signal when the session
// is active, focused, and the gap is under the idle threshold; an idle gap
// is dropped entirely. lastActivity moves to now regardless of outcome.
// keystrokes is an optional counter delta batched by the observation layer.
func (r *Registry) RecordActivity(contextID string, keystrokes int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[contextID]
	if !ok {
		return false
	}
	r.flushLocked(rec)
	rec.primed = true
	if keystrokes > 0 {
		rec.counters.Keystrokes += keystrokes
	}
	return true
}

// SetFocus flushes accrued time under the old focus state, then applies the
// new one. A focus change is an activity signal like any other.
func (r *Registry) SetFocus(contextID string, focused bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[contextID]
	if !ok {
		return false
	}
	r.flushLocked(rec)
	rec.primed = true
	rec.focused = focused
	return true
}

// RecordRun counts a run-button click. A click is user activity.
func (r *Registry) RecordRun(contextID string) bool {
	return r.bumpCounter(contextID, func(c *Counters) { c.Runs++ })
}

// RecordSubmission counts a submit-button click.
func (r *Registry) RecordSubmission(contextID string) bool {
	return r.bumpCounter(contextID, func(c *Counters) { c.Submissions++ })
}

func (r *Registry) bumpCounter(contextID string, bump func(*Counters)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[contextID]
	if !ok {
		return false
	}
	r.flushLocked(rec)
	rec.primed = true
	bump(&rec.counters)
	return true
}

// SetVerdict records the judged verdict. Overwrite-safe: a later verdict
// replaces an earlier one.
func (r *Registry) SetVerdict(contextID, verdict string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[contextID]
	if !ok {
		return Snapshot{}, false
	}
	r.flushLocked(rec)
	rec.primed = true
	rec.finalVerdict = verdict
	return r.snapshotLocked(rec), true
}

// AssignProblem stores the detection result. The problem id is set once;
// repeat assignments for the same context are ignored.
func (r *Registry) AssignProblem(contextID, problemID string, expectedMinutes *int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[contextID]
	if !ok || rec.problemID != "" {
		return false
	}
	rec.problemID = problemID
	rec.expectedMinutes = expectedMinutes
	return true
}

// EndSession flushes remaining active time, marks the session inactive, and
// deletes the record unconditionally. The terminal snapshot is returned so
// the caller can emit a SessionEnded event; whether that emission succeeds
// has no bearing on deletion.
func (r *Registry) EndSession(contextID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[contextID]
	if !ok {
		return Snapshot{}, false
	}
	r.flushLocked(rec)
	rec.active = false
	snap := r.snapshotLocked(rec)
	delete(r.sessions, contextID)
	r.log.V(1).Info("session ended", "contextId", contextID,
		"activeTime", snap.ActiveTime, "wallTime", snap.WallTime)
	return snap, true
}

// Snapshot returns a read-only projection with the live unflushed gap
// included. It never mutates the record.
func (r *Registry) Snapshot(contextID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[contextID]
	if !ok {
		return Snapshot{}, false
	}
	snap := r.snapshotLocked(rec)
	snap.ActiveTime += r.pendingLocked(rec)
	return snap, true
}

// FlushActive flushes accrued time for every session that is active,
// focused, and has an assigned problem id, and returns their snapshots.
// Used by the heartbeat tick.
func (r *Registry) FlushActive() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var snaps []Snapshot
	for _, rec := range r.sessions {
		if !rec.active || !rec.focused || rec.problemID == "" {
			continue
		}
		r.flushLocked(rec)
		snaps = append(snaps, r.snapshotLocked(rec))
	}
	return snaps
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// flushLocked performs one catch-up accrual step and advances lastActivity.
func (r *Registry) flushLocked(rec *record) {
	now := r.now()
	rec.activeTime += r.creditLocked(rec, now)
	rec.lastActivity = now
}

// pendingLocked computes the live gap credit without mutating the record.
func (r *Registry) pendingLocked(rec *record) time.Duration {
	return r.creditLocked(rec, r.now())
}

func (r *Registry) creditLocked(rec *record, now time.Time) time.Duration {
	if !rec.primed || !rec.active || !rec.focused {
		return 0
	}
	gap := now.Sub(rec.lastActivity)
	if gap <= 0 || gap >= r.settings.Tracking().IdleThreshold {
		return 0
	}
	return gap
}

func (r *Registry) snapshotLocked(rec *record) Snapshot {
	return Snapshot{
		ContextID:       rec.contextID,
		URL:             rec.url,
		Platform:        rec.platform,
		ProblemTitle:    rec.problemTitle,
		ProblemID:       rec.problemID,
		ExpectedMinutes: rec.expectedMinutes,
		CreatedAt:       rec.createdAt,
		LastActivity:    rec.lastActivity,
		ActiveTime:      rec.activeTime,
		WallTime:        r.now().Sub(rec.createdAt),
		Active:          rec.active,
		Focused:         rec.focused,
		Counters:        rec.counters,
		FinalVerdict:    rec.finalVerdict,
	}
}
