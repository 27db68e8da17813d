package session

import "time"

// Counters are the monotonic per-session interaction counts.
type Counters struct {
	Keystrokes  int `json:"keystrokes"`
	Runs        int `json:"runs"`
	Submissions int `json:"submissions"`
}

// record is one tracked session, exclusively owned by the Registry. Active
// time accrues in discrete catch-up steps at each signal; there is no
// running clock.
type record struct {
	contextID    string
	url          string
	platform     string
	problemTitle string

	problemID       string
	expectedMinutes *int

	createdAt    time.Time
	lastActivity time.Time
	activeTime   time.Duration

	active  bool
	focused bool
	// primed is false until the first user-activity signal; the gap from
	// creation to that signal is never credited.
	primed bool

	counters     Counters
	finalVerdict string
}

// Snapshot is a read-only projection of one session. ActiveTime includes
// the live not-yet-flushed gap when the session is accruing.
type Snapshot struct {
	ContextID       string
	URL             string
	Platform        string
	ProblemTitle    string
	ProblemID       string
	ExpectedMinutes *int
	CreatedAt       time.Time
	LastActivity    time.Time
	ActiveTime      time.Duration
	WallTime        time.Duration
	Active          bool
	Focused         bool
	Counters        Counters
	FinalVerdict    string
}
