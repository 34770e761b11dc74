// Package session owns the counters and terminal status of one pipeline
// run. RecordOutcome is the single mutation point for the counters and
// is safe to call concurrently from workers on different messages.
package session

import (
	"sync/atomic"
	"time"

	"referral-triage-go/internal/model"
)

// Tracker accumulates the counters of one processing session.
type Tracker struct {
	sessionID string
	total     int64
	processed int64
	succeeded int64
	failed    int64
	startedAt time.Time

	status atomic.Value // string
}

// Snapshot is a point-in-time copy of the session counters.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
}

// NewTracker creates a running tracker for a batch of total messages.
func NewTracker(sessionID string, total int) *Tracker {
	t := &Tracker{
		sessionID: sessionID,
		total:     int64(total),
		startedAt: time.Now(),
	}
	t.status.Store(model.SessionRunning)
	return t
}

// RecordOutcome increments processed and exactly one of succeeded or
// failed, atomically with respect to concurrent calls.
func (t *Tracker) RecordOutcome(success bool) {
	if success {
		atomic.AddInt64(&t.succeeded, 1)
	} else {
		atomic.AddInt64(&t.failed, 1)
	}
	atomic.AddInt64(&t.processed, 1)
}

// Snapshot returns a point-in-time view of the counters for progress
// reporting. Processed is read first: a success/failure increment always
// lands before its processed increment, so the invariant
// processed <= succeeded+failed holds for every snapshot.
func (t *Tracker) Snapshot() Snapshot {
	processed := atomic.LoadInt64(&t.processed)
	succeeded := atomic.LoadInt64(&t.succeeded)
	failed := atomic.LoadInt64(&t.failed)
	return Snapshot{
		SessionID: t.sessionID,
		Status:    t.status.Load().(string),
		Total:     int(t.total),
		Processed: int(processed),
		Succeeded: int(succeeded),
		Failed:    int(failed),
		StartedAt: t.startedAt,
	}
}

// SessionID returns the tracker's session identifier.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Finalize moves the session to its terminal state and returns it.
// Partial success (failed > 0) is still completed; failed status is
// reserved for session-level fatal errors via MarkFailed.
func (t *Tracker) Finalize() string {
	if t.status.Load().(string) == model.SessionRunning {
		t.status.Store(model.SessionCompleted)
	}
	return t.status.Load().(string)
}

// MarkFailed records a session-level fatal error (e.g. mailbox
// unreachable before any message was processed).
func (t *Tracker) MarkFailed() {
	t.status.Store(model.SessionFailed)
}
