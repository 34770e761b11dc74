package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"referral-triage-go/internal/model"
)

func TestTrackerCounters(t *testing.T) {
	tr := NewTracker("s-1", 3)

	tr.RecordOutcome(true)
	tr.RecordOutcome(true)
	tr.RecordOutcome(false)

	snap := tr.Snapshot()
	assert.Equal(t, "s-1", snap.SessionID)
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 3, snap.Processed)
	assert.Equal(t, 2, snap.Succeeded)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, model.SessionRunning, snap.Status)
}

func TestSnapshotInvariantUnderConcurrency(t *testing.T) {
	tr := NewTracker("s-2", 1000)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			snap := tr.Snapshot()
			// A snapshot taken mid-flight may lag, but processed never
			// exceeds the sum of terminal outcomes.
			assert.LessOrEqual(t, snap.Processed, snap.Succeeded+snap.Failed)
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 125; i++ {
				tr.RecordOutcome(i%3 != 0)
			}
		}(w)
	}
	wg.Wait()
	<-done

	snap := tr.Snapshot()
	assert.Equal(t, 1000, snap.Processed)
	assert.Equal(t, snap.Succeeded+snap.Failed, snap.Processed)
}

func TestFinalizeCompletesPartialSuccess(t *testing.T) {
	tr := NewTracker("s-3", 2)
	tr.RecordOutcome(true)
	tr.RecordOutcome(false)

	// Per-message failures do not fail the session.
	assert.Equal(t, model.SessionCompleted, tr.Finalize())
	assert.Equal(t, model.SessionCompleted, tr.Snapshot().Status)
}

func TestMarkFailedSticks(t *testing.T) {
	tr := NewTracker("s-4", 0)
	tr.MarkFailed()

	assert.Equal(t, model.SessionFailed, tr.Finalize())
	assert.Equal(t, model.SessionFailed, tr.Snapshot().Status)
}
