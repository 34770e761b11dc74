package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"referral-triage-go/internal/db"
	"referral-triage-go/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	return New(conn)
}

func strPtr(s string) *string { return &s }

func testReferral(messageID, sessionID string) *model.Referral {
	return &model.Referral{
		MessageID:  messageID,
		SessionID:  sessionID,
		Sender:     "dr.lopez@hospital.example",
		Subject:    "Derivación cardiología",
		Specialty:  strPtr("cardiologia"),
		Priority:   model.PriorityAlta,
		ReceivedAt: time.Now(),
	}
}

func successOutcome(messageID, sessionID string) *model.ProcessingOutcome {
	return &model.ProcessingOutcome{
		MessageID:    messageID,
		SessionID:    sessionID,
		Stage:        model.StagePersisting,
		Result:       model.ResultSuccess,
		AttemptCount: 1,
	}
}

func TestHasSucceededOnlyCountsSuccessRows(t *testing.T) {
	s := newTestStore(t)

	done, err := s.HasSucceeded("msg-1")
	require.NoError(t, err)
	assert.False(t, done)

	// A failure outcome leaves the message eligible for reprocessing.
	require.NoError(t, s.RecordFailure(&model.ProcessingOutcome{
		MessageID:   "msg-1",
		SessionID:   "s-1",
		Stage:       model.StageFetchingText,
		Result:      model.ResultTransientFailure,
		ErrorDetail: "connection reset",
	}))
	done, err = s.HasSucceeded("msg-1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.SaveSuccess(testReferral("msg-1", "s-2"), successOutcome("msg-1", "s-2")))
	done, err = s.HasSucceeded("msg-1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestSaveSuccessUpsertsSingleReferral(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveSuccess(testReferral("msg-2", "s-1"), successOutcome("msg-2", "s-1")))

	// Re-persisting the same message updates in place instead of
	// inserting a second referral.
	again := testReferral("msg-2", "s-2")
	again.Priority = model.PriorityBaja
	require.NoError(t, s.SaveSuccess(again, successOutcome("msg-2", "s-2")))

	referrals, err := s.ListRecentReferrals(10)
	require.NoError(t, err)
	require.Len(t, referrals, 1)
	assert.Equal(t, "msg-2", referrals[0].MessageID)
	assert.Equal(t, model.PriorityBaja, referrals[0].Priority)
	assert.Equal(t, "s-2", referrals[0].SessionID)
}

func TestOutcomeLogIsAppendOnly(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordFailure(&model.ProcessingOutcome{
		MessageID: "msg-3", SessionID: "s-1",
		Stage: model.StageFetchingText, Result: model.ResultTransientFailure,
	}))
	require.NoError(t, s.SaveSuccess(testReferral("msg-3", "s-1"), successOutcome("msg-3", "s-1")))

	outcomes, err := s.ListOutcomes("s-1", 0)
	require.NoError(t, err)
	assert.Len(t, outcomes, 2)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateSession("s-9", 5))

	sess, err := s.GetSession("s-9")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, model.SessionRunning, sess.Status)
	assert.Equal(t, 5, sess.Total)
	assert.Nil(t, sess.EndedAt)

	require.NoError(t, s.UpdateSessionCounters("s-9", 5, 4, 1))
	require.NoError(t, s.FinalizeSession("s-9", model.SessionCompleted, ""))

	sess, err = s.GetSession("s-9")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, model.SessionCompleted, sess.Status)
	assert.Equal(t, 5, sess.Processed)
	assert.Equal(t, 4, sess.Succeeded)
	assert.Equal(t, 1, sess.Failed)
	assert.NotNil(t, sess.EndedAt)
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.GetSession("missing")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestFinalizeSessionKeepsError(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateSession("s-10", 0))
	require.NoError(t, s.FinalizeSession("s-10", model.SessionFailed, "mailbox unreachable"))

	sess, err := s.GetSession("s-10")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, model.SessionFailed, sess.Status)
	assert.Equal(t, "mailbox unreachable", sess.Error)
}
