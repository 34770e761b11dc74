package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-triage-go/internal/config"
	"referral-triage-go/internal/entity"
	"referral-triage-go/internal/metrics"
	"referral-triage-go/internal/model"
	"referral-triage-go/internal/pipeline"
	"referral-triage-go/internal/priority"
	"referral-triage-go/internal/progress"
)

var testMetrics = metrics.NewMetrics()

// stubMailbox serves a fixed set of messages without attachments.
type stubMailbox struct {
	mu       sync.Mutex
	messages map[string]*model.InboundMessage
	listed   int
}

func (s *stubMailbox) ListNewMessages(ctx context.Context, since time.Time, max int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed++
	ids := make([]string, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *stubMailbox) FetchMessage(ctx context.Context, messageID string) (*model.InboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[messageID], nil
}

func (s *stubMailbox) FetchAttachment(ctx context.Context, messageID string, ref model.AttachmentRef) (*model.AttachmentBlob, error) {
	return &model.AttachmentBlob{}, nil
}

func (s *stubMailbox) MarkRead(ctx context.Context, messageID string) error { return nil }

func (s *stubMailbox) ApplyLabel(ctx context.Context, messageID, l string) error { return nil }

func (s *stubMailbox) Close() error { return nil }

func (s *stubMailbox) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listed
}

// stubStore accepts everything and remembers nothing beyond dedup.
type stubStore struct {
	mu        sync.Mutex
	succeeded map[string]bool
}

func newStubStore() *stubStore {
	return &stubStore{succeeded: make(map[string]bool)}
}

func (s *stubStore) HasSucceeded(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.succeeded[messageID], nil
}

func (s *stubStore) SaveSuccess(r *model.Referral, o *model.ProcessingOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded[r.MessageID] = true
	return nil
}

func (s *stubStore) RecordFailure(o *model.ProcessingOutcome) error { return nil }

func (s *stubStore) CreateSession(id string, total int) error { return nil }

func (s *stubStore) UpdateSessionCounters(id string, p, su, f int) error { return nil }

func (s *stubStore) FinalizeSession(id, status, errDetail string) error { return nil }

type noopExtractor struct{}

func (noopExtractor) Extract(ctx context.Context, blob *model.AttachmentBlob) (string, error) {
	return "", nil
}

func newTestPoller(intervalSeconds int) (*Poller, *stubMailbox) {
	mbox := &stubMailbox{messages: map[string]*model.InboundMessage{
		"msg-1": {MessageID: "msg-1", From: "dr@hospital.example", Body: "Urgencia: urgente"},
	}}
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{
			BatchSize:             10,
			MaxResultsPerPoll:     10,
			PollIntervalSeconds:   intervalSeconds,
			MaxRetries:            1,
			RetryDelaySeconds:     1,
			PerMessageTimeoutSecs: 5,
			ConcurrentWorkers:     2,
			MaxAttachmentBytes:    1024,
		},
	}
	o := pipeline.NewOrchestrator(cfg, mbox, noopExtractor{}, entity.NewExtractor(),
		priority.NewClassifier(), newStubStore(), progress.NewHub(), testMetrics)
	return NewPoller(&cfg.Pipeline, o), mbox
}

func TestStartStop(t *testing.T) {
	p, _ := newTestPoller(3600)

	assert.False(t, p.IsRunning())
	require.NoError(t, p.Start())
	assert.True(t, p.IsRunning())
	assert.False(t, p.NextRun().IsZero())

	// Starting twice is an error.
	assert.Error(t, p.Start())

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())

	// Stopping an idle poller is a no-op.
	require.NoError(t, p.Stop())
}

func TestRestartAfterStop(t *testing.T) {
	p, _ := newTestPoller(3600)

	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())
	require.NoError(t, p.Start())
	assert.True(t, p.IsRunning())
	require.NoError(t, p.Stop())
}

func TestRunOnceReturnsSnapshot(t *testing.T) {
	p, mbox := newTestPoller(3600)

	snap := p.RunOnce()
	assert.Equal(t, model.SessionCompleted, snap.Status)
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, 1, snap.Succeeded)
	assert.Equal(t, 1, mbox.listCalls())

	last := p.LastSnapshot()
	require.NotNil(t, last)
	assert.Equal(t, snap.SessionID, last.SessionID)
}

func TestScheduledCycleRuns(t *testing.T) {
	p, mbox := newTestPoller(1)

	require.NoError(t, p.Start())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return mbox.listCalls() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}
