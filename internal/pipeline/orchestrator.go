// Package pipeline drives referral messages through the processing
// state machine under a bounded worker pool: queued -> fetching_text ->
// extracting_entities -> classifying -> persisting -> succeeded|failed.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"referral-triage-go/internal/config"
	"referral-triage-go/internal/entity"
	"referral-triage-go/internal/mailbox"
	"referral-triage-go/internal/metrics"
	"referral-triage-go/internal/model"
	"referral-triage-go/internal/priority"
	"referral-triage-go/internal/progress"
	"referral-triage-go/internal/retry"
	"referral-triage-go/internal/session"
	"referral-triage-go/internal/textextract"
)

// Store is the persistence surface the orchestrator requires.
// *store.Store satisfies it; tests substitute fakes.
type Store interface {
	HasSucceeded(messageID string) (bool, error)
	SaveSuccess(referral *model.Referral, outcome *model.ProcessingOutcome) error
	RecordFailure(outcome *model.ProcessingOutcome) error
	CreateSession(sessionID string, total int) error
	UpdateSessionCounters(sessionID string, processed, succeeded, failed int) error
	FinalizeSession(sessionID, status, errDetail string) error
}

// TextExtractor converts attachment blobs into text.
type TextExtractor interface {
	Extract(ctx context.Context, blob *model.AttachmentBlob) (string, error)
}

// Orchestrator runs processing sessions over the mailbox.
type Orchestrator struct {
	cfg         *config.Config
	mailbox     mailbox.Mailbox
	texts       TextExtractor
	entities    *entity.Extractor
	classifier  *priority.Classifier
	coordinator *retry.Coordinator
	store       Store
	hub         *progress.Hub
	metrics     *metrics.Metrics

	mu         sync.Mutex
	checkpoint time.Time
	inflight   map[string]bool
}

// NewOrchestrator wires a pipeline orchestrator.
func NewOrchestrator(
	cfg *config.Config,
	mbox mailbox.Mailbox,
	texts TextExtractor,
	entities *entity.Extractor,
	classifier *priority.Classifier,
	st Store,
	hub *progress.Hub,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		mailbox:    mbox,
		texts:      texts,
		entities:   entities,
		classifier: classifier,
		coordinator: retry.NewCoordinator(
			cfg.Pipeline.MaxRetries,
			cfg.Pipeline.RetryDelay(),
			cfg.Pipeline.PerMessageTimeout(),
		),
		store:      st,
		hub:        hub,
		metrics:    m,
		checkpoint: time.Now().Add(-24 * time.Hour),
		inflight:   make(map[string]bool),
	}
}

// RunSession polls the mailbox once and processes the discovered batch
// to completion. It returns the final counter snapshot. The only error
// returned is session-fatal (mailbox unreachable before any message was
// processed); per-message failures are recorded as outcomes and counted.
func (o *Orchestrator) RunSession(ctx context.Context, sessionID string) (session.Snapshot, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	o.metrics.PollCount.Inc()

	ids, err := o.listBatch(ctx)
	if err != nil {
		logrus.Errorf("Session %s aborted, mailbox unreachable: %v", sessionID, err)
		if createErr := o.store.CreateSession(sessionID, 0); createErr != nil {
			logrus.Errorf("Failed to create session row: %v", createErr)
		} else if finErr := o.store.FinalizeSession(sessionID, model.SessionFailed, err.Error()); finErr != nil {
			logrus.Errorf("Failed to finalize session row: %v", finErr)
		}
		tracker := session.NewTracker(sessionID, 0)
		tracker.MarkFailed()
		return tracker.Snapshot(), err
	}

	// Messages still in flight from an overlapping run are excluded
	// before they enter this session's accounting.
	queued := o.claim(ids)
	if o.cfg.Pipeline.BatchSize > 0 && len(queued) > o.cfg.Pipeline.BatchSize {
		o.release(queued[o.cfg.Pipeline.BatchSize:])
		queued = queued[:o.cfg.Pipeline.BatchSize]
	}

	tracker := session.NewTracker(sessionID, len(queued))
	if err := o.store.CreateSession(sessionID, len(queued)); err != nil {
		o.release(queued)
		tracker.MarkFailed()
		return tracker.Snapshot(), err
	}

	logrus.Infof("Session %s: processing %d messages with %d workers", sessionID, len(queued), o.cfg.Pipeline.ConcurrentWorkers)

	queue := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Pipeline.ConcurrentWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for messageID := range queue {
				// A shutdown request drains: the current message
				// finishes, remaining queued ones are released
				// unprocessed.
				if ctx.Err() != nil {
					o.release([]string{messageID})
					continue
				}
				o.processMessage(ctx, tracker, messageID)
			}
		}()
	}

	for _, id := range queued {
		queue <- id
	}
	close(queue)
	wg.Wait()

	status := tracker.Finalize()
	snap := tracker.Snapshot()
	if err := o.store.UpdateSessionCounters(sessionID, snap.Processed, snap.Succeeded, snap.Failed); err != nil {
		logrus.Errorf("Failed to update session counters: %v", err)
	}
	if err := o.store.FinalizeSession(sessionID, status, ""); err != nil {
		logrus.Errorf("Failed to finalize session: %v", err)
	}

	logrus.Infof("Session %s %s: processed=%d succeeded=%d failed=%d", sessionID, status, snap.Processed, snap.Succeeded, snap.Failed)
	return tracker.Snapshot(), nil
}

// listBatch lists new message IDs since the checkpoint, under the retry
// policy. The checkpoint only advances when listing succeeds.
func (o *Orchestrator) listBatch(ctx context.Context) ([]string, error) {
	o.mu.Lock()
	since := o.checkpoint
	o.mu.Unlock()

	var ids []string
	_, err := o.coordinator.Do(ctx, "list_messages", func(ctx context.Context) error {
		listed, err := o.mailbox.ListNewMessages(ctx, since, o.cfg.Pipeline.MaxResultsPerPoll)
		if err != nil {
			return err
		}
		ids = listed
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.checkpoint = time.Now()
	o.mu.Unlock()
	return ids, nil
}

// claim adds message IDs to the in-flight set, dropping those already
// claimed by an overlapping poll cycle.
func (o *Orchestrator) claim(ids []string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		if o.inflight[id] {
			logrus.Debugf("Message %s already in flight, skipping", id)
			continue
		}
		o.inflight[id] = true
		claimed = append(claimed, id)
	}
	return claimed
}

func (o *Orchestrator) release(ids []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		delete(o.inflight, id)
	}
}

// processMessage runs one message through the full state machine. All
// failures terminate here as recorded outcomes; nothing propagates.
func (o *Orchestrator) processMessage(ctx context.Context, tracker *session.Tracker, messageID string) {
	defer o.release([]string{messageID})

	o.metrics.MessagesQueued.Inc()
	o.metrics.InFlight.Inc()
	defer o.metrics.InFlight.Dec()

	start := time.Now()
	defer func() {
		o.metrics.ProcessingTime.Observe(time.Since(start).Seconds())
	}()

	// The per-message ceiling is deliberately detached from the session
	// context: a shutdown lets the in-flight message finish so the
	// persist step is never torn mid-transaction.
	mctx, cancel := o.coordinator.WithTimeout(context.Background())
	defer cancel()

	// queued -> dedup gate
	done, err := o.store.HasSucceeded(messageID)
	if err != nil {
		o.fail(tracker, messageID, model.StageQueued, 0, err)
		return
	}
	if done {
		logrus.Debugf("Message %s already processed, skipping", messageID)
		o.metrics.MessagesSkipped.Inc()
		o.succeedCounters(tracker, messageID, "skipped")
		return
	}

	// fetching_text
	var msg *model.InboundMessage
	attempts, err := o.coordinator.Do(mctx, model.StageFetchingText, func(ctx context.Context) error {
		fetched, err := o.mailbox.FetchMessage(ctx, messageID)
		if err != nil {
			return err
		}
		msg = fetched
		return nil
	})
	if err != nil {
		o.fail(tracker, messageID, model.StageFetchingText, attempts, err)
		return
	}

	if !o.cfg.Pipeline.SenderAllowed(msg.From) {
		o.quarantine(mctx, tracker, msg, attempts)
		return
	}

	fullText := o.gatherText(mctx, msg)

	// extracting_entities and classifying are pure in-memory steps;
	// they cannot fail transiently and run outside the retry wrapper.
	record := o.entities.Extract(fullText)

	urgency := ""
	if record.UrgencyPhrase != nil {
		urgency = *record.UrgencyPhrase
	}
	prio := o.classifier.Classify(fullText, urgency)

	// persisting
	referral := buildReferral(tracker.SessionID(), msg, record, prio)
	outcome := &model.ProcessingOutcome{
		MessageID: messageID,
		SessionID: tracker.SessionID(),
		Stage:     model.StagePersisting,
		Result:    model.ResultSuccess,
	}
	// The row is stamped with the persist stage, so its attempt count is
	// the persist attempt that actually wrote it.
	persistAttempts, err := o.coordinator.Do(mctx, model.StagePersisting, func(ctx context.Context) error {
		outcome.AttemptCount++
		return o.store.SaveSuccess(referral, outcome)
	})
	if err != nil {
		o.fail(tracker, messageID, model.StagePersisting, persistAttempts, err)
		return
	}

	o.markProcessed(mctx, messageID)
	o.metrics.MessagesSucceeded.Inc()
	o.succeedCounters(tracker, messageID, model.ResultSuccess)
	logrus.Infof("Message %s processed: priority=%s specialty=%v", messageID, prio, record.Specialty)
}

// gatherText assembles the combined text of body plus every attachment.
// Per-attachment failures are logged and contribute empty text; they
// never abort the message.
func (o *Orchestrator) gatherText(ctx context.Context, msg *model.InboundMessage) string {
	var parts []string

	if strings.TrimSpace(msg.Body) != "" {
		parts = append(parts, msg.Body)
	} else if msg.HTMLBody != "" {
		text, err := textextract.HTMLToText(msg.HTMLBody)
		if err != nil {
			logrus.Warnf("Failed to convert HTML body of %s: %v", msg.MessageID, err)
		} else {
			parts = append(parts, text)
		}
	}

	if msg.Subject != "" {
		parts = append(parts, msg.Subject)
	}

	for _, ref := range msg.Attachments {
		// The manifest size is checked before fetching so oversized
		// attachments are rejected without moving their bytes.
		if o.cfg.Pipeline.MaxAttachmentBytes > 0 && ref.Size > o.cfg.Pipeline.MaxAttachmentBytes {
			logrus.Warnf("Rejecting oversized attachment %s of message %s (%d bytes)", ref.Filename, msg.MessageID, ref.Size)
			o.metrics.OCRFailures.Inc()
			continue
		}

		var blob *model.AttachmentBlob
		_, err := o.coordinator.Do(ctx, model.StageFetchingText, func(ctx context.Context) error {
			fetched, err := o.mailbox.FetchAttachment(ctx, msg.MessageID, ref)
			if err != nil {
				return err
			}
			blob = fetched
			return nil
		})
		if err != nil {
			logrus.Warnf("Failed to fetch attachment %s of message %s: %v", ref.Filename, msg.MessageID, err)
			o.metrics.OCRFailures.Inc()
			continue
		}

		text, err := o.texts.Extract(ctx, blob)
		if err != nil {
			logrus.Warnf("Failed to extract attachment %s of message %s: %v", ref.Filename, msg.MessageID, err)
			o.metrics.OCRFailures.Inc()
			continue
		}
		parts = append(parts, text)
	}

	return strings.Join(parts, "\n")
}

// quarantine labels a message from a non-allowed sender domain and
// records it as a permanent failure without extracting anything.
func (o *Orchestrator) quarantine(ctx context.Context, tracker *session.Tracker, msg *model.InboundMessage, attempts int) {
	logrus.Warnf("Quarantining message %s: sender %s not in allowed domains", msg.MessageID, msg.From)

	if err := o.mailbox.ApplyLabel(ctx, msg.MessageID, o.cfg.Mailbox.QuarantineLabel); err != nil {
		logrus.Errorf("Failed to label quarantined message %s: %v", msg.MessageID, err)
	}

	o.fail(tracker, msg.MessageID, model.StageFetchingText, attempts,
		retry.Permanentf("sender %s not in allowed domains", msg.From))
}

// markProcessed marks the message read and labels it. Best-effort: the
// referral is already durable, so a provider hiccup here only costs
// mailbox hygiene.
func (o *Orchestrator) markProcessed(ctx context.Context, messageID string) {
	if err := o.mailbox.MarkRead(ctx, messageID); err != nil {
		logrus.Warnf("Failed to mark message %s read: %v", messageID, err)
	}
	if label := o.cfg.Mailbox.ProcessedLabel; label != "" {
		if err := o.mailbox.ApplyLabel(ctx, messageID, label); err != nil {
			logrus.Warnf("Failed to label message %s: %v", messageID, err)
		}
	}
}

// succeedCounters records a success (or dedup skip) on the tracker and
// publishes the progress event.
func (o *Orchestrator) succeedCounters(tracker *session.Tracker, messageID, result string) {
	tracker.RecordOutcome(true)
	o.publish(tracker, messageID, result)
}

// fail records a terminal failure: outcome row, counters, progress
// event. The result distinguishes exhausted-transient from permanent.
func (o *Orchestrator) fail(tracker *session.Tracker, messageID, stage string, attempts int, err error) {
	result := model.ResultPermanentFailure
	if retry.IsExhausted(err) || !retry.IsPermanent(err) {
		result = model.ResultTransientFailure
	}

	logrus.Errorf("Message %s failed at %s (%s): %v", messageID, stage, result, err)

	outcome := &model.ProcessingOutcome{
		MessageID:    messageID,
		SessionID:    tracker.SessionID(),
		Stage:        stage,
		Result:       result,
		AttemptCount: attempts,
		ErrorDetail:  err.Error(),
	}
	if recErr := o.store.RecordFailure(outcome); recErr != nil {
		logrus.Errorf("Failed to record outcome for message %s: %v", messageID, recErr)
	}

	o.metrics.MessagesFailed.Inc()
	tracker.RecordOutcome(false)
	o.publish(tracker, messageID, result)
}

// publish emits the terminal progress event and refreshes the persisted
// session counters. Both are best-effort.
func (o *Orchestrator) publish(tracker *session.Tracker, messageID, result string) {
	snap := tracker.Snapshot()
	o.hub.Publish(progress.Event{
		SessionID: snap.SessionID,
		MessageID: messageID,
		Result:    result,
		Processed: snap.Processed,
		Total:     snap.Total,
	})
	if err := o.store.UpdateSessionCounters(snap.SessionID, snap.Processed, snap.Succeeded, snap.Failed); err != nil {
		logrus.Warnf("Failed to update session counters: %v", err)
	}
}

// buildReferral maps the extracted record onto the persisted model.
func buildReferral(sessionID string, msg *model.InboundMessage, record entity.Record, prio string) *model.Referral {
	return &model.Referral{
		MessageID:     msg.MessageID,
		SessionID:     sessionID,
		Sender:        msg.From,
		Subject:       msg.Subject,
		PatientID:     record.PatientID,
		PatientName:   record.PatientName,
		Age:           record.Age,
		Diagnosis:     record.Diagnosis,
		Specialty:     record.Specialty,
		UrgencyPhrase: record.UrgencyPhrase,
		Priority:      prio,
		ReceivedAt:    msg.ReceivedAt,
	}
}
