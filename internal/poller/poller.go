// Package poller triggers pipeline sessions on a fixed interval.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"referral-triage-go/internal/config"
	"referral-triage-go/internal/pipeline"
	"referral-triage-go/internal/session"
)

// Poller manages the periodic mailbox polling cycle.
type Poller struct {
	cron         *cron.Cron
	entryID      cron.EntryID
	cfg          *config.PipelineConfig
	orchestrator *pipeline.Orchestrator
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	isRunning    bool
	cycleActive  bool
	lastSnapshot *session.Snapshot
	mu           sync.RWMutex
}

// NewPoller creates a poller driving the given orchestrator.
func NewPoller(cfg *config.PipelineConfig, orchestrator *pipeline.Orchestrator) *Poller {
	ctx, cancel := context.WithCancel(context.Background())

	return &Poller{
		cron:         cron.New(cron.WithSeconds()),
		cfg:          cfg,
		orchestrator: orchestrator,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the polling schedule.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("poller is already running")
	}

	schedule := fmt.Sprintf("@every %ds", p.cfg.PollIntervalSeconds)
	entryID, err := p.cron.AddFunc(schedule, p.runCycle)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	if p.ctx.Err() != nil {
		p.ctx, p.cancel = context.WithCancel(context.Background())
	}

	p.entryID = entryID
	p.cron.Start()
	p.isRunning = true

	logrus.Infof("Poller started with interval: %ds", p.cfg.PollIntervalSeconds)
	return nil
}

// Stop stops the schedule and signals the running cycle to drain.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return nil
	}

	p.cancel()

	ctx := p.cron.Stop()
	select {
	case <-ctx.Done():
		logrus.Info("Poller stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Poller stop timeout, forcing shutdown")
	}

	p.isRunning = false
	return nil
}

// IsRunning returns whether the poller is running.
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isRunning
}

// runCycle executes one polling session. Overlapping ticks are skipped:
// a long-running session must finish before the next poll begins.
func (p *Poller) runCycle() {
	p.mu.Lock()
	if p.cycleActive {
		p.mu.Unlock()
		logrus.Info("Previous polling cycle still active, skipping this tick")
		return
	}
	p.cycleActive = true
	ctx := p.ctx
	p.mu.Unlock()

	p.wg.Add(1)
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.cycleActive = false
		p.mu.Unlock()
	}()

	start := time.Now()
	logrus.Info("Starting referral processing cycle")

	snap, err := p.orchestrator.RunSession(ctx, "")
	if err != nil {
		logrus.Errorf("Processing cycle failed: %v", err)
	}

	p.mu.Lock()
	p.lastSnapshot = &snap
	p.mu.Unlock()

	logrus.Infof("Referral processing cycle completed in %v", time.Since(start))
}

// RunOnce runs one polling session synchronously (for manual triggering).
func (p *Poller) RunOnce() session.Snapshot {
	logrus.Info("Running referral processing once")
	p.runCycle()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lastSnapshot != nil {
		return *p.lastSnapshot
	}
	return session.Snapshot{}
}

// LastSnapshot returns the counters of the most recent session, if any.
func (p *Poller) LastSnapshot() *session.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSnapshot
}

// NextRun returns the time of the next scheduled run.
func (p *Poller) NextRun() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.isRunning {
		return time.Time{}
	}
	return p.cron.Entry(p.entryID).Next
}

// LastRun returns the time of the last run.
func (p *Poller) LastRun() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.isRunning {
		return time.Time{}
	}
	return p.cron.Entry(p.entryID).Prev
}

// Wait waits for any in-flight cycle to finish draining.
func (p *Poller) Wait() {
	p.wg.Wait()
}
