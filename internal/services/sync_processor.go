package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"moneyflow/internal/log"
)

// PendingSyncer mirrors transactions the event path missed.
type PendingSyncer interface {
	ProcessPending(ctx context.Context) (int, error)
}

// SyncProcessorConfig configures the pending sweep.
type SyncProcessorConfig struct {
	PollInterval time.Duration // default 1m
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{PollInterval: time.Minute}
}

// SweepStats summarizes the sweeps run so far.
type SweepStats struct {
	Sweeps    int
	Synced    int
	Failures  int
	LastSweep time.Time
	LastError error
}

// SyncProcessor sweeps for transactions that never reached the spreadsheet,
// once on Start and then every PollInterval.
type SyncProcessor struct {
	syncer PendingSyncer
	config SyncProcessorConfig
	logger *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	stats  SweepStats
}

func NewSyncProcessor(syncer PendingSyncer, config SyncProcessorConfig, logger *log.Logger) *SyncProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSyncProcessorConfig().PollInterval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncProcessor{
		syncer: syncer,
		config: config,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

var errSweeperRunning = errors.New("sync processor is already running")

// Start launches the sweep loop. It stops when ctx ends or Stop is called.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errSweeperRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)

	p.logger.InfoContext(ctx, "Sync processor started", "poll_interval", p.config.PollInterval.String())
	return nil
}

// Stop cancels the loop and waits for the sweep in flight until ctx ends.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	p.logger.InfoContext(ctx, "Sync processor stopped")
	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Stats returns a snapshot of sweep counters.
func (p *SyncProcessor) Stats() SweepStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *SyncProcessor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		p.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *SyncProcessor) sweep(ctx context.Context) {
	n, err := p.syncer.ProcessPending(ctx)

	p.mu.Lock()
	p.stats.Sweeps++
	p.stats.Synced += n
	p.stats.LastSweep = time.Now()
	p.stats.LastError = err
	if err != nil {
		p.stats.Failures++
	}
	p.mu.Unlock()

	switch {
	case err != nil && ctx.Err() == nil:
		p.logger.ErrorContext(ctx, "Failed to process pending transactions", log.FieldError, err)
	case n > 0:
		p.logger.InfoContext(ctx, "Pending sweep completed", log.FieldTotal, n)
	}
}
