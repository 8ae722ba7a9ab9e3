// Package scheduler runs the periodic housekeeping of a serving process:
// sweeping stale staging directories and pruning old stage task history.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/events"
	"github.com/bioplatforms/bpaworkflow/internal/log"
)

// Event types published by the scheduler.
const (
	TypeTick           = "scheduler.tick"
	TypeStagingCleaned = "staging.cleaned"
	TypeTasksPruned    = "tasks.pruned"
)

// Config controls the housekeeping cadence.
type Config struct {
	// Interval between passes. Zero runs a single pass at Start.
	Interval time.Duration
	// Jitter adds up to this much random delay to each interval.
	Jitter time.Duration
	// StaleAfter is the minimum age of a staging directory to remove.
	StaleAfter time.Duration
	// TaskRetention is the age past which finished tasks are pruned. Zero
	// disables pruning.
	TaskRetention time.Duration
}

// ConfigFrom extracts the scheduler settings from the service config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Interval:      cfg.Staging.CleanupInterval,
		Jitter:        cfg.Staging.CleanupJitter,
		StaleAfter:    cfg.Staging.StaleAfter,
		TaskRetention: cfg.State.TaskRetention,
	}
}

// Scheduler manages periodic housekeeping passes.
type Scheduler struct {
	cfg     Config
	sweeper Sweeper
	pruner  TaskPruner
	events  *events.Hub
	logger  *slog.Logger
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New creates a new Scheduler instance. pruner may be nil when task
// retention is disabled.
func New(cfg Config, sweeper Sweeper, pruner TaskPruner, hub *events.Hub) *Scheduler {
	if hub == nil {
		hub = events.NewHub(128)
	}
	return &Scheduler{
		cfg:     cfg,
		sweeper: sweeper,
		pruner:  pruner,
		events:  hub,
		logger:  log.WithComponent("scheduler"),
		stopCh:  make(chan struct{}),
	}
}

// Start runs one housekeeping pass immediately and then, when an interval is
// configured, keeps running passes in the background until Stop or ctx is
// done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting scheduler", "interval", s.cfg.Interval, "stale_after", s.cfg.StaleAfter)
	s.tick(ctx)
	if s.cfg.Interval <= 0 {
		return
	}
	s.wg.Add(1)
	go s.tickLoop(ctx)
}

// Stop halts the tick loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(calculateJitteredInterval(s.cfg.Interval, s.cfg.Jitter))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(calculateJitteredInterval(s.cfg.Interval, s.cfg.Jitter))
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick performs a single housekeeping pass. Failures are logged and retried
// on the next pass.
func (s *Scheduler) tick(ctx context.Context) {
	s.logger.Debug("scheduler tick")
	s.events.Publish(TypeTick, "", map[string]any{"at": time.Now().UTC()})

	if s.cfg.StaleAfter > 0 {
		report, err := s.sweeper.Cleanup(ctx, s.cfg.StaleAfter)
		if err != nil {
			s.logger.Warn("stale staging sweep failed", "error", err)
		} else if report.DeletedDirs > 0 {
			s.events.Publish(TypeStagingCleaned, "", map[string]any{"deleted_dirs": report.DeletedDirs})
		}
	}

	if s.cfg.TaskRetention > 0 && s.pruner != nil {
		n, err := s.pruner.PruneFinished(ctx, s.cfg.TaskRetention)
		if err != nil {
			s.logger.Warn("failed to prune finished stage tasks", "error", err)
		} else if n > 0 {
			s.logger.Info("pruned finished stage tasks", "count", n, "retention", s.cfg.TaskRetention)
			s.events.Publish(TypeTasksPruned, "", map[string]any{"count": n})
		}
	}
}

// calculateJitteredInterval adds a random jitter to the base interval.
func calculateJitteredInterval(baseInterval time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	randomJitter := time.Duration(rand.Int63n(jitter.Nanoseconds()))
	return baseInterval + randomJitter
}
