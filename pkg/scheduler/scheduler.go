// Package scheduler implements the Task Scheduler (spec.md §4.7): a
// cooperative, ticker-driven loop that, while this process holds
// leadership, runs Discovery, Shard Allocation, Goal-State Orchestration,
// and the Actual-Allocation Updater in strict order. Each pass is
// non-reentrant: if the previous pass has not finished, a new tick is
// dropped rather than queued.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/meridian-search/controlplane/pkg/actualalloc"
	"github.com/meridian-search/controlplane/pkg/allocator"
	"github.com/meridian-search/controlplane/pkg/discovery"
	"github.com/meridian-search/controlplane/pkg/election"
	"github.com/meridian-search/controlplane/pkg/log"
	"github.com/meridian-search/controlplane/pkg/metrics"
	"github.com/meridian-search/controlplane/pkg/orchestrator"
	"github.com/rs/zerolog"
)

// Config controls the scheduler's tick cadence.
type Config struct {
	Interval time.Duration
}

// Scheduler runs one cluster's reconciliation pass on a ticker, gated by
// leadership.
type Scheduler struct {
	cluster      string
	cfg          Config
	leadership   *election.Leadership
	discovery    *discovery.Discovery
	allocator    *allocator.Allocator
	orchestrator *orchestrator.Orchestrator
	updater      *actualalloc.Updater
	logger       zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New assembles a Scheduler for one cluster from its constituent tasks.
func New(cluster string, cfg Config, leadership *election.Leadership, d *discovery.Discovery, a *allocator.Allocator, o *orchestrator.Orchestrator, u *actualalloc.Updater) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Scheduler{
		cluster:      cluster,
		cfg:          cfg,
		leadership:   leadership,
		discovery:    d,
		allocator:    a,
		orchestrator: o,
		updater:      u,
		logger:       log.WithComponent("scheduler"),
	}
}

// Run starts campaigning for leadership and ticks the reconciliation pass
// for as long as this process holds it. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.leadership.Run(ctx, s.runTicker)
}

// runTicker is the main scheduler loop, started once per leadership term.
func (s *Scheduler) runTicker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Str("cluster", s.cluster).Msg("scheduler started")

	for {
		select {
		case <-ticker.C:
			s.tryPass(ctx)
		case <-ctx.Done():
			s.logger.Info().Str("cluster", s.cluster).Msg("scheduler stopped")
			return
		}
	}
}

// tryPass drops the tick if the previous pass is still running, per §4.7's
// non-reentrancy requirement.
func (s *Scheduler) tryPass(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.pass(ctx)
}

// pass runs one full reconciliation cycle: Discovery -> Allocator ->
// Orchestrator -> Updater, checking leadership before each subsequent
// writing phase (spec.md §4.8: "refresh the leader flag before every
// write").
func (s *Scheduler) pass(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationPassDuration)
		metrics.ReconciliationPassesTotal.Inc()
	}()

	if !s.leadership.IsLeader() {
		return
	}

	roster, err := s.discovery.Run(ctx, s.cluster)
	if err != nil {
		s.logger.Error().Err(err).Str("cluster", s.cluster).Msg("discovery pass failed")
		metrics.ReconciliationPassesFailed.Inc()
		return
	}

	if !s.leadership.IsLeader() {
		return
	}
	if _, err := s.allocator.Run(ctx, s.cluster, roster); err != nil {
		s.logger.Error().Err(err).Str("cluster", s.cluster).Msg("allocator pass failed")
		metrics.ReconciliationPassesFailed.Inc()
		return
	}

	if !s.leadership.IsLeader() {
		return
	}
	if err := s.orchestrator.Run(ctx, s.cluster, roster); err != nil {
		s.logger.Error().Err(err).Str("cluster", s.cluster).Msg("orchestrator pass failed")
		metrics.ReconciliationPassesFailed.Inc()
		return
	}

	if !s.leadership.IsLeader() {
		return
	}
	if err := s.updater.Run(ctx, s.cluster); err != nil {
		s.logger.Error().Err(err).Str("cluster", s.cluster).Msg("actual-allocation update failed")
		metrics.ReconciliationPassesFailed.Inc()
	}
}

