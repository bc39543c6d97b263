package aggregator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cognitive_backend/core"
)

// IdleSweeper runs Aggregator.SweepIdle on a fixed interval, independent of
// inbound requests.
//
// Usage:
//
//	sweeper := aggregator.NewIdleSweeper(agg, logger)
//	sweeper.AfterSweep = func(snaps []aggregator.Snapshot) { ... }
//	sweeper.Start(ctx)
//	defer sweeper.Stop()
type IdleSweeper struct {
	agg    *Aggregator
	task   *core.PeriodicTask
	logger *zap.Logger

	// AfterSweep, if set, receives every subject snapshot produced by a
	// sweep. It runs on the sweeper goroutine. Set it before Start.
	AfterSweep func(ctx context.Context, snapshots []Snapshot)
}

// NewIdleSweeper creates a stopped sweeper using the aggregator's configured
// SweepInterval.
func NewIdleSweeper(agg *Aggregator, logger *zap.Logger) *IdleSweeper {
	return NewIdleSweeperWithInterval(agg, agg.Config().SweepInterval, logger)
}

// NewIdleSweeperWithInterval creates a stopped sweeper with an explicit
// interval.
func NewIdleSweeperWithInterval(agg *Aggregator, interval time.Duration, logger *zap.Logger) *IdleSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &IdleSweeper{agg: agg, logger: logger}
	s.task = core.NewPeriodicTask("idle-sweep", interval, s.sweep)
	return s
}

// Start begins sweeping until ctx is cancelled or Stop is called.
func (s *IdleSweeper) Start(ctx context.Context) {
	s.logger.Info("Idle sweeper started", zap.Duration("interval", s.task.Interval()))
	s.task.Start(ctx)
}

// Stop halts the sweeper and waits for an in-flight sweep.
func (s *IdleSweeper) Stop() {
	s.task.Stop()
	s.logger.Info("Idle sweeper stopped", zap.Int64("sweeps", s.task.Ticks()))
}

// Sweeps returns the number of completed sweeps.
func (s *IdleSweeper) Sweeps() int64 {
	return s.task.Ticks()
}

func (s *IdleSweeper) sweep(ctx context.Context) {
	start := time.Now()
	snapshots := s.agg.SweepIdle()

	idle := 0
	for _, snap := range snapshots {
		if snap.State.IsIdle {
			idle++
		}
	}
	s.logger.Debug("Idle sweep completed",
		zap.Int("subjects", len(snapshots)),
		zap.Int("idle", idle),
		zap.Duration("duration", time.Since(start)))

	if s.AfterSweep != nil && len(snapshots) > 0 {
		s.AfterSweep(ctx, snapshots)
	}
}
