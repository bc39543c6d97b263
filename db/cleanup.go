package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cognitive_backend/core"
)

// CleanupResult contains statistics about a cleanup run.
type CleanupResult struct {
	PacketsDeleted         int64
	ClassificationsDeleted int64
	Duration               time.Duration
}

// TotalDeleted is the sum of all deleted rows.
func (r CleanupResult) TotalDeleted() int64 {
	return r.PacketsDeleted + r.ClassificationsDeleted
}

// retentionColumns maps each retention-managed table to its unix-ms column.
var retentionColumns = []struct {
	table  string
	column string
}{
	{"telemetry_packets", "received_at"},
	{"subject_classifications", "created_at"},
}

// Cleanup deletes rows older than before from every retention-managed
// table in one transaction.
func (d *Database) Cleanup(ctx context.Context, before time.Time) (CleanupResult, error) {
	start := time.Now()
	var result CleanupResult

	conn := d.DB()
	if conn == nil {
		return result, ErrClosed
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := make(map[string]int64, len(retentionColumns))
	for _, rc := range retentionColumns {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %s < ?", rc.table, rc.column),
			before.UnixMilli())
		if err != nil {
			return result, fmt.Errorf("failed to delete from %s: %w", rc.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("failed to get rows affected for %s: %w", rc.table, err)
		}
		deleted[rc.table] = n
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result.PacketsDeleted = deleted["telemetry_packets"]
	result.ClassificationsDeleted = deleted["subject_classifications"]
	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig holds configuration for NewCleanupScheduler.
type CleanupSchedulerConfig struct {
	// RetentionDays is the number of days to retain rows
	RetentionDays int
	// Interval is how often to run cleanup
	Interval time.Duration
	// OnCleanup is called after each run (optional)
	OnCleanup func(result CleanupResult, err error)
}

// DefaultCleanupSchedulerConfig keeps 30 days and runs daily.
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		RetentionDays: 30,
		Interval:      24 * time.Hour,
	}
}

// NewCleanupScheduler returns a stopped task that runs Cleanup immediately
// on Start and then every Interval.
//
// Example:
//
//	task := db.NewCleanupScheduler(database, db.DefaultCleanupSchedulerConfig(), nil, logger)
//	task.Start(ctx)
//	defer task.Stop()
func NewCleanupScheduler(d *Database, config CleanupSchedulerConfig, clock core.Clock, logger *zap.Logger) *core.PeriodicTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	if config.RetentionDays < 1 {
		config.RetentionDays = 1
	}
	now := clock.OrSystem()
	retention := time.Duration(config.RetentionDays) * 24 * time.Hour

	task := core.NewPeriodicTask("db-cleanup", config.Interval, func(ctx context.Context) {
		result, err := d.Cleanup(ctx, now().Add(-retention))
		if err != nil {
			logger.Error("Database cleanup failed", zap.Error(err))
		} else if result.TotalDeleted() > 0 {
			logger.Info("Database cleanup completed",
				zap.Int64("packets_deleted", result.PacketsDeleted),
				zap.Int64("classifications_deleted", result.ClassificationsDeleted),
				zap.Duration("duration", result.Duration))
		}
		if config.OnCleanup != nil {
			config.OnCleanup(result, err)
		}
	})
	task.RunImmediately = true
	return task
}
