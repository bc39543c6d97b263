package db

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"cognitive_backend/core"
)

func seedRetention(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	old := base.Add(-40 * 24 * time.Hour)

	for _, at := range []time.Time{old, old, base} {
		if _, err := repo.InsertPacket(ctx, PacketRecord{SessionID: "s", CognitiveState: "ON_TASK", Timestamp: at, ReceivedAt: at}); err != nil {
			t.Fatal(err)
		}
	}
	for _, at := range []time.Time{old, base} {
		if _, err := repo.InsertClassification(ctx, ClassificationRecord{SubjectID: "s", Productivity: "low", Risk: "low", CreatedAt: at}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCleanup(t *testing.T) {
	database := openTestDB(t)
	repo := NewRepository(database)
	seedRetention(t, repo)

	result, err := database.Cleanup(context.Background(), base.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if result.PacketsDeleted != 2 || result.ClassificationsDeleted != 1 || result.TotalDeleted() != 3 {
		t.Errorf("Cleanup() = %+v", result)
	}
	if n, _ := repo.CountPackets(context.Background()); n != 1 {
		t.Errorf("packets left = %d, want 1", n)
	}
}

func TestCleanup_Cancelled(t *testing.T) {
	database := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := database.Cleanup(ctx, base); err == nil {
		t.Error("Cleanup() with cancelled context should fail")
	}
}

func TestCleanupScheduler_RunsImmediately(t *testing.T) {
	database := openTestDB(t)
	seedRetention(t, NewRepository(database))

	done := make(chan CleanupResult, 1)
	cfg := DefaultCleanupSchedulerConfig()
	cfg.Interval = time.Hour
	cfg.OnCleanup = func(result CleanupResult, err error) {
		if err != nil {
			t.Errorf("cleanup error = %v", err)
		}
		done <- result
	}

	clock := core.NewManualClock(base)
	task := NewCleanupScheduler(database, cfg, clock.Clock(), zaptest.NewLogger(t))
	task.Start(context.Background())
	defer task.Stop()

	select {
	case result := <-done:
		if result.TotalDeleted() != 3 {
			t.Errorf("first run deleted %d, want 3", result.TotalDeleted())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not run immediately")
	}
}
