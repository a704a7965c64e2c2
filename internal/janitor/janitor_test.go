package janitor_test

import (
	"context"
	"testing"

	"fabula/internal/janitor"
	"fabula/internal/recording"
	"fabula/internal/testsupport"
)

func TestSweepOnceReclaimsStale(t *testing.T) {
	// A negative threshold pushes the cutoff into the future, so every
	// active recording counts as stale regardless of timing.
	cfg := testsupport.NewConfig(t, testsupport.WithStaleRecordingSeconds(-1))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec := testsupport.StartRecording(t, store, "sess-1", "intro", "~root", "intro")
	testsupport.CompleteRecording(t, store, "sess-1", "intro/forest", "intro", "forest", 1)

	j, err := janitor.New(cfg, store, nil)
	if err != nil {
		t.Fatalf("janitor.New failed: %v", err)
	}

	count, err := j.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one reclaimed recording, got %d", count)
	}

	updated, err := store.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != recording.StatusInterrupted {
		t.Fatalf("expected interrupted, got %s", updated.Status)
	}
	if updated.InterruptionReason != recording.ReasonStale {
		t.Fatalf("expected stale reason, got %q", updated.InterruptionReason)
	}

	// A second sweep finds nothing left to reclaim.
	count, err = j.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("second SweepOnce failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected nothing reclaimed, got %d", count)
	}
}

func TestSweepOnceLeavesFreshRecordings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec := testsupport.StartRecording(t, store, "sess-1", "intro", "~root", "intro")

	j, err := janitor.New(cfg, store, nil)
	if err != nil {
		t.Fatalf("janitor.New failed: %v", err)
	}
	count, err := j.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected fresh recording untouched, got %d reclaimed", count)
	}

	updated, _ := store.GetByID(ctx, rec.ID)
	if updated.Status != recording.StatusRecording {
		t.Fatalf("expected recording still active, got %s", updated.Status)
	}
}

func TestStartEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first, err := janitor.New(cfg, store, nil)
	if err != nil {
		t.Fatalf("janitor.New failed: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Stop()
	if !first.Running() {
		t.Fatal("expected janitor running")
	}

	second, err := janitor.New(cfg, store, nil)
	if err != nil {
		t.Fatalf("janitor.New failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	j, err := janitor.New(cfg, store, nil)
	if err != nil {
		t.Fatalf("janitor.New failed: %v", err)
	}
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	j.Stop()
	j.Stop()
	if j.Running() {
		t.Fatal("expected janitor stopped")
	}

	// The lock is free again after a stop.
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	j.Stop()
}
