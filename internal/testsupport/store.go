package testsupport

import (
	"context"
	"fmt"
	"testing"

	"fabula/internal/config"
	"fabula/internal/recording"
)

// MustOpenStore opens a recording.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...recording.Option) *recording.Store {
	t.Helper()

	store, err := recording.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("recording.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// StartRecording creates an active recording for tests.
func StartRecording(t testing.TB, store *recording.Store, sessionID, pathKey, parentKey, leafChoice string) *recording.Recording {
	t.Helper()

	rec, err := store.Start(context.Background(), sessionID, pathKey, parentKey, leafChoice)
	if err != nil {
		t.Fatalf("store.Start: %v", err)
	}
	return rec
}

// AppendSegments appends n segments of the given duration in order.
func AppendSegments(t testing.TB, store *recording.Store, recordingID string, n int, duration float64) {
	t.Helper()

	for i := 0; i < n; i++ {
		choice := ""
		if i > 0 {
			choice = fmt.Sprintf("choice-%d", i)
		}
		if _, err := store.AppendSegment(context.Background(), recordingID, i, duration, audioRef(recordingID, i), choice); err != nil {
			t.Fatalf("store.AppendSegment(%d): %v", i, err)
		}
	}
}

// CompleteRecording starts a recording, appends n segments, and finalizes it.
func CompleteRecording(t testing.TB, store *recording.Store, sessionID, pathKey, parentKey, leafChoice string, n int) *recording.Recording {
	t.Helper()

	rec := StartRecording(t, store, sessionID, pathKey, parentKey, leafChoice)
	AppendSegments(t, store, rec.ID, n, 5.0)
	report, err := store.Finalize(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("store.Finalize: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected clean finalize, got issues %v", report.Issues)
	}
	finalized, err := store.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("store.GetByID: %v", err)
	}
	return finalized
}

func audioRef(recordingID string, index int) string {
	return fmt.Sprintf("audio://%s/%d", recordingID, index)
}
