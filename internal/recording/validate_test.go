package recording

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fabula/internal/config"
	"fabula/internal/services"
)

type fakeResolver struct {
	missing map[string]bool
	err     error
}

func (f *fakeResolver) Resolve(_ context.Context, audioRef string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return !f.missing[audioRef], nil
}

func openValidateStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	store, err := Open(&cfg, opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedSegments(t *testing.T, store *Store, recordingID string, count int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		audioRef := fmt.Sprintf("audio://%s/%d", recordingID, i)
		choice := ""
		if i > 0 {
			choice = fmt.Sprintf("choice-%d", i)
		}
		if _, err := store.AppendSegment(ctx, recordingID, i, 4.0, audioRef, choice); err != nil {
			t.Fatalf("append segment %d: %v", i, err)
		}
	}
}

func TestValidateCleanRecording(t *testing.T) {
	store := openValidateStore(t)
	ctx := context.Background()
	rec, err := store.Start(ctx, "sess", "intro", "~root", "intro")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	seedSegments(t, store, rec.ID, 3)

	report, err := store.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected clean report, got %v", report.Issues)
	}
}

func TestValidateFindsIndexGap(t *testing.T) {
	store := openValidateStore(t)
	ctx := context.Background()
	rec, err := store.Start(ctx, "sess", "intro", "~root", "intro")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	seedSegments(t, store, rec.ID, 3)

	// Simulate on-disk corruption: remove the middle segment behind the
	// store's back, without touching totals.
	if _, err := store.db.Exec(
		`DELETE FROM segments WHERE recording_id = ? AND segment_index = 1`, rec.ID,
	); err != nil {
		t.Fatalf("corrupt segments: %v", err)
	}
	if _, err := store.db.Exec(
		`UPDATE recordings SET total_duration = 8.0 WHERE id = ?`, rec.ID,
	); err != nil {
		t.Fatalf("adjust total: %v", err)
	}

	report, err := store.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Valid {
		t.Fatal("expected dirty report")
	}
	if len(report.Issues) != 1 || report.Issues[0].Kind != IssueGap {
		t.Fatalf("expected a single gap issue, got %v", report.Issues)
	}
	if report.Issues[0].SegmentIndex != 2 {
		t.Fatalf("expected gap reported at index 2, got %d", report.Issues[0].SegmentIndex)
	}
}

func TestValidateFindsBadDuration(t *testing.T) {
	store := openValidateStore(t)
	ctx := context.Background()
	rec, err := store.Start(ctx, "sess", "intro", "~root", "intro")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	seedSegments(t, store, rec.ID, 2)

	if _, err := store.db.Exec(
		`UPDATE segments SET duration = 0 WHERE recording_id = ? AND segment_index = 1`, rec.ID,
	); err != nil {
		t.Fatalf("corrupt duration: %v", err)
	}
	if _, err := store.db.Exec(
		`UPDATE recordings SET total_duration = 4.0 WHERE id = ?`, rec.ID,
	); err != nil {
		t.Fatalf("adjust total: %v", err)
	}

	report, err := store.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Valid {
		t.Fatal("expected dirty report")
	}
	found := false
	for _, issue := range report.Issues {
		if issue.Kind == IssueBadDuration && issue.SegmentIndex == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected bad-duration issue at index 1, got %v", report.Issues)
	}
}

func TestValidateFindsDurationDrift(t *testing.T) {
	store := openValidateStore(t)
	ctx := context.Background()
	rec, err := store.Start(ctx, "sess", "intro", "~root", "intro")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	seedSegments(t, store, rec.ID, 2)

	if _, err := store.db.Exec(
		`UPDATE recordings SET total_duration = 20.0 WHERE id = ?`, rec.ID,
	); err != nil {
		t.Fatalf("skew total: %v", err)
	}

	report, err := store.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Valid {
		t.Fatal("expected drift report")
	}
	if len(report.Issues) != 1 || report.Issues[0].Kind != IssueDurationDrift {
		t.Fatalf("expected a single drift issue, got %v", report.Issues)
	}
	if report.Issues[0].SegmentIndex != -1 {
		t.Fatalf("drift is recording-level, got index %d", report.Issues[0].SegmentIndex)
	}
}

func TestValidateToleratesSmallDrift(t *testing.T) {
	store := openValidateStore(t)
	ctx := context.Background()
	rec, err := store.Start(ctx, "sess", "intro", "~root", "intro")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	seedSegments(t, store, rec.ID, 2)

	// Within the configured half-second tolerance.
	if _, err := store.db.Exec(
		`UPDATE recordings SET total_duration = 8.3 WHERE id = ?`, rec.ID,
	); err != nil {
		t.Fatalf("skew total: %v", err)
	}

	report, err := store.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected drift within tolerance to pass, got %v", report.Issues)
	}
}

func TestValidateChecksAudioResolution(t *testing.T) {
	resolver := &fakeResolver{missing: map[string]bool{}}
	store := openValidateStore(t, WithAudioResolver(resolver))
	ctx := context.Background()
	rec, err := store.Start(ctx, "sess", "intro", "~root", "intro")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	seedSegments(t, store, rec.ID, 3)
	resolver.missing[fmt.Sprintf("audio://%s/2", rec.ID)] = true

	report, err := store.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Valid {
		t.Fatal("expected unresolved-audio report")
	}
	if len(report.Issues) != 1 || report.Issues[0].Kind != IssueUnresolvedAudio {
		t.Fatalf("expected a single unresolved-audio issue, got %v", report.Issues)
	}
	if report.Issues[0].SegmentIndex != 2 {
		t.Fatalf("expected issue at index 2, got %d", report.Issues[0].SegmentIndex)
	}
}

func TestValidateResolverFailureIsTransient(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("storage unavailable")}
	store := openValidateStore(t, WithAudioResolver(resolver))
	ctx := context.Background()
	rec, err := store.Start(ctx, "sess", "intro", "~root", "intro")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	seedSegments(t, store, rec.ID, 1)

	if _, err := store.Validate(ctx, rec.ID); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestValidateUnknownRecording(t *testing.T) {
	store := openValidateStore(t)
	if _, err := store.Validate(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
