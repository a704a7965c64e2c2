package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"fabula/internal/engine"
	"fabula/internal/recording"
	"fabula/internal/services"
	"fabula/internal/testsupport"
	"fabula/internal/tts"
)

type fakeRenderer struct {
	calls []tts.Request
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, req tts.Request) (tts.Rendered, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return tts.Rendered{}, f.err
	}
	return tts.Rendered{
		AudioRef: fmt.Sprintf("audio://rendered/%d", len(f.calls)),
		Duration: 4.5,
	}, nil
}

func newEngine(t *testing.T, renderer tts.Renderer, clock func() time.Time) (*engine.Engine, *recording.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	eng, err := engine.New(engine.Options{
		Config: cfg,
		Store:  store,
		TTS:    renderer,
		Clock:  clock,
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return eng, store
}

func TestNarrateChoiceFreshPath(t *testing.T) {
	renderer := &fakeRenderer{}
	eng, _ := newEngine(t, renderer, nil)

	ctx := context.Background()
	narration, err := eng.NarrateChoice(ctx, "sess-1", []string{"enter the cave"}, "You step into darkness.")
	if err != nil {
		t.Fatalf("NarrateChoice failed: %v", err)
	}
	if narration.Source != engine.SourceFresh {
		t.Fatalf("expected fresh narration, got %s", narration.Source)
	}
	if narration.Recording.Status != recording.StatusRecording {
		t.Fatalf("expected active recording, got %s", narration.Recording.Status)
	}
	if len(narration.Segments) != 1 || narration.Segments[0].Index != 0 {
		t.Fatalf("expected single segment at index 0, got %#v", narration.Segments)
	}
	if narration.Segments[0].ChoiceID != "enter the cave" {
		t.Fatalf("unexpected choice id %q", narration.Segments[0].ChoiceID)
	}
	if len(renderer.calls) != 1 || renderer.calls[0].Text != "You step into darkness." {
		t.Fatalf("unexpected renderer calls %#v", renderer.calls)
	}
}

func TestNarrateChoiceContinuesActiveRecording(t *testing.T) {
	renderer := &fakeRenderer{}
	eng, _ := newEngine(t, renderer, nil)

	ctx := context.Background()
	first, err := eng.NarrateChoice(ctx, "sess-1", []string{"a"}, "Scene one.")
	if err != nil {
		t.Fatalf("first NarrateChoice failed: %v", err)
	}
	second, err := eng.NarrateChoice(ctx, "sess-1", []string{"a"}, "Scene two.")
	if err != nil {
		t.Fatalf("second NarrateChoice failed: %v", err)
	}
	if second.Recording.ID != first.Recording.ID {
		t.Fatal("expected the same recording to keep the writer slot")
	}
	if second.Segments[0].Index != 1 {
		t.Fatalf("expected segment 1, got %d", second.Segments[0].Index)
	}
}

func TestNarrateChoiceServesStoredExactMatch(t *testing.T) {
	renderer := &fakeRenderer{}
	eng, store := newEngine(t, renderer, nil)

	ctx := context.Background()
	fresh, err := eng.NarrateChoice(ctx, "sess-1", []string{"a"}, "Scene one.")
	if err != nil {
		t.Fatalf("NarrateChoice failed: %v", err)
	}
	report, err := eng.FinalizeRecording(ctx, fresh.Recording.ID)
	if err != nil {
		t.Fatalf("FinalizeRecording failed: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected clean finalize, got %v", report.Issues)
	}

	stored, err := eng.NarrateChoice(ctx, "sess-1", []string{"a"}, "ignored")
	if err != nil {
		t.Fatalf("stored NarrateChoice failed: %v", err)
	}
	if stored.Source != engine.SourceStored {
		t.Fatalf("expected stored narration, got %s", stored.Source)
	}
	if len(stored.Segments) != 1 {
		t.Fatalf("expected stored segments, got %#v", stored.Segments)
	}
	if len(renderer.calls) != 1 {
		t.Fatalf("expected no further rendering, got %d calls", len(renderer.calls))
	}

	updated, err := store.GetByID(ctx, fresh.Recording.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.PlayCount != 1 {
		t.Fatalf("expected play counter bumped, got %d", updated.PlayCount)
	}
}

func TestNarrateChoiceResumesInterrupted(t *testing.T) {
	renderer := &fakeRenderer{}
	eng, _ := newEngine(t, renderer, nil)

	ctx := context.Background()
	fresh, err := eng.NarrateChoice(ctx, "sess-1", []string{"a"}, "Scene one.")
	if err != nil {
		t.Fatalf("NarrateChoice failed: %v", err)
	}
	eng.MarkInterrupted(ctx, fresh.Recording.ID, 0, "browser closed")

	resumed, err := eng.NarrateChoice(ctx, "sess-1", []string{"a"}, "Scene two.")
	if err != nil {
		t.Fatalf("resume NarrateChoice failed: %v", err)
	}
	if resumed.Recording.ID != fresh.Recording.ID {
		t.Fatal("expected the interrupted recording to resume")
	}
	if resumed.Segments[0].Index != 1 {
		t.Fatalf("expected append after existing segment, got %d", resumed.Segments[0].Index)
	}
}

func TestNarrateChoiceReclaimsStaleWriter(t *testing.T) {
	renderer := &fakeRenderer{}
	now := time.Now()
	clock := func() time.Time { return now }
	eng, _ := newEngine(t, renderer, func() time.Time { return clock() })

	ctx := context.Background()
	fresh, err := eng.NarrateChoice(ctx, "sess-1", []string{"a"}, "Scene one.")
	if err != nil {
		t.Fatalf("NarrateChoice failed: %v", err)
	}

	// Advance past the stale threshold without a heartbeat: the abandoned
	// writer is reclaimed and the recording resumed instead of blocking.
	clock = func() time.Time { return now.Add(time.Hour) }
	after, err := eng.NarrateChoice(ctx, "sess-1", []string{"a"}, "Scene two.")
	if err != nil {
		t.Fatalf("NarrateChoice after staleness failed: %v", err)
	}
	if after.Recording.ID != fresh.Recording.ID {
		t.Fatal("expected stale recording reclaimed and resumed")
	}
	if after.Recording.Status != recording.StatusRecording {
		t.Fatalf("expected active recording, got %s", after.Recording.Status)
	}
}

func TestNarrateChoiceWithoutRenderer(t *testing.T) {
	eng, _ := newEngine(t, nil, nil)

	if _, err := eng.NarrateChoice(context.Background(), "sess-1", []string{"a"}, "text"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation without renderer, got %v", err)
	}
}

func TestNarrateChoiceRendererFailureIsTransient(t *testing.T) {
	renderer := &fakeRenderer{err: errors.New("synthesis backend down")}
	eng, _ := newEngine(t, renderer, nil)

	if _, err := eng.NarrateChoice(context.Background(), "sess-1", []string{"a"}, "text"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestNarrateChoiceRejectsInvalidPath(t *testing.T) {
	renderer := &fakeRenderer{}
	eng, _ := newEngine(t, renderer, nil)

	if _, err := eng.NarrateChoice(context.Background(), "sess-1", []string{""}, "text"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty choice, got %v", err)
	}
}

func TestStartRecordingDerivesParent(t *testing.T) {
	eng, _ := newEngine(t, nil, nil)

	ctx := context.Background()
	rec, err := eng.StartRecording(ctx, "sess-1", []string{"a", "b"})
	if err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if rec.PathKey != "a/b" || rec.ParentKey != "a" || rec.LeafChoice != "b" {
		t.Fatalf("unexpected recording %#v", rec)
	}

	root, err := eng.StartRecording(ctx, "sess-1", nil)
	if err != nil {
		t.Fatalf("root StartRecording failed: %v", err)
	}
	if root.PathKey != "~root" || root.ParentKey != "" {
		t.Fatalf("unexpected root recording %#v", root)
	}

	got, _, err := eng.GetRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording failed: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("unexpected recording %#v", got)
	}
}

func TestMarkInterruptedNeverFailsCaller(t *testing.T) {
	eng, _ := newEngine(t, nil, nil)

	// Unknown recording: the failure is logged, not surfaced.
	eng.MarkInterrupted(context.Background(), "missing", 0, "whatever")
}

func TestRecordedChoicesAndAvailability(t *testing.T) {
	renderer := &fakeRenderer{}
	eng, _ := newEngine(t, renderer, nil)

	ctx := context.Background()
	fresh, err := eng.NarrateChoice(ctx, "sess-1", []string{"a"}, "Scene one.")
	if err != nil {
		t.Fatalf("NarrateChoice failed: %v", err)
	}
	if _, err := eng.FinalizeRecording(ctx, fresh.Recording.ID); err != nil {
		t.Fatalf("FinalizeRecording failed: %v", err)
	}

	ok, err := eng.HasRecordingForChoice(ctx, "sess-1", nil, "a")
	if err != nil {
		t.Fatalf("HasRecordingForChoice failed: %v", err)
	}
	if !ok {
		t.Fatal("expected recorded choice")
	}

	choices, err := eng.RecordedChoices(ctx, "sess-1", nil)
	if err != nil {
		t.Fatalf("RecordedChoices failed: %v", err)
	}
	if len(choices) != 1 {
		t.Fatalf("expected one recorded choice, got %#v", choices)
	}
	if _, found := choices["a"]; !found {
		t.Fatalf("missing choice a: %#v", choices)
	}
}

func TestNarrateChoiceAnnotatesLogs(t *testing.T) {
	renderer := &fakeRenderer{}
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	var logs bytes.Buffer
	eng, err := engine.New(engine.Options{
		Config: cfg,
		Store:  store,
		TTS:    renderer,
		Logger: slog.New(slog.NewJSONHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}

	ctx := context.Background()
	narration, err := eng.NarrateChoice(ctx, "sess-1", []string{"a"}, "Scene one.")
	if err != nil {
		t.Fatalf("NarrateChoice failed: %v", err)
	}

	out := logs.String()
	for _, want := range []string{
		`"session_id":"sess-1"`,
		fmt.Sprintf(`"recording_id":%q`, narration.Recording.ID),
		fmt.Sprintf(`"path_key":%q`, narration.Recording.PathKey),
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s:\n%s", want, out)
		}
	}
}
