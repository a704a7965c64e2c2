package engine

import (
	"context"
	"errors"

	"fabula/internal/logging"
	"fabula/internal/pathmatch"
	"fabula/internal/recording"
	"fabula/internal/services"
	"fabula/internal/tts"
)

// Source says where a narration came from.
type Source string

const (
	// SourceStored means the path was fully covered by a complete recording
	// and the listener is served the stored segments.
	SourceStored Source = "stored"
	// SourceFresh means the path diverged from stored narration and a new
	// segment was synthesized and appended.
	SourceFresh Source = "fresh"
)

// Narration is the outcome of narrating one choice.
type Narration struct {
	Source    Source
	Recording *recording.Recording
	// Segments holds the full stored sequence for SourceStored, or the
	// single freshly appended segment for SourceFresh.
	Segments []recording.Segment
	Match    pathmatch.Match
}

// NarrateChoice narrates the scene reached by the given choice path. When a
// complete recording covers the exact path, its stored segments are served
// and the play counter bumped. Otherwise the engine ensures it holds the
// writer slot for the path, synthesizes the scene text, and appends the
// result as the next segment. A listener is never routed into a recording
// that is still being written or was interrupted: anything short of a
// complete exact match falls through to fresh narration.
func (e *Engine) NarrateChoice(ctx context.Context, sessionID string, path []string, sceneText string) (*Narration, error) {
	ctx = services.WithSessionID(ctx, sessionID)

	match, err := e.matcher.FindLongestMatch(ctx, sessionID, path)
	if err != nil {
		return nil, err
	}

	if match.IsExactMatch {
		ctx = services.WithRecordingID(ctx, match.Recording.ID)
		segments, err := e.store.Segments(ctx, match.Recording.ID)
		if err != nil {
			return nil, err
		}
		e.playback.RecordPlay(ctx, match.Recording.ID)
		logging.WithContext(ctx, e.log).Info("serving stored narration",
			logging.Int("segments", len(segments)),
		)
		return &Narration{
			Source:    SourceStored,
			Recording: match.Recording,
			Segments:  segments,
			Match:     match,
		}, nil
	}

	if e.tts == nil {
		return nil, services.Wrap(services.ErrValidation, "engine", "narrate",
			"no renderer configured and path is not fully recorded", nil)
	}
	if sceneText == "" {
		return nil, services.Wrap(services.ErrValidation, "engine", "narrate", "scene text is required", nil)
	}

	rec, err := e.ensureActiveRecording(ctx, sessionID, path)
	if err != nil {
		return nil, err
	}
	ctx = services.WithRecordingID(ctx, rec.ID)
	ctx = services.WithPathKey(ctx, rec.PathKey)

	rendered, err := e.tts.Render(ctx, tts.Request{Text: sceneText})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "engine", "narrate", "render scene", err)
	}

	choiceID := ""
	if len(path) > 0 {
		choiceID = path[len(path)-1]
	}
	updated, err := e.store.AppendSegment(ctx, rec.ID, rec.LastSegmentIndex+1, rendered.Duration, rendered.AudioRef, choiceID)
	if err != nil {
		return nil, err
	}
	segment, err := e.store.SegmentByIndex(ctx, rec.ID, updated.LastSegmentIndex)
	if err != nil {
		return nil, err
	}

	logging.WithContext(ctx, e.log).Info("appended fresh narration",
		logging.Int(logging.FieldSegmentIndex, segment.Index),
	)
	return &Narration{
		Source:    SourceFresh,
		Recording: updated,
		Segments:  []recording.Segment{*segment},
		Match:     match,
	}, nil
}

// StartRecording opens the writer slot for a choice path, reclaiming a stale
// holder first. The returned recording is in recording state with an empty
// segment sequence.
func (e *Engine) StartRecording(ctx context.Context, sessionID string, path []string) (*recording.Recording, error) {
	key, err := e.codec.Encode(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "engine", "start recording", "encode path", err)
	}
	return e.startAtKey(ctx, sessionID, key, path)
}

// AppendSegment appends pre-rendered narration to an active recording.
func (e *Engine) AppendSegment(ctx context.Context, recordingID string, index int, duration float64, audioRef, choiceID string) (*recording.Recording, error) {
	return e.store.AppendSegment(ctx, recordingID, index, duration, audioRef, choiceID)
}

// ResumeRecording picks an interrupted recording back up, reclaiming a stale
// writer on its path first.
func (e *Engine) ResumeRecording(ctx context.Context, recordingID string) (*recording.Recording, error) {
	rec, err := e.store.GetByID(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "engine", "resume recording", recordingID, nil)
	}
	if _, err := e.store.ReclaimStalePath(ctx, rec.SessionID, rec.PathKey, e.staleCutoff()); err != nil {
		return nil, err
	}
	return e.store.Resume(ctx, recordingID)
}

// ensureActiveRecording returns the recording holding the writer slot for
// the path, creating or resuming one as needed. Order matters: a stale
// holder is reclaimed first so a crashed writer cannot block the path, then
// a live holder is reused, then the newest interruption on the exact path is
// resumed, and only then is a fresh recording started.
func (e *Engine) ensureActiveRecording(ctx context.Context, sessionID string, path []string) (*recording.Recording, error) {
	key, err := e.codec.Encode(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "engine", "narrate", "encode path", err)
	}
	ctx = services.WithPathKey(ctx, key)

	if reclaimed, err := e.store.ReclaimStalePath(ctx, sessionID, key, e.staleCutoff()); err != nil {
		return nil, err
	} else if reclaimed {
		logging.WithContext(ctx, e.log).Info("reclaimed stale recording")
	}

	if active, err := e.store.FindByPath(ctx, sessionID, key, recording.StatusRecording); err != nil {
		return nil, err
	} else if active != nil {
		return active, nil
	}

	if interrupted, err := e.store.FindByPath(ctx, sessionID, key, recording.StatusInterrupted); err != nil {
		return nil, err
	} else if interrupted != nil {
		resumed, err := e.store.Resume(ctx, interrupted.ID)
		if err == nil {
			return resumed, nil
		}
		if !errors.Is(err, services.ErrConflict) {
			return nil, err
		}
		// Another writer raced us onto the path; fall through and reuse it.
		if active, findErr := e.store.FindByPath(ctx, sessionID, key, recording.StatusRecording); findErr == nil && active != nil {
			return active, nil
		}
		return nil, err
	}

	return e.startAtKey(ctx, sessionID, key, path)
}

func (e *Engine) startAtKey(ctx context.Context, sessionID, key string, path []string) (*recording.Recording, error) {
	if _, err := e.store.ReclaimStalePath(ctx, sessionID, key, e.staleCutoff()); err != nil {
		return nil, err
	}

	parentKey := ""
	leafChoice := ""
	if len(path) > 0 {
		var err error
		parentKey, err = e.codec.ParentKey(key)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "engine", "start recording", "derive parent", err)
		}
		leafChoice = path[len(path)-1]
	}

	rec, err := e.store.Start(ctx, sessionID, key, parentKey, leafChoice)
	if err != nil {
		if errors.Is(err, services.ErrConflict) {
			// The slot was taken between reclaim and start; reuse the holder.
			if active, findErr := e.store.FindByPath(ctx, sessionID, key, recording.StatusRecording); findErr == nil && active != nil {
				return active, nil
			}
		}
		return nil, err
	}
	return rec, nil
}
