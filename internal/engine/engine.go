// Package engine is the facade over the narration store and its satellite
// components. It owns the path codec, the index and matcher, recovery, and
// playback tracking, and exposes the operations the CLI and an embedding
// service program against.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fabula/internal/config"
	"fabula/internal/logging"
	"fabula/internal/pathindex"
	"fabula/internal/pathkey"
	"fabula/internal/pathmatch"
	"fabula/internal/playback"
	"fabula/internal/recording"
	"fabula/internal/recovery"
	"fabula/internal/services"
	"fabula/internal/tts"
)

// Options configures engine construction. Store and Config are required;
// TTS may be nil for read-only deployments, in which case narration of
// unrecorded paths fails with services.ErrValidation.
type Options struct {
	Config *config.Config
	Store  *recording.Store
	Logger *slog.Logger
	TTS    tts.Renderer
	Clock  func() time.Time
}

// Engine wires the components together.
type Engine struct {
	cfg      *config.Config
	store    *recording.Store
	codec    *pathkey.Codec
	index    *pathindex.Index
	matcher  *pathmatch.Matcher
	recovery *recovery.Manager
	playback *playback.Tracker
	tts      tts.Renderer
	log      *slog.Logger
	now      func() time.Time
}

// New builds an engine from its options.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	codec := pathkey.New(opts.Config.Engine.MaxChoiceLength)
	index := pathindex.New(codec, opts.Store)

	return &Engine{
		cfg:      opts.Config,
		store:    opts.Store,
		codec:    codec,
		index:    index,
		matcher:  pathmatch.New(index),
		recovery: recovery.New(opts.Store, logger),
		playback: playback.New(opts.Store, logger),
		tts:      opts.TTS,
		log:      logger,
		now:      now,
	}, nil
}

// Codec exposes the engine's path codec.
func (e *Engine) Codec() *pathkey.Codec {
	return e.codec
}

// staleCutoff is the heartbeat age beyond which an active recording is
// considered abandoned and its writer slot reclaimable.
func (e *Engine) staleCutoff() time.Time {
	return e.now().UTC().Add(-e.cfg.Engine.StaleRecordingTimeout())
}

// MatchPath returns the longest recorded prefix of the candidate path.
func (e *Engine) MatchPath(ctx context.Context, sessionID string, path []string) (pathmatch.Match, error) {
	return e.matcher.FindLongestMatch(ctx, sessionID, path)
}

// HasRecordingForChoice reports whether taking choiceID from the current
// path lands on stored narration.
func (e *Engine) HasRecordingForChoice(ctx context.Context, sessionID string, current []string, choiceID string) (bool, error) {
	return e.matcher.HasRecordingForChoice(ctx, sessionID, current, choiceID)
}

// RecordedChoices returns the recorded onward choices from the current path.
func (e *Engine) RecordedChoices(ctx context.Context, sessionID string, current []string) (map[string]recording.Summary, error) {
	return e.matcher.RecordedChoicesAt(ctx, sessionID, current)
}

// GetRecording fetches one recording with its segments.
func (e *Engine) GetRecording(ctx context.Context, id string) (*recording.Recording, []recording.Segment, error) {
	rec, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "engine", "get recording", id, nil)
	}
	segments, err := e.store.Segments(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rec, segments, nil
}

// GetSegment fetches one segment of a recording by index.
func (e *Engine) GetSegment(ctx context.Context, recordingID string, index int) (*recording.Segment, error) {
	return e.store.SegmentByIndex(ctx, recordingID, index)
}

// ListRecordings returns a session's recordings, optionally filtered by
// status.
func (e *Engine) ListRecordings(ctx context.Context, sessionID string, statuses ...recording.Status) ([]*recording.Recording, error) {
	return e.store.ListBySession(ctx, sessionID, statuses...)
}

// SessionStats summarizes a session's recordings by status.
func (e *Engine) SessionStats(ctx context.Context, sessionID string) (recording.SessionStats, error) {
	return e.store.Stats(ctx, sessionID)
}

// ValidateRecording runs the integrity checks and returns the structured
// report without changing any state.
func (e *Engine) ValidateRecording(ctx context.Context, id string) (*recording.Report, error) {
	return e.store.Validate(ctx, id)
}

// FinalizeRecording validates and completes an active recording. A dirty
// report is returned with a nil error and the recording stays active.
func (e *Engine) FinalizeRecording(ctx context.Context, id string) (*recording.Report, error) {
	return e.store.Finalize(ctx, id)
}

// DeleteRecording removes a recording and everything hanging off it.
func (e *Engine) DeleteRecording(ctx context.Context, id string) error {
	return e.store.Delete(ctx, id)
}

// MarkInterrupted records that the writer went away. The signal usually
// arrives on a best-effort channel, so failures are logged and swallowed
// rather than surfaced to a caller that has already disconnected.
func (e *Engine) MarkInterrupted(ctx context.Context, recordingID string, lastKnownIndex int, reason string) {
	ctx = services.WithRecordingID(ctx, recordingID)
	if err := e.store.MarkInterrupted(ctx, recordingID, lastKnownIndex, reason); err != nil {
		logging.WithContext(ctx, e.log).Warn("mark interrupted failed", logging.Error(err))
	}
}

// Heartbeat refreshes the liveness timestamp of an active recording.
func (e *Engine) Heartbeat(ctx context.Context, recordingID string) error {
	return e.store.Heartbeat(ctx, recordingID)
}

// RecoverInterrupted inspects the session's most recent interruption.
func (e *Engine) RecoverInterrupted(ctx context.Context, sessionID string) (*recovery.Info, error) {
	return e.recovery.RecoverInterrupted(ctx, sessionID)
}

// ListInterrupted surfaces a session's interrupted recordings, newest first.
func (e *Engine) ListInterrupted(ctx context.Context, sessionID string) ([]*recording.Recording, error) {
	return e.recovery.ListInterrupted(ctx, sessionID)
}

// Playback exposes the playback tracker.
func (e *Engine) Playback() *playback.Tracker {
	return e.playback
}

// RecordPlay bumps a recording's play counter, never failing the caller.
func (e *Engine) RecordPlay(ctx context.Context, recordingID string) {
	e.playback.RecordPlay(ctx, recordingID)
}

// Health reports database diagnostics.
func (e *Engine) Health(ctx context.Context) (recording.DatabaseHealth, error) {
	return e.store.CheckHealth(ctx)
}
