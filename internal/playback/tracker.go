// Package playback tracks listener progress through complete recordings.
// Position updates are last-write-wins and deliberately non-monotonic, since
// a listener scrubbing backwards is a normal event, not corruption.
package playback

import (
	"context"
	"log/slog"

	"fabula/internal/logging"
	"fabula/internal/recording"
)

// Store is the subset of the recording store the tracker persists through.
type Store interface {
	StartPlayback(ctx context.Context, recordingID, userID string) (*recording.PlaybackSession, error)
	GetPlayback(ctx context.Context, id string) (*recording.PlaybackSession, error)
	UpdatePlaybackPosition(ctx context.Context, id string, segmentIndex int, positionSeconds float64) error
	CompletePlayback(ctx context.Context, id string) error
	ListPlaybackByRecording(ctx context.Context, recordingID string) ([]*recording.PlaybackSession, error)
	RecordPlay(ctx context.Context, recordingID string) error
}

// Tracker manages playback sessions.
type Tracker struct {
	store Store
	log   *slog.Logger
}

// New builds a tracker over the given store.
func New(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tracker{store: store, log: logger}
}

// Start opens a playback session against a complete recording. Starting
// against anything else reports services.ErrNotFound, since only complete
// recordings are ever served to listeners.
func (t *Tracker) Start(ctx context.Context, recordingID, userID string) (*recording.PlaybackSession, error) {
	return t.store.StartPlayback(ctx, recordingID, userID)
}

// Get fetches a playback session, or nil when it does not exist.
func (t *Tracker) Get(ctx context.Context, id string) (*recording.PlaybackSession, error) {
	return t.store.GetPlayback(ctx, id)
}

// UpdatePosition moves the session to the given segment and offset.
func (t *Tracker) UpdatePosition(ctx context.Context, id string, segmentIndex int, positionSeconds float64) error {
	return t.store.UpdatePlaybackPosition(ctx, id, segmentIndex, positionSeconds)
}

// Complete marks the session finished. Completing twice is a no-op.
func (t *Tracker) Complete(ctx context.Context, id string) error {
	return t.store.CompletePlayback(ctx, id)
}

// ListByRecording returns every playback session against a recording.
func (t *Tracker) ListByRecording(ctx context.Context, recordingID string) ([]*recording.PlaybackSession, error) {
	return t.store.ListPlaybackByRecording(ctx, recordingID)
}

// RecordPlay bumps the recording's play counter. The counter is advisory, so
// a failed increment is logged and swallowed rather than failing playback.
func (t *Tracker) RecordPlay(ctx context.Context, recordingID string) {
	if err := t.store.RecordPlay(ctx, recordingID); err != nil {
		t.log.Warn("record play failed",
			logging.String(logging.FieldRecordingID, recordingID),
			logging.Error(err),
		)
	}
}
