// Package recovery inspects interrupted recordings and works out how much of
// each one is still trustworthy. Recovery never mutates segment data: a
// corrupt tail is excluded from the usable range and left in place for
// inspection, and the caller decides whether to resume or abandon.
package recovery

import (
	"context"
	"log/slog"

	"fabula/internal/logging"
	"fabula/internal/recording"
)

// Store is the subset of the recording store recovery reads from.
type Store interface {
	ListInterrupted(ctx context.Context, sessionID string) ([]*recording.Recording, error)
	Segments(ctx context.Context, recordingID string) ([]recording.Segment, error)
	Validate(ctx context.Context, recordingID string) (*recording.Report, error)
}

// Info describes the recoverable state of one interrupted recording.
// LastValidSegment is the index of the last segment in the trustworthy
// prefix, or -1 when no segment survived. ValidSegments holds that prefix in
// order. ClientReported carries the last-known-good index the interrupting
// client attested to, when one was recorded. Issues carries everything
// validation found, including findings on segments past the trustworthy
// prefix.
type Info struct {
	Recording        *recording.Recording
	LastValidSegment int
	ValidSegments    []recording.Segment
	ClientReported   *int
	Issues           []recording.Issue
}

// Resumable reports whether any narrated audio survived the interruption.
func (i *Info) Resumable() bool {
	return i != nil && i.LastValidSegment >= 0
}

// Manager inspects interrupted recordings for a session.
type Manager struct {
	store Store
	log   *slog.Logger
}

// New builds a manager over the given store.
func New(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{store: store, log: logger}
}

// RecoverInterrupted inspects the most recently interrupted recording in the
// session and returns what survived of it. It returns nil, nil when the
// session has nothing to recover. The call only reads, so repeating it
// without intervening writes yields the same answer.
func (m *Manager) RecoverInterrupted(ctx context.Context, sessionID string) (*Info, error) {
	interrupted, err := m.store.ListInterrupted(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(interrupted) == 0 {
		return nil, nil
	}
	return m.inspect(ctx, interrupted[0])
}

// Inspect returns recovery info for one specific interrupted recording.
func (m *Manager) Inspect(ctx context.Context, rec *recording.Recording) (*Info, error) {
	return m.inspect(ctx, rec)
}

// ListInterrupted surfaces every interrupted recording in the session, newest
// first, for manual inspection. Older interruptions are retained rather than
// garbage-collected.
func (m *Manager) ListInterrupted(ctx context.Context, sessionID string) ([]*recording.Recording, error) {
	return m.store.ListInterrupted(ctx, sessionID)
}

func (m *Manager) inspect(ctx context.Context, rec *recording.Recording) (*Info, error) {
	report, err := m.store.Validate(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	segments, err := m.store.Segments(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	// The trustworthy prefix ends at the first contiguity break or the first
	// segment validation flagged. Everything before it is usable as-is.
	flagged := make(map[int]bool, len(report.Issues))
	for _, issue := range report.Issues {
		if issue.SegmentIndex >= 0 {
			flagged[issue.SegmentIndex] = true
		}
	}

	info := &Info{
		Recording:        rec,
		LastValidSegment: -1,
		Issues:           report.Issues,
	}
	for i, segment := range segments {
		if segment.Index != i || flagged[segment.Index] {
			break
		}
		info.ValidSegments = append(info.ValidSegments, segment)
		info.LastValidSegment = segment.Index
	}

	// The interrupting client may have attested to a last-known-good index
	// below what validation can see. A segment the client never confirmed
	// receiving cannot be trusted even when its row and audio check out, so
	// the prefix shrinks to the client's word.
	if rec.LastKnownSegmentIndex != nil {
		reported := *rec.LastKnownSegmentIndex
		info.ClientReported = &reported
		if reported < info.LastValidSegment {
			info.LastValidSegment = reported
			if reported < 0 {
				info.ValidSegments = nil
			} else {
				info.ValidSegments = info.ValidSegments[:reported+1]
			}
		}
	}

	m.log.Info("inspected interrupted recording",
		logging.String(logging.FieldRecordingID, rec.ID),
		logging.String(logging.FieldPathKey, rec.PathKey),
		logging.Int("segments", len(segments)),
		logging.Int("valid_segments", len(info.ValidSegments)),
		logging.Int("issues", len(report.Issues)),
	)
	return info, nil
}
