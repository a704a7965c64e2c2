package recording

import (
	"context"
	"fmt"
	"math"

	"fabula/internal/services"
)

// AudioResolver confirms that a segment's audio reference still resolves in
// the external audio store. The engine never touches audio bytes itself.
type AudioResolver interface {
	Resolve(ctx context.Context, audioRef string) (bool, error)
}

// IssueKind classifies validation findings so recovery can branch on them.
type IssueKind string

const (
	IssueGap             IssueKind = "index_gap"
	IssueBadDuration     IssueKind = "bad_duration"
	IssueUnresolvedAudio IssueKind = "unresolved_audio"
	IssueDurationDrift   IssueKind = "duration_drift"
)

// Issue is one validation finding tied to a segment index (or -1 for
// recording-level findings).
type Issue struct {
	Kind         IssueKind
	SegmentIndex int
	Detail       string
}

func (i Issue) String() string {
	if i.SegmentIndex < 0 {
		return fmt.Sprintf("%s: %s", i.Kind, i.Detail)
	}
	return fmt.Sprintf("%s at segment %d: %s", i.Kind, i.SegmentIndex, i.Detail)
}

// Report is the outcome of a validation pass. Validation never fails the
// caller on dirty data; it reports and lets the caller decide.
type Report struct {
	Valid  bool
	Issues []Issue
}

func (r *Report) add(kind IssueKind, index int, detail string) {
	r.Issues = append(r.Issues, Issue{Kind: kind, SegmentIndex: index, Detail: detail})
}

// Validate walks a recording's segments in index order and confirms the
// contiguity, duration, and audio-reference invariants. Infrastructure
// failures return an error; integrity findings only populate the report.
func (s *Store) Validate(ctx context.Context, recordingID string) (*Report, error) {
	rec, err := s.GetByID(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "recording", "validate", recordingID, nil)
	}

	segments, err := s.Segments(ctx, recordingID)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var segmentSum float64
	for i, segment := range segments {
		// The segments primary key rules out duplicate indices, so any
		// mismatch against the walk position is a gap.
		if segment.Index != i {
			report.add(IssueGap, segment.Index, fmt.Sprintf("expected index %d", i))
		}
		if segment.Duration <= 0 {
			report.add(IssueBadDuration, segment.Index, fmt.Sprintf("duration %.3f", segment.Duration))
		}
		if segment.AudioRef == "" {
			report.add(IssueUnresolvedAudio, segment.Index, "empty audio reference")
		} else if s.resolver != nil {
			ok, err := s.resolver.Resolve(ctx, segment.AudioRef)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, "recording", "validate",
					fmt.Sprintf("resolve audio for segment %d", segment.Index), err)
			}
			if !ok {
				report.add(IssueUnresolvedAudio, segment.Index, segment.AudioRef)
			}
		}
		segmentSum += segment.Duration
	}

	if drift := math.Abs(segmentSum - rec.TotalDuration); drift > s.tolerance {
		report.add(IssueDurationDrift, -1,
			fmt.Sprintf("segments sum to %.3fs, recording declares %.3fs", segmentSum, rec.TotalDuration))
	}

	report.Valid = len(report.Issues) == 0
	return report, nil
}
