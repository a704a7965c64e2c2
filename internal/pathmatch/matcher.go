// Package pathmatch finds the longest recorded prefix of a choice path. The
// matcher sits between live story navigation and the path index: given the
// path a listener is walking, it answers how far stored narration can carry
// them before fresh narration has to take over.
package pathmatch

import (
	"context"

	"fabula/internal/pathindex"
	"fabula/internal/recording"
)

// Match describes how far a candidate path is covered by a complete
// recording. DivergenceIndex is the position of the first choice not covered
// by MatchedPath, so RemainingChoices = candidate[DivergenceIndex:]. When no
// prefix is recorded at all, Recording is nil and DivergenceIndex is 0.
type Match struct {
	MatchedPath      []string
	Recording        *recording.Recording
	DivergenceIndex  int
	RemainingChoices []string
	IsExactMatch     bool
}

// Matcher resolves candidate paths against the index.
type Matcher struct {
	index *pathindex.Index
}

// New builds a matcher over the given index.
func New(index *pathindex.Index) *Matcher {
	return &Matcher{index: index}
}

// FindLongestMatch returns the longest recorded prefix of candidate. It
// probes prefixes longest first, so the walk costs one point lookup per
// depth level in the worst case.
func (m *Matcher) FindLongestMatch(ctx context.Context, sessionID string, candidate []string) (Match, error) {
	for k := len(candidate); k >= 0; k-- {
		prefix := candidate[:k]
		rec, err := m.index.Exists(ctx, sessionID, prefix)
		if err != nil {
			return Match{}, err
		}
		if rec == nil {
			continue
		}
		matched := make([]string, k)
		copy(matched, prefix)
		remaining := make([]string, len(candidate)-k)
		copy(remaining, candidate[k:])
		return Match{
			MatchedPath:      matched,
			Recording:        rec,
			DivergenceIndex:  k,
			RemainingChoices: remaining,
			IsExactMatch:     k == len(candidate),
		}, nil
	}

	remaining := make([]string, len(candidate))
	copy(remaining, candidate)
	return Match{RemainingChoices: remaining}, nil
}

// HasRecordingForChoice reports whether taking choiceID from the current
// path lands on a complete recording.
func (m *Matcher) HasRecordingForChoice(ctx context.Context, sessionID string, current []string, choiceID string) (bool, error) {
	next := make([]string, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, choiceID)
	rec, err := m.index.Exists(ctx, sessionID, next)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// RecordedChoicesAt returns the recorded onward choices from the current
// path, keyed by choice identifier.
func (m *Matcher) RecordedChoicesAt(ctx context.Context, sessionID string, current []string) (map[string]recording.Summary, error) {
	return m.index.ChildrenOf(ctx, sessionID, current)
}
