package recording

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a recording.
type Status string

const (
	// StatusRecording marks a path with an active narrator appending segments.
	StatusRecording Status = "recording"
	// StatusComplete marks a validated recording readers may be routed into.
	StatusComplete Status = "complete"
	// StatusInterrupted marks a recording abandoned mid-write, resumable later.
	StatusInterrupted Status = "interrupted"
)

// ReasonStale is the interruption reason set when a dead writer's recording is
// reclaimed past the heartbeat threshold rather than signalled by the client.
const ReasonStale = "stale heartbeat"

// ReasonClientGone is the conventional interruption reason for best-effort
// unload notifications from a closing client.
const ReasonClientGone = "client disconnected"

var allStatuses = []Status{
	StatusRecording,
	StatusComplete,
	StatusInterrupted,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Recording represents the narrated audio for one choice path within a session.
type Recording struct {
	ID                    string
	SessionID             string
	PathKey               string
	ParentKey             string
	LeafChoice            string
	Status                Status
	LastSegmentIndex      int
	TotalDuration         float64
	PlayCount             int64
	InterruptionReason    string
	InterruptedAt         *time.Time
	LastKnownSegmentIndex *int
	LastHeartbeat         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsActive reports whether the recording holds the writer slot for its path.
func (r Recording) IsActive() bool {
	return r.Status == StatusRecording
}

// IsNavigable reports whether readers may be routed into this recording.
func (r Recording) IsNavigable() bool {
	return r.Status == StatusComplete
}

// SegmentCount returns the number of segments implied by the append cursor.
func (r Recording) SegmentCount() int {
	return r.LastSegmentIndex + 1
}

// Summary is the compact recording view surfaced by children lookups.
type Summary struct {
	ID            string
	PathKey       string
	LeafChoice    string
	TotalDuration float64
	SegmentCount  int
	PlayCount     int64
}

// Segment is one ordered unit of narrated audio belonging to a recording.
type Segment struct {
	RecordingID string
	Index       int
	Duration    float64
	AudioRef    string
	ChoiceID    string
	CreatedAt   time.Time
}

// PlaybackSession tracks one reader's consumption of a complete recording.
type PlaybackSession struct {
	ID              string
	RecordingID     string
	UserID          string
	SegmentIndex    int
	PositionSeconds float64
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Completed reports whether the playback session has been finalized.
func (p PlaybackSession) Completed() bool {
	return p.CompletedAt != nil
}

// SessionStats aggregates recording counts for one story session.
type SessionStats struct {
	Total       int
	Recordings  int
	Complete    int
	Interrupted int
}

// DatabaseHealth captures diagnostic information about the engine database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalRecordings  int
	Error            string
}
