package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fabula/internal/services"
)

// StartPlayback creates a playback session against a complete recording.
// Readers are never routed into unfinished recordings, so any other status
// reports ErrNotFound.
func (s *Store) StartPlayback(ctx context.Context, recordingID, userID string) (*PlaybackSession, error) {
	rec, err := s.GetByID(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.IsNavigable() {
		return nil, services.Wrap(services.ErrNotFound, "playback", "start",
			fmt.Sprintf("no complete recording %s", recordingID), nil)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO playback_sessions (id, recording_id, user_id, segment_index, position_seconds, created_at, updated_at)
         VALUES (?, ?, ?, 0, 0, ?, ?)`,
		id,
		recordingID,
		nullableString(userID),
		now,
		now,
	); err != nil {
		return nil, fmt.Errorf("insert playback session: %w", err)
	}

	return s.GetPlayback(ctx, id)
}

// GetPlayback fetches a playback session by identifier.
func (s *Store) GetPlayback(ctx context.Context, id string) (*PlaybackSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playbackColumns+` FROM playback_sessions WHERE id = ?`, id)
	session, err := scanPlayback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get playback session: %w", err)
	}
	return session, nil
}

// UpdatePlaybackPosition stores the reader's position. Seeking in either
// direction is valid; last write wins per session.
func (s *Store) UpdatePlaybackPosition(ctx context.Context, id string, segmentIndex int, positionSeconds float64) error {
	if segmentIndex < 0 || positionSeconds < 0 {
		return services.Wrap(services.ErrValidation, "playback", "update",
			"segment index and position must be non-negative", nil)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE playback_sessions
         SET segment_index = ?, position_seconds = ?, updated_at = ?
         WHERE id = ?`,
		segmentIndex,
		positionSeconds,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("update playback position: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "playback", "update", id, nil)
	}
	return nil
}

// CompletePlayback finalizes a playback session. Completing an already
// completed session is a no-op, not an error.
func (s *Store) CompletePlayback(ctx context.Context, id string) error {
	session, err := s.GetPlayback(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return services.Wrap(services.ErrNotFound, "playback", "complete", id, nil)
	}
	if session.Completed() {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE playback_sessions SET completed_at = ?, updated_at = ? WHERE id = ? AND completed_at IS NULL`,
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("complete playback: %w", err)
	}
	return nil
}

// ListPlaybackByRecording returns the playback sessions referencing a
// recording, oldest first.
func (s *Store) ListPlaybackByRecording(ctx context.Context, recordingID string) ([]*PlaybackSession, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+playbackColumns+` FROM playback_sessions WHERE recording_id = ? ORDER BY created_at`,
		recordingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list playback sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*PlaybackSession
	for rows.Next() {
		session, err := scanPlayback(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

const playbackColumns = "id, recording_id, user_id, segment_index, position_seconds, completed_at, created_at, updated_at"

func scanPlayback(scanner interface{ Scan(dest ...any) error }) (*PlaybackSession, error) {
	var (
		session      PlaybackSession
		userID       sql.NullString
		completedRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&session.ID,
		&session.RecordingID,
		&userID,
		&session.SegmentIndex,
		&session.PositionSeconds,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	session.UserID = userID.String
	if completedRaw.Valid {
		if t, err := parseTimeString(completedRaw.String); err == nil {
			session.CompletedAt = &t
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		session.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		session.UpdatedAt = updated
	}
	return &session, nil
}
