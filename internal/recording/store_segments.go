package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fabula/internal/services"
)

// AppendSegment persists one segment at the next index. The append cursor is
// checked and advanced inside a single transaction so a second writer racing
// on the same recording observes ErrOutOfOrderSegment or ErrConflict rather
// than interleaving indices.
func (s *Store) AppendSegment(ctx context.Context, recordingID string, index int, duration float64, audioRef, choiceID string) (*Recording, error) {
	if audioRef == "" {
		return nil, services.Wrap(services.ErrValidation, "recording", "append", "audio reference is required", nil)
	}
	if duration <= 0 {
		return nil, services.Wrap(services.ErrValidation, "recording", "append", "duration must be positive", nil)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			statusStr string
			lastIndex int
		)
		row := tx.QueryRowContext(ctx, `SELECT status, last_segment_index FROM recordings WHERE id = ?`, recordingID)
		if err := row.Scan(&statusStr, &lastIndex); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "recording", "append", recordingID, nil)
			}
			return fmt.Errorf("load append cursor: %w", err)
		}

		if Status(statusStr) != StatusRecording {
			return services.Wrap(services.ErrConflict, "recording", "append",
				fmt.Sprintf("recording is %s, not accepting segments", statusStr), nil)
		}
		if index != lastIndex+1 {
			return services.Wrap(services.ErrOutOfOrderSegment, "recording", "append",
				fmt.Sprintf("expected index %d, got %d", lastIndex+1, index), nil)
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO segments (recording_id, segment_index, duration, audio_ref, choice_id, created_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			recordingID,
			index,
			duration,
			audioRef,
			nullableString(choiceID),
			now,
		); err != nil {
			if isUniqueViolation(err) {
				return services.Wrap(services.ErrOutOfOrderSegment, "recording", "append",
					fmt.Sprintf("segment %d already exists", index), err)
			}
			return fmt.Errorf("insert segment: %w", err)
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE recordings
             SET last_segment_index = ?, total_duration = total_duration + ?,
                 last_heartbeat = ?, updated_at = ?
             WHERE id = ?`,
			index,
			duration,
			now,
			now,
			recordingID,
		); err != nil {
			return fmt.Errorf("advance append cursor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetByID(ctx, recordingID)
}

// Segments returns a recording's segments ordered by index.
func (s *Store) Segments(ctx context.Context, recordingID string) ([]Segment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE recording_id = ? ORDER BY segment_index`,
		recordingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	return segments, rows.Err()
}

// SegmentByIndex returns one segment of a recording.
func (s *Store) SegmentByIndex(ctx context.Context, recordingID string, index int) (*Segment, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE recording_id = ? AND segment_index = ?`,
		recordingID,
		index,
	)
	segment, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "recording", "segment",
			fmt.Sprintf("%s[%d]", recordingID, index), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return &segment, nil
}

const segmentColumns = "recording_id, segment_index, duration, audio_ref, choice_id, created_at"

func scanSegment(scanner interface{ Scan(dest ...any) error }) (Segment, error) {
	var (
		segment    Segment
		choiceID   sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(
		&segment.RecordingID,
		&segment.Index,
		&segment.Duration,
		&segment.AudioRef,
		&choiceID,
		&createdRaw,
	); err != nil {
		return Segment{}, err
	}
	segment.ChoiceID = choiceID.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		segment.CreatedAt = created
	}
	return segment, nil
}
