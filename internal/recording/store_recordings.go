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

// Start creates a new recording in recording state for the given path. It
// fails with services.ErrConflict when another recording already holds the
// writer slot for (sessionID, pathKey); the partial unique index makes the
// check-and-create atomic.
func (s *Store) Start(ctx context.Context, sessionID, pathKey, parentKey, leafChoice string) (*Recording, error) {
	if sessionID == "" || pathKey == "" {
		return nil, services.Wrap(services.ErrValidation, "recording", "start", "session id and path key are required", nil)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO recordings (
            id, session_id, path_key, parent_key, leaf_choice, status,
            last_segment_index, total_duration, last_heartbeat, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		sessionID,
		pathKey,
		nullableString(parentKey),
		nullableString(leafChoice),
		StatusRecording,
		-1,
		0.0,
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.Wrap(services.ErrConflict, "recording", "start",
				fmt.Sprintf("active recording exists for path %s", pathKey), err)
		}
		return nil, fmt.Errorf("insert recording: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a recording by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// FindByPath returns the recording for (sessionID, pathKey) restricted to the
// provided statuses, or all statuses when none are given. Interrupted history
// can hold several rows per path; the newest wins.
func (s *Store) FindByPath(ctx context.Context, sessionID, pathKey string, statuses ...Status) (*Recording, error) {
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE session_id = ? AND path_key = ?`
	args := []any{sessionID, pathKey}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by path: %w", err)
	}
	return rec, nil
}

// ListBySession returns a session's recordings filtered by status set (or all
// recordings when no status is provided), oldest first.
func (s *Store) ListBySession(ctx context.Context, sessionID string, statuses ...Status) ([]*Recording, error) {
	baseQuery := `SELECT ` + recordingColumns + ` FROM recordings WHERE session_id = ?`
	orderClause := ` ORDER BY created_at`
	args := []any{sessionID}

	query := baseQuery + orderClause
	if len(statuses) > 0 {
		query = baseQuery + ` AND status IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		for _, status := range statuses {
			args = append(args, status)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recs []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListInterrupted returns a session's interrupted recordings, newest
// interruption first.
func (s *Store) ListInterrupted(ctx context.Context, sessionID string) ([]*Recording, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordingColumns+` FROM recordings
         WHERE session_id = ? AND status = ?
         ORDER BY interrupted_at DESC, created_at DESC`,
		sessionID,
		StatusInterrupted,
	)
	if err != nil {
		return nil, fmt.Errorf("list interrupted: %w", err)
	}
	defer rows.Close()

	var recs []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ChildrenOf returns the one-step extensions of a prefix that have complete
// recordings, keyed by the choice identifier leading into each child.
func (s *Store) ChildrenOf(ctx context.Context, sessionID, prefixKey string) (map[string]Summary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, path_key, leaf_choice, total_duration, last_segment_index, play_count
         FROM recordings
         WHERE session_id = ? AND parent_key = ? AND status = ?`,
		sessionID,
		prefixKey,
		StatusComplete,
	)
	if err != nil {
		return nil, fmt.Errorf("children of: %w", err)
	}
	defer rows.Close()

	children := make(map[string]Summary)
	for rows.Next() {
		var (
			summary    Summary
			leafChoice sql.NullString
			lastIndex  int
		)
		if err := rows.Scan(&summary.ID, &summary.PathKey, &leafChoice, &summary.TotalDuration, &lastIndex, &summary.PlayCount); err != nil {
			return nil, err
		}
		summary.LeafChoice = leafChoice.String
		summary.SegmentCount = lastIndex + 1
		if summary.LeafChoice == "" {
			continue
		}
		children[summary.LeafChoice] = summary
	}
	return children, rows.Err()
}

// Delete removes a recording; segments and playback sessions cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "recording", "delete", id, nil)
	}
	return nil
}

// RecordPlay increments the play counter used for popularity signals.
func (s *Store) RecordPlay(ctx context.Context, id string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE recordings SET play_count = play_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("record play: %w", err)
	}
	return nil
}

// Stats returns recording counts for one session grouped by status.
func (s *Store) Stats(ctx context.Context, sessionID string) (SessionStats, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM recordings WHERE session_id = ? GROUP BY status`,
		sessionID,
	)
	if err != nil {
		return SessionStats{}, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := SessionStats{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return SessionStats{}, err
		}
		stats.Total += count
		switch status {
		case StatusRecording:
			stats.Recordings += count
		case StatusComplete:
			stats.Complete += count
		case StatusInterrupted:
			stats.Interrupted += count
		}
	}
	return stats, rows.Err()
}

const recordingColumns = "id, session_id, path_key, parent_key, leaf_choice, status, last_segment_index, total_duration, play_count, interruption_reason, interrupted_at, last_known_segment_index, last_heartbeat, created_at, updated_at"

func scanRecording(scanner interface{ Scan(dest ...any) error }) (*Recording, error) {
	var (
		id               string
		sessionID        string
		pathKey          string
		parentKey        sql.NullString
		leafChoice       sql.NullString
		statusStr        string
		lastSegmentIndex int
		totalDuration    float64
		playCount        int64
		interruptReason  sql.NullString
		interruptedRaw   sql.NullString
		lastKnownIndex   sql.NullInt64
		lastHeartbeatRaw sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sessionID,
		&pathKey,
		&parentKey,
		&leafChoice,
		&statusStr,
		&lastSegmentIndex,
		&totalDuration,
		&playCount,
		&interruptReason,
		&interruptedRaw,
		&lastKnownIndex,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Recording{
		ID:                 id,
		SessionID:          sessionID,
		PathKey:            pathKey,
		ParentKey:          parentKey.String,
		LeafChoice:         leafChoice.String,
		Status:             Status(statusStr),
		LastSegmentIndex:   lastSegmentIndex,
		TotalDuration:      totalDuration,
		PlayCount:          playCount,
		InterruptionReason: interruptReason.String,
	}
	if lastKnownIndex.Valid {
		v := int(lastKnownIndex.Int64)
		rec.LastKnownSegmentIndex = &v
	}
	if interruptedRaw.Valid {
		if t, err := parseTimeString(interruptedRaw.String); err == nil {
			rec.InterruptedAt = &t
		}
	}
	if lastHeartbeatRaw.Valid {
		if t, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			rec.LastHeartbeat = &t
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}
