package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fabula/internal/services"
)

// Finalize validates a recording and, when the report is clean, transitions it
// from recording to complete. On a dirty report the recording stays in
// recording state and the report is returned for the caller to act on; the
// returned error is nil in both cases.
func (s *Store) Finalize(ctx context.Context, recordingID string) (*Report, error) {
	rec, err := s.GetByID(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "recording", "finalize", recordingID, nil)
	}
	if rec.Status == StatusComplete {
		// Finalizing a complete recording is a no-op with a clean report.
		return &Report{Valid: true}, nil
	}
	if rec.Status != StatusRecording {
		return nil, services.Wrap(services.ErrConflict, "recording", "finalize",
			fmt.Sprintf("recording is %s", rec.Status), nil)
	}

	report, err := s.Validate(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return report, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE recordings
         SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusComplete,
		now,
		recordingID,
		StatusRecording,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.Wrap(services.ErrConflict, "recording", "finalize",
				"complete recording already exists for this path", err)
		}
		return nil, fmt.Errorf("finalize recording: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, services.Wrap(services.ErrConflict, "recording", "finalize",
			"recording changed state while finalizing", nil)
	}
	return report, nil
}

// MarkInterrupted transitions recording -> interrupted, storing the client's
// last-known-good segment index. The call is idempotent: re-marking an already
// interrupted recording refreshes nothing and reports success, since the
// signal typically arrives over an unreliable unload notification.
func (s *Store) MarkInterrupted(ctx context.Context, recordingID string, lastKnownIndex int, reason string) error {
	rec, err := s.GetByID(ctx, recordingID)
	if err != nil {
		return err
	}
	if rec == nil {
		return services.Wrap(services.ErrNotFound, "recording", "interrupt", recordingID, nil)
	}
	switch rec.Status {
	case StatusInterrupted:
		return nil
	case StatusComplete:
		// A finalize that raced the unload signal wins; nothing to interrupt.
		return nil
	}

	if reason == "" {
		reason = ReasonClientGone
	}
	if lastKnownIndex > rec.LastSegmentIndex {
		lastKnownIndex = rec.LastSegmentIndex
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE recordings
         SET status = ?, interruption_reason = ?, interrupted_at = ?,
             last_known_segment_index = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusInterrupted,
		reason,
		now,
		lastKnownIndex,
		now,
		recordingID,
		StatusRecording,
	); err != nil {
		return fmt.Errorf("mark interrupted: %w", err)
	}
	return nil
}

// Resume transitions interrupted -> recording. The active-writer partial
// unique index rejects the transition when another recording already holds
// the writer slot for the same path, which maps to services.ErrConflict.
func (s *Store) Resume(ctx context.Context, recordingID string) (*Recording, error) {
	rec, err := s.GetByID(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "recording", "resume", recordingID, nil)
	}
	if rec.Status != StatusInterrupted {
		return nil, services.Wrap(services.ErrConflict, "recording", "resume",
			fmt.Sprintf("recording is %s, not interrupted", rec.Status), nil)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE recordings
         SET status = ?, interruption_reason = NULL, interrupted_at = NULL,
             last_known_segment_index = NULL, last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusRecording,
		now,
		now,
		recordingID,
		StatusInterrupted,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.Wrap(services.ErrConflict, "recording", "resume",
				fmt.Sprintf("active recording exists for path %s", rec.PathKey), err)
		}
		return nil, fmt.Errorf("resume recording: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, services.Wrap(services.ErrConflict, "recording", "resume",
			"recording changed state while resuming", nil)
	}

	return s.GetByID(ctx, recordingID)
}

// Heartbeat refreshes the liveness timestamp for an active recording.
func (s *Store) Heartbeat(ctx context.Context, recordingID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE recordings SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		recordingID,
		StatusRecording,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStalePath forces an apparently-abandoned active recording on the
// given path to interrupted when its heartbeat predates the cutoff. Returns
// true when a recording was reclaimed. This is the stale-lock reclamation a
// later start or resume performs so a crashed writer cannot block the path
// forever.
func (s *Store) ReclaimStalePath(ctx context.Context, sessionID, pathKey string, cutoff time.Time) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE recordings
         SET status = ?, interruption_reason = ?, interrupted_at = ?,
             last_known_segment_index = last_segment_index, last_heartbeat = NULL, updated_at = ?
         WHERE session_id = ? AND path_key = ? AND status = ?
           AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		StatusInterrupted,
		ReasonStale,
		now,
		now,
		sessionID,
		pathKey,
		StatusRecording,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("reclaim stale path: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReclaimStale sweeps every active recording whose heartbeat predates the
// cutoff into interrupted state, across all sessions. Used by the janitor.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE recordings
         SET status = ?, interruption_reason = ?, interrupted_at = ?,
             last_known_segment_index = last_segment_index, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		StatusInterrupted,
		ReasonStale,
		now,
		now,
		StatusRecording,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale recordings: %w", err)
	}
	return res.RowsAffected()
}

// CheckHealth returns diagnostic information about the engine database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("database path is unknown")
	}
	if s.db == nil {
		return health, errors.New("database connection unavailable")
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	expected := []string{"recordings", "segments", "playback_sessions", "schema_version"}
	present := make(map[string]struct{}, len(expected))
	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate tables: %w", err)
	}
	for _, name := range expected {
		if _, ok := present[name]; ok {
			health.TablesPresent = append(health.TablesPresent, name)
		} else {
			health.MissingTables = append(health.MissingTables, name)
		}
	}

	row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM recordings")
	if err := row.Scan(&health.TotalRecordings); err != nil && !errors.Is(err, sql.ErrNoRows) {
		health.Error = err.Error()
		return health, fmt.Errorf("count recordings: %w", err)
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = integrityResult == "ok"

	return health, nil
}
