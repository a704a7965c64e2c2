package logging

import (
	"context"
	"log/slog"

	"fabula/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID is the standardized structured logging key for story session identifiers.
	FieldSessionID = "session_id"
	// FieldRecordingID is the standardized structured logging key for recording identifiers.
	FieldRecordingID = "recording_id"
	// FieldPathKey is the standardized structured logging key for canonical path keys.
	FieldPathKey = "path_key"
	// FieldSegmentIndex is the standardized structured logging key for segment indices.
	FieldSegmentIndex = "segment_index"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if id, ok := services.RecordingIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRecordingID, id))
	}
	if key, ok := services.PathKeyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPathKey, key))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, 0, len(fields))
	for _, field := range fields {
		args = append(args, field)
	}
	return logger.With(args...)
}
