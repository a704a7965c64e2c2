package services

import "context"

type contextKey string

const (
	sessionIDKey   contextKey = "session_id"
	recordingIDKey contextKey = "recording_id"
	pathKeyKey     contextKey = "path_key"
	requestIDKey   contextKey = "request_id"
)

// WithSessionID annotates context with the story session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the story session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRecordingID annotates context with the recording identifier.
func WithRecordingID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, recordingIDKey, id)
}

// RecordingIDFromContext extracts the recording identifier if present.
func RecordingIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(recordingIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPathKey annotates context with the canonical path key being operated on.
func WithPathKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, pathKeyKey, key)
}

// PathKeyFromContext extracts the canonical path key if present.
func PathKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(pathKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
