package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict marks single-writer violations: a second narrator trying to
	// enter recording state for a path that already has an active writer.
	ErrConflict = errors.New("conflict")
	// ErrOutOfOrderSegment marks non-monotonic segment appends.
	ErrOutOfOrderSegment = errors.New("out of order segment")
	// ErrNotFound marks lookups for unknown recordings, segments, or sessions.
	ErrNotFound = errors.New("not found")
	// ErrInvalidChoice marks choice identifiers the path codec refuses to encode.
	ErrInvalidChoice = errors.New("invalid choice identifier")
	// ErrValidation marks structurally invalid input to a mutation.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks retryable infrastructure failures.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether the caller can retry the operation with
// corrected state rather than treating the failure as fatal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrOutOfOrderSegment) ||
		errors.Is(err, ErrTransient)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
