package services_test

import (
	"errors"
	"strings"
	"testing"

	"fabula/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("unique constraint failed")
	err := services.Wrap(services.ErrConflict, "recording", "start", "active writer exists", base)

	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict classification, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error to survive, got %v", err)
	}
	for _, fragment := range []string{"recording", "start", "active writer exists"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in message, got %q", fragment, err.Error())
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "recording", "append", "", errors.New("io timeout"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient default, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"conflict", services.Wrap(services.ErrConflict, "recording", "resume", "", nil), true},
		{"out_of_order", services.ErrOutOfOrderSegment, true},
		{"transient", services.ErrTransient, true},
		{"not_found", services.ErrNotFound, false},
		{"invalid_choice", services.ErrInvalidChoice, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := services.IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
