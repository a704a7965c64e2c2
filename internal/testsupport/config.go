package testsupport

import (
	"path/filepath"
	"testing"

	"fabula/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithStaleRecordingSeconds overrides the stale reclamation threshold.
func WithStaleRecordingSeconds(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Engine.StaleRecordingSeconds = seconds
	}
}

// WithDurationTolerance overrides the validation duration tolerance.
func WithDurationTolerance(seconds float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Engine.DurationToleranceSeconds = seconds
	}
}
