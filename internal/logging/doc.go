// Package logging provides slog construction helpers shared across the engine.
//
// Two handler formats are supported: a human-oriented console handler that
// colorizes levels when attached to a terminal, and a JSON handler for log
// shipping. Standardized field keys and context extraction keep session,
// recording, and correlation identifiers uniform across components.
package logging
