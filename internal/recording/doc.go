// Package recording persists narrated recordings, their segments, and
// playback sessions in SQLite, and owns the recording lifecycle state machine.
//
// A recording moves between three states: recording (an active writer is
// appending segments), complete (validated and navigable by readers), and
// interrupted (abandoned mid-write, resumable). Two partial unique indexes
// make the racy transitions atomic: at most one recording-state row and at
// most one complete-state row may exist per (session_id, path_key).
//
// The path_key and parent_key columns double as the physical path index;
// higher layers query exact keys and one-step children instead of walking a
// materialized trie.
//
// The database is the single source of truth for lifecycle semantics. Schema
// changes bump schemaVersion in schema.go; old databases must be cleared.
package recording
