// Package services defines the shared error taxonomy and context plumbing used
// across the narration engine.
//
// Errors are classified with exported sentinel markers wrapped via Wrap so
// callers can branch with errors.Is without string matching. Context helpers
// carry session, recording, and correlation identifiers so logging can attach
// them uniformly.
package services
