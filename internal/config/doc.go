// Package config loads and validates the TOML configuration document.
//
// Load resolves the config location (explicit flag, then the XDG default,
// then a project-local fabula.toml), expands ~ in path fields, normalizes
// missing values to defaults, and validates cross-field constraints. The
// embedded sample_config.toml is installed by `fabula config init`.
package config
