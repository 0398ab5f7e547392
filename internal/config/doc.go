// Package config loads, normalizes, and validates audiothek configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AUDIOTHEK_DISABLE_CACHE and XDG_CACHE_HOME. The Config type centralizes every
// knob the CLI, catalog client, and download executor need, so the process
// builds it once at startup and hands it to constructors explicitly.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, clamped worker counts, and clear validation errors.
package config
