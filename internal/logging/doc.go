// Package logging assembles structured slog loggers and formatting helpers used
// across the audiothek mirror.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so sync code can tag log lines
// with run, resource, and episode identifiers. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
