package logging

import (
	"context"
	"log/slog"

	"audiothek/internal/services"
)

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the structured logging key for the per-invocation run identifier.
	FieldRunID = "run_id"
	// FieldResource is the structured logging key for the program or collection being synced.
	FieldResource = "resource"
	// FieldEpisodeID is the structured logging key for episode identifiers.
	FieldEpisodeID = "episode_id"
	// FieldFileKind is the structured logging key for artifact kinds (audio, image, metadata).
	FieldFileKind = "file_kind"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if res, ok := services.ResourceFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldResource, res))
	}
	if id, ok := services.EpisodeIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldEpisodeID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
