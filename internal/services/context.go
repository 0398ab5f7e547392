package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	resourceKey  contextKey = "resource"
	episodeIDKey contextKey = "episode_id"
)

// WithRunID annotates context with the per-invocation run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithResource annotates context with the program or collection being synced.
func WithResource(ctx context.Context, resource string) context.Context {
	if resource == "" {
		return ctx
	}
	return context.WithValue(ctx, resourceKey, resource)
}

// ResourceFromContext returns the resource label if present.
func ResourceFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(resourceKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithEpisodeID annotates context with the episode being processed.
func WithEpisodeID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, episodeIDKey, id)
}

// EpisodeIDFromContext returns the episode identifier if present.
func EpisodeIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(episodeIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
