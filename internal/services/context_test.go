package services_test

import (
	"context"
	"testing"

	"audiothek/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id on empty context")
	}
	ctx = services.WithRunID(ctx, "run-42")
	ctx = services.WithResource(ctx, "program:urn:ard:show:x")
	ctx = services.WithEpisodeID(ctx, "")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-42" {
		t.Fatalf("unexpected run id %q (%v)", id, ok)
	}
	if res, ok := services.ResourceFromContext(ctx); !ok || res != "program:urn:ard:show:x" {
		t.Fatalf("unexpected resource %q (%v)", res, ok)
	}
	if _, ok := services.EpisodeIDFromContext(ctx); ok {
		t.Fatal("empty episode id should not be stored")
	}
}
