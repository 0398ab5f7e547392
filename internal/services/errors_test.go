package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"audiothek/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrUpstream, "catalog", "fetch page", "decode failed", base)
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"catalog", "fetch page", "decode failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestExitCode(t *testing.T) {
	if code := services.ExitCode(nil); code != 0 {
		t.Fatalf("nil error exit code = %d", code)
	}
	invalid := services.Wrap(services.ErrInvalidInput, "resolve", "parse url", "no id", nil)
	if code := services.ExitCode(invalid); code != 2 {
		t.Fatalf("invalid input exit code = %d", code)
	}
	upstream := services.Wrap(services.ErrUpstream, "catalog", "query", "", io.EOF)
	if code := services.ExitCode(upstream); code != 1 {
		t.Fatalf("upstream exit code = %d", code)
	}
}

func TestIsRetriable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"429", &services.HTTPStatusError{StatusCode: 429}, true},
		{"503 wrapped", fmt.Errorf("fetch: %w", &services.HTTPStatusError{StatusCode: 503}), true},
		{"404", &services.HTTPStatusError{StatusCode: 404}, false},
		{"incomplete", services.Wrap(services.ErrIncompleteTransfer, "download", "copy", "short", nil), true},
		{"reset", errors.New("read tcp: connection reset by peer"), true},
		{"invalid", services.Wrap(services.ErrInvalidInput, "", "", "bad", nil), false},
	}
	for _, tc := range cases {
		if got := services.IsRetriable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetriable = %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	initial := 100 * time.Millisecond
	maxDelay := time.Second
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := services.Backoff(i+1, initial, maxDelay); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestSleepWithContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := services.SleepWithContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
