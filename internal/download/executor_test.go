package download_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"audiothek/internal/download"
	"audiothek/internal/media"
	"audiothek/internal/planner"
	"audiothek/internal/services"
)

const publishDate = "2024-03-01T10:00:00Z"

func newExecutor(t *testing.T, server *httptest.Server) *download.Executor {
	t.Helper()
	return download.New(download.Options{
		HTTPClient:  server.Client(),
		MaxRetries:  2,
		Backoff:     time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
		LockTimeout: time.Second,
	})
}

func audioBody(size int) []byte {
	return bytes.Repeat([]byte{0xFF}, size)
}

func assertModTime(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	want, _ := time.Parse(time.RFC3339, publishDate)
	if !info.ModTime().Equal(want) {
		t.Fatalf("mtime of %s = %v want %v", filepath.Base(path), info.ModTime(), want)
	}
}

func assertNoLeftovers(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") || strings.HasSuffix(entry.Name(), ".lock") {
			t.Fatalf("unexpected leftover %s", entry.Name())
		}
	}
}

func TestExecuteInstallsEveryArtifact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a.mp4", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(audioBody(4000)) })
	mux.HandleFunc("/wide.jpg", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(audioBody(300)) })
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "555 Krimi")
	plan := planner.Plan{
		ID:          "e1",
		Dir:         dir,
		PublishDate: publishDate,
		Steps: []planner.Step{
			{Kind: planner.KindAudio, Action: planner.ActionCreate, Path: filepath.Join(dir, "Ep_e1.mp4"), Sources: []planner.Source{{URL: server.URL + "/a.mp4", Path: filepath.Join(dir, "Ep_e1.mp4")}}},
			{Kind: planner.KindCover, Action: planner.ActionCreate, Path: filepath.Join(dir, "Ep_e1.jpg"), Sources: []planner.Source{{URL: server.URL + "/wide.jpg", Path: filepath.Join(dir, "Ep_e1.jpg")}}},
			{Kind: planner.KindMetadata, Action: planner.ActionCreate, Path: filepath.Join(dir, "Ep_e1.json"), Content: []byte(`{"id": "e1"}`)},
			{Kind: planner.KindSquareCover, Action: planner.ActionNoop, Path: filepath.Join(dir, "Ep_e1_x1.jpg")},
		},
	}

	outcome := newExecutor(t, server).Execute(context.Background(), plan)
	if err := outcome.Err(); err != nil {
		t.Fatalf("Execute returned errors: %v", err)
	}
	if len(outcome.Results) != 3 {
		t.Fatalf("expected 3 results for 3 pending steps, got %d", len(outcome.Results))
	}
	for _, name := range []string{"Ep_e1.mp4", "Ep_e1.jpg", "Ep_e1.json"} {
		assertModTime(t, filepath.Join(dir, name))
	}
	if data, _ := os.ReadFile(filepath.Join(dir, "Ep_e1.json")); string(data) != `{"id": "e1"}` {
		t.Fatalf("unexpected metadata %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "Ep_e1_x1.jpg")); !os.IsNotExist(err) {
		t.Fatal("noop step must not create a file")
	}
	assertNoLeftovers(t, dir)
}

func TestExecuteReplaceRemovesSupersededAfterInstall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(audioBody(5000))
	}))
	defer server.Close()

	dir := t.TempDir()
	oldPath := filepath.Join(dir, "slug_abc123.mp3")
	if err := os.WriteFile(oldPath, audioBody(2000), 0o644); err != nil {
		t.Fatal(err)
	}
	newPath := filepath.Join(dir, "slug_abc123.mp4")
	plan := planner.Plan{ID: "abc123", Dir: dir, PublishDate: publishDate, Steps: []planner.Step{{
		Kind:       planner.KindAudio,
		Action:     planner.ActionReplace,
		Path:       oldPath,
		Sources:    []planner.Source{{URL: server.URL + "/x_128k.mp4", Path: newPath, Quality: media.Quality{Format: media.FormatMP4, Bitrate: 128}}},
		Superseded: []string{oldPath},
	}}}

	outcome := newExecutor(t, server).Execute(context.Background(), plan)
	if err := outcome.Err(); err != nil {
		t.Fatalf("Execute returned errors: %v", err)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatal("expected superseded mp3 to be removed")
	}
	assertModTime(t, newPath)
	if outcome.Results[0].Path != newPath || outcome.Results[0].Bytes != 5000 {
		t.Fatalf("unexpected result %+v", outcome.Results[0])
	}
}

func TestExecuteShortReadLeavesExistingFileUntouched(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Length", "5000")
		_, _ = w.Write(audioBody(100))
	}))
	defer server.Close()

	dir := t.TempDir()
	final := filepath.Join(dir, "slug_e1.mp3")
	if err := os.WriteFile(final, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}
	plan := planner.Plan{ID: "e1", Dir: dir, PublishDate: publishDate, Steps: []planner.Step{{
		Kind:    planner.KindAudio,
		Action:  planner.ActionRepair,
		Path:    final,
		Sources: []planner.Source{{URL: server.URL + "/a.mp3", Path: final}},
	}}}

	outcome := newExecutor(t, server).Execute(context.Background(), plan)
	failed := outcome.Failed()
	if len(failed) != 1 || !errors.Is(failed[0].Err, services.ErrIncompleteTransfer) {
		t.Fatalf("expected an incomplete transfer, got %+v", outcome.Results)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected the short read to be retried, got %d attempts", calls.Load())
	}
	if data, _ := os.ReadFile(final); string(data) != "previous" {
		t.Fatalf("final file was modified: %q", data)
	}
	assertNoLeftovers(t, dir)
}

func TestExecuteFallsBackPastUnavailableVariants(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gone.mp4", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })
	mux.HandleFunc("/error.m4a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>Error: this file was removed</html>"))
	})
	mux.HandleFunc("/ok.mp3", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(audioBody(3000)) })
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	plan := planner.Plan{ID: "e1", Dir: dir, Steps: []planner.Step{{
		Kind:   planner.KindAudio,
		Action: planner.ActionCreate,
		Path:   filepath.Join(dir, "s_e1.mp4"),
		Sources: []planner.Source{
			{URL: server.URL + "/gone.mp4", Path: filepath.Join(dir, "s_e1.mp4")},
			{URL: server.URL + "/error.m4a", Path: filepath.Join(dir, "s_e1.m4a")},
			{URL: server.URL + "/ok.mp3", Path: filepath.Join(dir, "s_e1.mp3")},
		},
	}}}

	outcome := newExecutor(t, server).Execute(context.Background(), plan)
	if err := outcome.Err(); err != nil {
		t.Fatalf("Execute returned errors: %v", err)
	}
	if outcome.Results[0].Path != filepath.Join(dir, "s_e1.mp3") {
		t.Fatalf("expected the mp3 fallback, got %+v", outcome.Results[0])
	}
	for _, name := range []string{"s_e1.mp4", "s_e1.m4a"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("unavailable variant %s must not be installed", name)
		}
	}
}

func TestExecuteReportsUnavailableWhenAllVariantsGone(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dir := t.TempDir()
	plan := planner.Plan{ID: "e1", Dir: dir, Steps: []planner.Step{{
		Kind:    planner.KindAudio,
		Action:  planner.ActionCreate,
		Path:    filepath.Join(dir, "s_e1.mp3"),
		Sources: []planner.Source{{URL: server.URL + "/a.mp3", Path: filepath.Join(dir, "s_e1.mp3")}},
	}}}
	outcome := newExecutor(t, server).Execute(context.Background(), plan)
	if err := outcome.Err(); !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestExecuteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(audioBody(1500))
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "s_e1.mp3")
	plan := planner.Plan{ID: "e1", Dir: dir, Steps: []planner.Step{{
		Kind: planner.KindAudio, Action: planner.ActionCreate, Path: path,
		Sources: []planner.Source{{URL: server.URL + "/a.mp3", Path: path}},
	}}}
	if err := newExecutor(t, server).Execute(context.Background(), plan).Err(); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestExecuteFailureDoesNotStopSiblings(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bad.jpg", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) })
	mux.HandleFunc("/good.jpg", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(audioBody(500)) })
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	plan := planner.Plan{ID: "e1", Dir: dir, Steps: []planner.Step{
		{Kind: planner.KindCover, Action: planner.ActionCreate, Path: filepath.Join(dir, "a.jpg"), Sources: []planner.Source{{URL: server.URL + "/bad.jpg", Path: filepath.Join(dir, "a.jpg")}}},
		{Kind: planner.KindSquareCover, Action: planner.ActionCreate, Path: filepath.Join(dir, "a_x1.jpg"), Sources: []planner.Source{{URL: server.URL + "/good.jpg", Path: filepath.Join(dir, "a_x1.jpg")}}},
	}}
	outcome := newExecutor(t, server).Execute(context.Background(), plan)
	failed := outcome.Failed()
	if len(failed) != 1 || failed[0].Kind != planner.KindCover || !errors.Is(failed[0].Err, services.ErrDownload) {
		t.Fatalf("expected only the cover to fail with a download error, got %+v", outcome.Results)
	}
	if _, err := os.Stat(filepath.Join(dir, "a_x1.jpg")); err != nil {
		t.Fatalf("sibling artifact missing: %v", err)
	}
}

func TestRemoteSize(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a.mp3", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Content-Length", strconv.Itoa(123456))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	executor := newExecutor(t, server)

	size, err := executor.RemoteSize(context.Background(), server.URL+"/a.mp3")
	if err != nil || size != 123456 {
		t.Fatalf("RemoteSize = %d, %v", size, err)
	}
	if _, err := executor.RemoteSize(context.Background(), server.URL+"/missing.mp3"); !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable for 404, got %v", err)
	}
}
