package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"audiothek/internal/catalog"
	"audiothek/internal/media"
	"audiothek/internal/resolve"
	"audiothek/internal/respcache"
	"audiothek/internal/services"
)

type gqlRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []gqlRequest
	handle   func(req gqlRequest) (int, any)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", http.StatusMethodNotAllowed)
		return
	}
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	status, body := f.handle(req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func episodeNode(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       "Episode " + id,
		"description": "desc",
		"summary":     nil,
		"duration":    1800,
		"publishDate": "2024-01-02T03:04:05Z",
		"image":       map[string]any{"url": "https://img.example/" + id + "?w={width}", "url1X1": "https://img.example/" + id + "-sq?w={width}"},
		"programSet":  map[string]any{"id": "555", "title": "The Show", "path": "/sendung/the-show/555/"},
		"audios": []any{
			map[string]any{"url": "https://cdn.example/" + id + "_128k.mp3", "downloadUrl": "https://cdn.example/" + id + "_128k.mp4"},
		},
	}
}

func programPage(ids []string, hasNext bool) map[string]any {
	nodes := make([]any, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, episodeNode(id))
	}
	return map[string]any{"data": map[string]any{"result": map[string]any{
		"id":               "555",
		"title":            "The Show",
		"synopsis":         "About the show",
		"numberOfElements": 3,
		"image":            map[string]any{"url": "https://img.example/show?w={width}"},
		"items": map[string]any{
			"pageInfo": map[string]any{"hasNextPage": hasNext, "endCursor": ""},
			"nodes":    nodes,
		},
	}}}
}

func newClient(t *testing.T, api *fakeAPI, cache *respcache.Cache) *catalog.Client {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return catalog.NewClient(catalog.Options{
		Endpoint:   server.URL,
		HTTPClient: server.Client(),
		Cache:      cache,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
		RateLimit:  1000,
	})
}

func offsetOf(req gqlRequest) int {
	v, _ := req.Variables["offset"].(float64)
	return int(v)
}

func TestEpisodesWalksExactlyNPages(t *testing.T) {
	pages := [][]string{{"e1", "e2"}, {"e3", "e2"}, {"e4"}}
	api := &fakeAPI{handle: func(req gqlRequest) (int, any) {
		if req.OperationName != "ProgramSetEpisodesQuery" {
			return http.StatusBadRequest, nil
		}
		idx := offsetOf(req) / catalog.PageSize
		return http.StatusOK, programPage(pages[idx], idx < len(pages)-1)
	}}
	client := newClient(t, api, nil)

	var ids []string
	for ep, err := range client.Episodes(context.Background(), resolve.Ref{Kind: resolve.KindProgram, ID: "555"}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, ep.ID)
		if ep.Container == nil || ep.Container.ID != "555" {
			t.Fatalf("expected container on episode %s", ep.ID)
		}
	}

	if got := api.count(); got != len(pages) {
		t.Fatalf("expected %d page fetches, got %d", len(pages), got)
	}
	want := []string{"e1", "e2", "e3", "e4"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("unexpected ids %v want %v", ids, want)
	}
	for i, req := range api.requests {
		if offsetOf(req) != i*catalog.PageSize {
			t.Fatalf("request %d used offset %d", i, offsetOf(req))
		}
		if c, _ := req.Variables["count"].(float64); int(c) != catalog.PageSize {
			t.Fatalf("request %d used count %v", i, req.Variables["count"])
		}
	}
}

func TestEpisodesStopsWhenConsumerStops(t *testing.T) {
	api := &fakeAPI{handle: func(req gqlRequest) (int, any) {
		return http.StatusOK, programPage([]string{fmt.Sprintf("e%d", offsetOf(req))}, true)
	}}
	client := newClient(t, api, nil)
	for range client.Episodes(context.Background(), resolve.Ref{Kind: resolve.KindProgram, ID: "555"}) {
		break
	}
	if api.count() != 1 {
		t.Fatalf("expected no prefetch beyond the consumed page, got %d requests", api.count())
	}
}

func TestEpisodesNormalizesRecord(t *testing.T) {
	api := &fakeAPI{handle: func(req gqlRequest) (int, any) {
		return http.StatusOK, programPage([]string{"e1"}, false)
	}}
	client := newClient(t, api, nil)

	var got []catalog.Episode
	for ep, err := range client.Episodes(context.Background(), resolve.Ref{Kind: resolve.KindProgram, ID: "555"}) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, ep)
	}
	if len(got) != 1 {
		t.Fatalf("expected one episode, got %d", len(got))
	}
	ep := got[0]
	best, ok := ep.Best()
	if !ok || best.Format != media.FormatMP4 || !best.Direct {
		t.Fatalf("expected direct mp4 as best variant, got %+v", best)
	}
	if len(ep.Variants) != 2 || ep.Variants[1].Format != media.FormatMP3 {
		t.Fatalf("unexpected variants %+v", ep.Variants)
	}
	if ep.Covers.Wide != "https://img.example/e1?w=2000" || ep.Covers.Square != "https://img.example/e1-sq?w=2000" {
		t.Fatalf("unexpected covers %+v", ep.Covers)
	}
	if ep.Duration != 1800 || ep.PublishDate != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected duration/date %d %q", ep.Duration, ep.PublishDate)
	}
	if ep.FolderName() != "555 The Show" {
		t.Fatalf("unexpected folder %q", ep.FolderName())
	}
	if ep.FileBase() != "Episode_e1_e1" {
		t.Fatalf("unexpected file base %q", ep.FileBase())
	}
	if string(ep.Metadata.Summary) != "null" {
		t.Fatalf("expected raw null summary, got %q", ep.Metadata.Summary)
	}
	if ep.Container.ImageURL != "https://img.example/show?w=2000" {
		t.Fatalf("unexpected container image %q", ep.Container.ImageURL)
	}
	meta, err := json.Marshal(ep.Container.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	wantPrefix := `{"id":"555","coreId":null,"title":"The Show","synopsis":"About the show","numberOfElements":3,`
	if len(meta) < len(wantPrefix) || string(meta[:len(wantPrefix)]) != wantPrefix {
		t.Fatalf("unexpected container metadata %s", meta)
	}
}

func TestEpisodesSkipsMalformedEpisode(t *testing.T) {
	api := &fakeAPI{handle: func(req gqlRequest) (int, any) {
		page := programPage([]string{"e1", "e2"}, false)
		items := page["data"].(map[string]any)["result"].(map[string]any)["items"].(map[string]any)
		nodes := items["nodes"].([]any)
		nodes = append(nodes, map[string]any{"title": "no id"}, map[string]any{"id": "e9", "audios": []any{}})
		items["nodes"] = nodes
		return http.StatusOK, page
	}}
	client := newClient(t, api, nil)

	var ids []string
	for ep, err := range client.Episodes(context.Background(), resolve.Ref{Kind: resolve.KindProgram, ID: "555"}) {
		if err != nil {
			t.Fatalf("malformed episode must not fail the listing: %v", err)
		}
		ids = append(ids, ep.ID)
	}
	if fmt.Sprint(ids) != "[e1 e2]" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestEpisodesMalformedPageIsUpstreamError(t *testing.T) {
	api := &fakeAPI{handle: func(req gqlRequest) (int, any) {
		return http.StatusOK, map[string]any{"data": map[string]any{"result": map[string]any{"id": "555"}}}
	}}
	client := newClient(t, api, nil)
	var gotErr error
	for _, err := range client.Episodes(context.Background(), resolve.Ref{Kind: resolve.KindProgram, ID: "555"}) {
		gotErr = err
	}
	if !errors.Is(gotErr, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", gotErr)
	}
}

func TestEpisodesNullResultIsNotFound(t *testing.T) {
	api := &fakeAPI{handle: func(req gqlRequest) (int, any) {
		return http.StatusOK, map[string]any{"data": map[string]any{"result": nil}}
	}}
	client := newClient(t, api, nil)
	var gotErr error
	for _, err := range client.Episodes(context.Background(), resolve.Ref{Kind: resolve.KindCollection, ID: "urn:ard:page:x"}) {
		gotErr = err
	}
	if !catalog.IsNotFound(gotErr) {
		t.Fatalf("expected not found, got %v", gotErr)
	}
	if api.requests[0].OperationName != "EditorialCollectionQuery" {
		t.Fatalf("collection should use the editorial collection query, got %s", api.requests[0].OperationName)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	api := &fakeAPI{handle: func(req gqlRequest) (int, any) {
		if calls.Add(1) < 3 {
			return http.StatusServiceUnavailable, map[string]any{}
		}
		return http.StatusOK, programPage([]string{"e1"}, false)
	}}
	client := newClient(t, api, nil)
	for _, err := range client.Episodes(context.Background(), resolve.Ref{Kind: resolve.KindProgram, ID: "555"}) {
		if err != nil {
			t.Fatalf("expected retries to recover, got %v", err)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestRetryBudgetExhaustedIsUpstreamError(t *testing.T) {
	api := &fakeAPI{handle: func(req gqlRequest) (int, any) {
		return http.StatusBadGateway, map[string]any{}
	}}
	client := newClient(t, api, nil)
	_, err := client.Episode(context.Background(), "urn:ard:episode:x")
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if api.count() != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", api.count())
	}
}

func TestCacheServesRepeatedQueries(t *testing.T) {
	cache, err := respcache.Open(t.TempDir(), respcache.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	api := &fakeAPI{handle: func(req gqlRequest) (int, any) {
		return http.StatusOK, map[string]any{"data": map[string]any{"result": episodeNode("e1")}}
	}}
	client := newClient(t, api, cache)

	for range 3 {
		ep, err := client.Episode(context.Background(), "e1")
		if err != nil {
			t.Fatal(err)
		}
		if ep.ID != "e1" {
			t.Fatalf("unexpected episode %q", ep.ID)
		}
	}
	if api.count() != 1 {
		t.Fatalf("expected a single network request, got %d", api.count())
	}
	if api.requests[0].OperationName != "EpisodeQuery" {
		t.Fatalf("unexpected operation %s", api.requests[0].OperationName)
	}
}

func TestTitle(t *testing.T) {
	api := &fakeAPI{handle: func(req gqlRequest) (int, any) {
		switch req.OperationName {
		case "EpisodeQuery":
			return http.StatusOK, map[string]any{"data": map[string]any{"result": episodeNode("e1")}}
		default:
			return http.StatusOK, programPage([]string{"e1"}, false)
		}
	}}
	client := newClient(t, api, nil)

	title, err := client.Title(context.Background(), resolve.Ref{Kind: resolve.KindProgram, ID: "555"})
	if err != nil || title != "The Show" {
		t.Fatalf("unexpected program title %q (%v)", title, err)
	}
	title, err = client.Title(context.Background(), resolve.Ref{Kind: resolve.KindEpisode, ID: "e1"})
	if err != nil || title != "The Show" {
		t.Fatalf("unexpected episode title %q (%v)", title, err)
	}
}
