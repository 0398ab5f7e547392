package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

type cliTestEnv struct {
	configPath string
	outputDir  string
	api        *httptest.Server
	cdn        *httptest.Server
}

// setupCLITestEnv starts a fake catalog serving program 555 with one episode
// and writes a config pointing at it. handle overrides the GraphQL answer.
func setupCLITestEnv(t *testing.T, handle func(op string) (int, any)) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("AUDIOTHEK_DISABLE_CACHE", "")
	t.Setenv("AUDIOTHEK_PROXY", "")
	t.Setenv("NO_COLOR", "1")

	env := &cliTestEnv{outputDir: filepath.Join(base, "out")}
	env.cdn = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size := 300
		if strings.HasPrefix(r.URL.Path, "/audio/") {
			size = 160000
		}
		w.Header().Set("Content-Length", strconv.Itoa(size))
		if r.Method != http.MethodHead {
			_, _ = w.Write(bytes.Repeat([]byte{0xFF}, size))
		}
	}))
	t.Cleanup(env.cdn.Close)

	if handle == nil {
		handle = env.programHandler
	}
	env.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OperationName string `json:"operationName"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		status, body := handle(req.OperationName)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(env.api.Close)

	env.configPath = filepath.Join(base, "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"output_dir": env.outputDir,
			"cache_dir":  filepath.Join(base, "cache"),
		},
		"api": map[string]any{
			"endpoint":           env.api.URL,
			"max_retries":        0,
			"initial_backoff_ms": 1,
			"max_backoff_ms":     2,
			"rate_limit":         1000.0,
		},
		"download": map[string]any{
			"max_retries": 0,
		},
		"logging": map[string]any{
			"level": "error",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(env.configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (env *cliTestEnv) programHandler(op string) (int, any) {
	if op != "ProgramSetEpisodesQuery" {
		return http.StatusOK, map[string]any{"data": map[string]any{"result": nil}}
	}
	node := map[string]any{
		"id":          "e1",
		"title":       "Folge eins",
		"description": "Beschreibung",
		"summary":     nil,
		"duration":    10,
		"publishDate": "2024-01-02T03:04:05Z",
		"image":       map[string]any{"url": env.cdn.URL + "/img/e1?w={width}"},
		"programSet":  map[string]any{"id": "555", "title": "Krimi", "path": "/sendung/krimi/555/"},
		"audios":      []any{map[string]any{"url": env.cdn.URL + "/audio/e1_128k.mp3", "downloadUrl": env.cdn.URL + "/audio/e1_128k.mp4"}},
	}
	return http.StatusOK, map[string]any{"data": map[string]any{"result": map[string]any{
		"id":    "555",
		"title": "Krimi",
		"image": map[string]any{"url": env.cdn.URL + "/img/show?w={width}"},
		"items": map[string]any{
			"pageInfo": map[string]any{"hasNextPage": false, "endCursor": ""},
			"nodes":    []any{node},
		},
	}}}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
