package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"audiothek/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv(config.DisableCacheEnv, "")
	t.Setenv(config.ProxyEnv, "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantCache := filepath.Join(tempHome, ".cache", "audiothek-downloader")
	if cfg.Paths.CacheDir != wantCache {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, wantCache)
	}
	if !filepath.IsAbs(cfg.Paths.OutputDir) {
		t.Fatalf("expected absolute output dir, got %q", cfg.Paths.OutputDir)
	}
	if cfg.API.Endpoint != "https://api.ardaudiothek.de/graphql" {
		t.Fatalf("unexpected endpoint: %q", cfg.API.Endpoint)
	}
	if cfg.Download.Workers != 4 {
		t.Fatalf("expected 4 workers by default, got %d", cfg.Download.Workers)
	}
	if !cfg.Cache.Enabled {
		t.Fatal("expected cache enabled by default")
	}
	if got := cfg.CacheTTL().Hours(); got != 6 {
		t.Fatalf("expected 6h cache ttl, got %v", got)
	}
	if cfg.Network.Proxy != "" {
		t.Fatalf("expected no proxy, got %q", cfg.Network.Proxy)
	}
}

func TestLoadUsesXDGCacheHome(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	xdg := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", xdg)
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := filepath.Join(xdg, "audiothek-downloader")
	if cfg.Paths.CacheDir != want {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, want)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv(config.DisableCacheEnv, "")

	configPath := filepath.Join(t.TempDir(), "audiothek.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"output_dir": "~/podcasts",
			"cache_dir":  "~/cache",
		},
		"download": map[string]any{
			"workers": 64,
		},
		"cache": map[string]any{
			"ttl_hours": 2,
		},
		"network": map[string]any{
			"proxy": "socks5://127.0.0.1:1080",
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal toml: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "podcasts") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Download.Workers != 16 {
		t.Fatalf("expected workers clamped to 16, got %d", cfg.Download.Workers)
	}
	if cfg.Cache.TTLHours != 2 {
		t.Fatalf("unexpected ttl: %d", cfg.Cache.TTLHours)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.InitialBackoff() != 500*time.Millisecond || cfg.MaxBackoff() != 8*time.Second {
		t.Fatalf("unexpected backoff: %v..%v", cfg.InitialBackoff(), cfg.MaxBackoff())
	}
	proxy, err := cfg.ProxyURL()
	if err != nil || proxy == nil || proxy.Scheme != "socks5" {
		t.Fatalf("unexpected proxy: %v (%v)", proxy, err)
	}
}

func TestDisableCacheEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, value := range []string{"1", "true", "YES"} {
		t.Setenv(config.DisableCacheEnv, value)
		cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.Cache.Enabled {
			t.Fatalf("expected cache disabled for %q", value)
		}
	}

	t.Setenv(config.DisableCacheEnv, "0")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Cache.Enabled {
		t.Fatal("expected cache enabled for 0")
	}
}

func TestProxyEnvironmentFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.ProxyEnv, "http://proxy.local:3128")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Network.Proxy != "http://proxy.local:3128" {
		t.Fatalf("unexpected proxy: %q", cfg.Network.Proxy)
	}
}

func TestValidateRejectsBadProxyScheme(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(configPath, []byte("[network]\nproxy = \"ftp://example.com\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected error for ftp proxy")
	}
	if !strings.Contains(err.Error(), "network.proxy") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetWorkersClamps(t *testing.T) {
	cfg := config.Default()
	cases := map[int]int{-3: 1, 0: 4, 1: 1, 9: 9, 17: 16}
	for in, want := range cases {
		cfg.SetWorkers(in)
		if cfg.Download.Workers != want {
			t.Fatalf("SetWorkers(%d) = %d want %d", in, cfg.Download.Workers, want)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.DisableCacheEnv, "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Download.Workers != 4 {
		t.Fatalf("unexpected workers from sample: %d", cfg.Download.Workers)
	}
	if !cfg.Download.VerifyRemoteSize {
		t.Fatal("expected sample to enable remote size verification")
	}
}
