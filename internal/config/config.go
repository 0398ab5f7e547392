package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	CacheDir  string `toml:"cache_dir"`
	LogDir    string `toml:"log_dir"`
}

// API contains configuration for the GraphQL catalog endpoint.
type API struct {
	Endpoint              string  `toml:"endpoint"`
	RequestTimeoutSeconds int     `toml:"request_timeout"`
	MaxRetries            int     `toml:"max_retries"`
	InitialBackoffMillis  int     `toml:"initial_backoff_ms"`
	MaxBackoffMillis      int     `toml:"max_backoff_ms"`
	RateLimit             float64 `toml:"rate_limit"`
	RateBurst             int     `toml:"rate_burst"`
	UserAgent             string  `toml:"user_agent"`
}

// Download contains configuration for artifact transfers.
type Download struct {
	Workers            int `toml:"workers"`
	TimeoutSeconds     int `toml:"timeout"`
	MaxRetries         int `toml:"max_retries"`
	LockTimeoutSeconds int `toml:"lock_timeout"`
	MinAudioBytes      int `toml:"min_audio_bytes"`
	MinImageBytes      int `toml:"min_image_bytes"`
	// VerifyRemoteSize compares existing audio against the server's
	// Content-Length and repairs files that are shorter.
	VerifyRemoteSize bool `toml:"verify_remote_size"`
}

// Cache contains configuration for the GraphQL response cache.
type Cache struct {
	Enabled  bool `toml:"enabled"`
	TTLHours int  `toml:"ttl_hours"`
}

// Network contains outbound connection settings shared by every request.
type Network struct {
	Proxy string `toml:"proxy"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for audiothek.
//
// Configuration sections by subsystem:
//   - Paths: output, cache, and log directories
//   - API: GraphQL endpoint, request timeouts, retry budget, pacing
//   - Download: worker pool size, transfer timeouts, plausibility floors
//   - Cache: response cache toggle and TTL
//   - Network: optional HTTP/HTTPS/SOCKS5 proxy
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	API      API      `toml:"api"`
	Download Download `toml:"download"`
	Cache    Cache    `toml:"cache"`
	Network  Network  `toml:"network"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/audiothek/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("audiothek.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output directory and, when caching is on, the cache directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.OutputDir, err)
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Paths.CacheDir) != "" {
		if err := os.MkdirAll(c.Paths.CacheDir, 0o755); err != nil {
			return fmt.Errorf("create cache directory %q: %w", c.Paths.CacheDir, err)
		}
	}
	return nil
}

// CacheTTL returns the response cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// RequestTimeout returns the per-request timeout for catalog queries.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSeconds) * time.Second
}

// InitialBackoff returns the first retry delay shared by queries and transfers.
func (c *Config) InitialBackoff() time.Duration {
	return time.Duration(c.API.InitialBackoffMillis) * time.Millisecond
}

// MaxBackoff caps the retry delay.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.API.MaxBackoffMillis) * time.Millisecond
}

// DownloadTimeout returns the per-request timeout for artifact transfers.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

// LockTimeout returns how long an install waits for another process holding the artifact lock.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Download.LockTimeoutSeconds) * time.Second
}

// SetWorkers applies a worker count override, clamped to the supported range.
func (c *Config) SetWorkers(n int) {
	c.Download.Workers = clampWorkers(n)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "audiothek-downloader")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/audiothek-downloader"
	}
	return filepath.Join(home, ".cache", "audiothek-downloader")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
