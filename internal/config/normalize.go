package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeDownload()
	c.normalizeCache()
	if err := c.normalizeNetwork(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Endpoint = strings.TrimSpace(c.API.Endpoint)
	if c.API.Endpoint == "" {
		c.API.Endpoint = defaultEndpoint
	}
	c.API.UserAgent = strings.TrimSpace(c.API.UserAgent)
	if c.API.UserAgent == "" {
		c.API.UserAgent = defaultUserAgent
	}
	if c.API.RequestTimeoutSeconds <= 0 {
		c.API.RequestTimeoutSeconds = defaultRequestTimeout
	}
	if c.API.MaxRetries < 0 {
		c.API.MaxRetries = 0
	}
	if c.API.InitialBackoffMillis <= 0 {
		c.API.InitialBackoffMillis = defaultInitialBackoffMS
	}
	if c.API.MaxBackoffMillis < c.API.InitialBackoffMillis {
		c.API.MaxBackoffMillis = max(defaultMaxBackoffMS, c.API.InitialBackoffMillis)
	}
	if c.API.RateLimit <= 0 {
		c.API.RateLimit = defaultRateLimit
	}
	if c.API.RateBurst <= 0 {
		c.API.RateBurst = defaultRateBurst
	}
}

func (c *Config) normalizeDownload() {
	c.Download.Workers = clampWorkers(c.Download.Workers)
	if c.Download.TimeoutSeconds <= 0 {
		c.Download.TimeoutSeconds = defaultDownloadTimeout
	}
	if c.Download.MaxRetries < 0 {
		c.Download.MaxRetries = 0
	}
	if c.Download.LockTimeoutSeconds < 1 {
		c.Download.LockTimeoutSeconds = defaultLockTimeoutSeconds
	}
	if c.Download.MinAudioBytes <= 0 {
		c.Download.MinAudioBytes = defaultMinAudioBytes
	}
	if c.Download.MinImageBytes <= 0 {
		c.Download.MinImageBytes = defaultMinImageBytes
	}
}

func (c *Config) normalizeCache() {
	if CacheDisabledByEnv() {
		c.Cache.Enabled = false
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = defaultCacheTTLHours
	}
}

func (c *Config) normalizeNetwork() error {
	c.Network.Proxy = strings.TrimSpace(c.Network.Proxy)
	if c.Network.Proxy == "" {
		if value, ok := os.LookupEnv(ProxyEnv); ok {
			c.Network.Proxy = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// CacheDisabledByEnv reports whether AUDIOTHEK_DISABLE_CACHE is set to a truthy value.
func CacheDisabledByEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(DisableCacheEnv))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// ProxyURL parses the configured proxy. A nil URL means direct connections.
func (c *Config) ProxyURL() (*url.URL, error) {
	if c.Network.Proxy == "" {
		return nil, nil
	}
	return url.Parse(c.Network.Proxy)
}

func clampWorkers(n int) int {
	if n == 0 {
		return defaultWorkers
	}
	return min(max(n, minWorkers), maxWorkers)
}
