package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateNetwork(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set when cache.enabled is true")
	}
	return nil
}

func (c *Config) validateAPI() error {
	parsed, err := url.Parse(c.API.Endpoint)
	if err != nil {
		return fmt.Errorf("api.endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.endpoint must be an http(s) URL, got %q", c.API.Endpoint)
	}
	return ensurePositiveMap(map[string]int{
		"api.request_timeout":   c.API.RequestTimeoutSeconds,
		"download.timeout":      c.Download.TimeoutSeconds,
		"download.lock_timeout": c.Download.LockTimeoutSeconds,
		"cache.ttl_hours":       c.Cache.TTLHours,
	})
}

func (c *Config) validateNetwork() error {
	if c.Network.Proxy == "" {
		return nil
	}
	parsed, err := url.Parse(c.Network.Proxy)
	if err != nil {
		return fmt.Errorf("network.proxy: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return fmt.Errorf("network.proxy: unsupported scheme %q (use http, https, or socks5)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("network.proxy: missing host in %q", c.Network.Proxy)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
