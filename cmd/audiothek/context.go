package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"audiothek/internal/catalog"
	"audiothek/internal/config"
	"audiothek/internal/download"
	"audiothek/internal/logging"
	"audiothek/internal/planner"
	"audiothek/internal/respcache"
	"audiothek/internal/services"
	"audiothek/internal/workflow"
)

// globalFlags are the persistent flags that override config file values.
type globalFlags struct {
	configPath string
	outputDir  string
	cacheDir   string
	proxy      string
	logLevel   string
	workers    int
	noCache    bool
	dryRun     bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.configPath))
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "cli", "load config", "", err)
			return
		}
		if err := c.applyOverrides(cfg); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "cli", "apply flags", "", err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "cli", "ensure directories", "", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) applyOverrides(cfg *config.Config) error {
	f := c.flags
	if value := strings.TrimSpace(f.outputDir); value != "" {
		expanded, err := config.ExpandPath(value)
		if err != nil {
			return fmt.Errorf("--folder: %w", err)
		}
		cfg.Paths.OutputDir = expanded
	}
	if value := strings.TrimSpace(f.cacheDir); value != "" {
		expanded, err := config.ExpandPath(value)
		if err != nil {
			return fmt.Errorf("--cache-dir: %w", err)
		}
		cfg.Paths.CacheDir = expanded
	}
	if value := strings.TrimSpace(f.proxy); value != "" {
		cfg.Network.Proxy = value
	}
	if value := strings.ToLower(strings.TrimSpace(f.logLevel)); value != "" {
		cfg.Logging.Level = value
	}
	if f.workers != 0 {
		cfg.SetWorkers(f.workers)
	}
	if f.noCache {
		cfg.Cache.Enabled = false
	}
	return cfg.Validate()
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// app bundles the wired components for one invocation.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	cache        *respcache.Cache
	catalog      *catalog.Client
	orchestrator *workflow.Orchestrator
}

func (a *app) Close() error {
	return a.cache.Close()
}

func (c *commandContext) openCache(cfg *config.Config, logger *slog.Logger) (*respcache.Cache, error) {
	return respcache.Open(cfg.Paths.CacheDir, respcache.Options{
		TTL:      cfg.CacheTTL(),
		Disabled: !cfg.Cache.Enabled,
		Logger:   logger,
	})
}

func (c *commandContext) buildApp() (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "logger", "", err)
	}
	proxy, err := cfg.ProxyURL()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "proxy", cfg.Network.Proxy, err)
	}
	cache, err := c.openCache(cfg, logger)
	if err != nil {
		// The cache only saves round-trips; run without it.
		logging.WarnWithContext(logger, "response cache unavailable", "cache_open_failed",
			logging.String("path", cfg.Paths.CacheDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "every query goes to the network"),
		)
		cache = nil
	}

	client := catalog.NewClient(catalog.Options{
		Endpoint:       cfg.API.Endpoint,
		HTTPClient:     services.NewHTTPClient(proxy, cfg.RequestTimeout()),
		Cache:          cache,
		Logger:         logger,
		MaxRetries:     cfg.API.MaxRetries,
		Backoff:        cfg.InitialBackoff(),
		MaxBackoff:     cfg.MaxBackoff(),
		RateLimit:      rate.Limit(cfg.API.RateLimit),
		RateLimitBurst: cfg.API.RateBurst,
		UserAgent:      cfg.API.UserAgent,
	})
	executor := download.New(download.Options{
		HTTPClient:  services.NewHTTPClient(proxy, cfg.DownloadTimeout()),
		Logger:      logger,
		MaxRetries:  cfg.Download.MaxRetries,
		Backoff:     cfg.InitialBackoff(),
		MaxBackoff:  cfg.MaxBackoff(),
		LockTimeout: cfg.LockTimeout(),
		UserAgent:   cfg.API.UserAgent,
	})
	plannerOpts := planner.Options{
		MinAudioBytes: int64(cfg.Download.MinAudioBytes),
		MinImageBytes: int64(cfg.Download.MinImageBytes),
		Logger:        logger,
	}
	if cfg.Download.VerifyRemoteSize {
		plannerOpts.Prober = executor
	}
	orch := workflow.New(client, planner.New(plannerOpts), executor, workflow.Options{
		OutputDir: cfg.Paths.OutputDir,
		Workers:   cfg.Download.Workers,
		DryRun:    c.flags.dryRun,
		Logger:    logger,
	})
	return &app{
		cfg:          cfg,
		logger:       logger,
		cache:        cache,
		catalog:      client,
		orchestrator: orch,
	}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// colorEnabled reports whether w is a terminal that should get ANSI colour.
func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
