package config

const (
	defaultOutputDir          = "./output"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultEndpoint           = "https://api.ardaudiothek.de/graphql"
	defaultUserAgent          = "audiothek-downloader/dev"
	defaultRequestTimeout     = 30
	defaultAPIRetries         = 3
	defaultInitialBackoffMS   = 500
	defaultMaxBackoffMS       = 8000
	defaultRateLimit          = 8
	defaultRateBurst          = 16
	defaultWorkers            = 4
	minWorkers                = 1
	maxWorkers                = 16
	defaultDownloadTimeout    = 300
	defaultDownloadRetries    = 3
	defaultLockTimeoutSeconds = 10
	defaultMinAudioBytes      = 1000
	defaultMinImageBytes      = 100
	defaultCacheTTLHours      = 6
)

// DisableCacheEnv names the environment toggle that turns the response cache off.
const DisableCacheEnv = "AUDIOTHEK_DISABLE_CACHE"

// ProxyEnv names the environment fallback for the outbound proxy URL.
const ProxyEnv = "AUDIOTHEK_PROXY"

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			CacheDir:  defaultCacheDir(),
		},
		API: API{
			Endpoint:              defaultEndpoint,
			RequestTimeoutSeconds: defaultRequestTimeout,
			MaxRetries:            defaultAPIRetries,
			InitialBackoffMillis:  defaultInitialBackoffMS,
			MaxBackoffMillis:      defaultMaxBackoffMS,
			RateLimit:             defaultRateLimit,
			RateBurst:             defaultRateBurst,
			UserAgent:             defaultUserAgent,
		},
		Download: Download{
			Workers:            defaultWorkers,
			TimeoutSeconds:     defaultDownloadTimeout,
			MaxRetries:         defaultDownloadRetries,
			LockTimeoutSeconds: defaultLockTimeoutSeconds,
			MinAudioBytes:      defaultMinAudioBytes,
			MinImageBytes:      defaultMinImageBytes,
			VerifyRemoteSize:   true,
		},
		Cache: Cache{
			Enabled:  true,
			TTLHours: defaultCacheTTLHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
