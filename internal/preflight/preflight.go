package preflight

import (
	"context"
	"net/http"
	"strings"

	"audiothek/internal/config"
	"audiothek/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory checks for the given config. The endpoint
// probe is added when client is non-nil.
func RunAll(ctx context.Context, cfg *config.Config, client *http.Client) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Output directory (always checked)
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))

	if cfg.Cache.Enabled && !config.CacheDisabledByEnv() {
		results = append(results, CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir))
	}

	if client != nil {
		results = append(results, CheckEndpoint(ctx, client, cfg.API.Endpoint, cfg.API.UserAgent))
	}

	return results
}

// Err folds failed results into a configuration error, or returns nil when
// every check passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name+": "+r.Detail)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check", strings.Join(failed, "; "), nil)
}
