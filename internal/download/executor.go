package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"audiothek/internal/fileutil"
	"audiothek/internal/logging"
	"audiothek/internal/planner"
	"audiothek/internal/services"
)

const (
	defaultRetries     = 3
	defaultBackoff     = time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultLockTimeout = 10 * time.Second
	defaultUserAgent   = "audiothek-downloader"
)

// Options configures the executor.
type Options struct {
	HTTPClient  *http.Client
	Logger      *slog.Logger
	MaxRetries  int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	LockTimeout time.Duration
	UserAgent   string
}

// Executor performs download plans.
type Executor struct {
	http        *http.Client
	logger      *slog.Logger
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	lockTimeout time.Duration
	userAgent   string
}

// New creates an executor.
func New(opts Options) *Executor {
	if opts.HTTPClient == nil {
		opts.HTTPClient = services.NewHTTPClient(nil, 5*time.Minute)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Executor{
		http:        opts.HTTPClient,
		logger:      logging.NewComponentLogger(opts.Logger, "download"),
		maxRetries:  opts.MaxRetries,
		backoff:     opts.Backoff,
		maxBackoff:  opts.MaxBackoff,
		lockTimeout: opts.LockTimeout,
		userAgent:   opts.UserAgent,
	}
}

// Result is the outcome of one step.
type Result struct {
	Kind   planner.FileKind
	Action planner.Action
	// Path is where the artifact ended up; empty when nothing was installed.
	Path   string
	Source string
	Bytes  int64
	Err    error
}

// Outcome collects the results of one plan.
type Outcome struct {
	ID      string
	Results []Result
}

// Failed returns the results that carry an error.
func (o Outcome) Failed() []Result {
	var failed []Result
	for _, r := range o.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err joins every per-file error, or returns nil.
func (o Outcome) Err() error {
	var errs []error
	for _, r := range o.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", r.Kind, r.Err))
	}
	return errors.Join(errs...)
}

// Execute runs every pending step of plan. Cancelling ctx does not interrupt
// a plan that has started; transfers are bounded by the HTTP client timeout.
func (e *Executor) Execute(ctx context.Context, plan planner.Plan) Outcome {
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, e.logger)
	outcome := Outcome{ID: plan.ID}
	pending := plan.Pending()
	if len(pending) == 0 {
		return outcome
	}
	if err := os.MkdirAll(plan.Dir, 0o755); err != nil {
		for _, step := range pending {
			outcome.Results = append(outcome.Results, Result{
				Kind:   step.Kind,
				Action: step.Action,
				Err:    services.Wrap(services.ErrDownload, "download", "create folder", plan.Dir, err),
			})
		}
		return outcome
	}
	for _, step := range pending {
		result := e.runStep(ctx, plan, step)
		if result.Err != nil {
			event := "artifact_failed"
			if errors.Is(result.Err, services.ErrUnavailable) {
				event = "artifact_unavailable"
			}
			logging.WarnWithContext(logger, "artifact not installed", event,
				logging.String(logging.FieldEpisodeID, plan.ID),
				logging.String(logging.FieldFileKind, string(step.Kind)),
				logging.String("action", string(step.Action)),
				logging.Error(result.Err),
			)
		} else {
			logger.Info("artifact installed",
				logging.String(logging.FieldEpisodeID, plan.ID),
				logging.String(logging.FieldFileKind, string(step.Kind)),
				logging.String("action", string(step.Action)),
				logging.String("path", result.Path),
				logging.Int64("bytes", result.Bytes),
			)
		}
		outcome.Results = append(outcome.Results, result)
	}
	return outcome
}

func (e *Executor) runStep(ctx context.Context, plan planner.Plan, step planner.Step) Result {
	result := Result{Kind: step.Kind, Action: step.Action}
	release, err := fileutil.Lock(ctx, step.Path, e.lockTimeout)
	if err != nil {
		result.Err = services.Wrap(services.ErrDownload, "download", "lock", step.Path, err)
		return result
	}
	defer release()

	if step.Content != nil {
		if err := fileutil.WriteFileAtomic(step.Path, step.Content); err != nil {
			result.Err = services.Wrap(services.ErrDownload, "download", "write", step.Path, err)
			return result
		}
		result.Path = step.Path
		result.Bytes = int64(len(step.Content))
	} else {
		var lastErr error
		for _, src := range step.Sources {
			written, err := e.fetch(ctx, src.URL, src.Path, step.Kind == planner.KindAudio)
			if err == nil {
				result.Path, result.Source, result.Bytes = src.Path, src.URL, written
				break
			}
			lastErr = err
			if len(step.Sources) > 1 {
				e.logger.Info("source failed; trying next variant",
					logging.String(logging.FieldEpisodeID, plan.ID),
					logging.String("url", src.URL),
					logging.Error(err),
				)
			}
		}
		if result.Path == "" {
			if lastErr == nil {
				lastErr = services.Wrap(services.ErrUnavailable, "download", string(step.Kind), "no sources", nil)
			}
			result.Err = lastErr
			return result
		}
	}

	e.finish(plan, step, result.Path)
	return result
}

// finish stamps the installed file and clears what it supersedes. Failures
// here leave a complete file in place, so they are logged and not reported.
func (e *Executor) finish(plan planner.Plan, step planner.Step, installed string) {
	if plan.PublishDate != "" {
		if err := fileutil.SetModTime(installed, plan.PublishDate); err != nil {
			e.logger.Debug("modification time not set", logging.String("path", installed), logging.Error(err))
		}
	}
	var stale []string
	for _, path := range step.Superseded {
		if path != installed {
			stale = append(stale, path)
		}
	}
	stale = append(stale, step.Markers...)
	if err := fileutil.RemoveAll(stale); err != nil {
		logging.WarnWithContext(e.logger, "superseded file not removed", "cleanup_failed",
			logging.String(logging.FieldEpisodeID, plan.ID),
			logging.Error(err),
		)
	}
	for _, path := range stale {
		e.logger.Debug("removed superseded file", logging.String("path", path))
	}
}
