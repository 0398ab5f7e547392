package workflow

import (
	"context"
	"iter"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"audiothek/internal/catalog"
	"audiothek/internal/download"
	"audiothek/internal/logging"
	"audiothek/internal/planner"
	"audiothek/internal/resolve"
	"audiothek/internal/services"
	"audiothek/internal/textutil"
)

const (
	DefaultWorkers = 4
	MaxWorkers     = 16
)

// Catalog lists episodes and resolves display titles.
type Catalog interface {
	Episodes(ctx context.Context, ref resolve.Ref) iter.Seq2[catalog.Episode, error]
	Title(ctx context.Context, ref resolve.Ref) (string, error)
}

// Planner turns catalog records into download plans.
type Planner interface {
	Plan(ctx context.Context, ep catalog.Episode, dir string) (planner.Plan, error)
	PlanContainer(c *catalog.Container, publishDate, dir string) (planner.Plan, error)
}

// Executor carries out download plans.
type Executor interface {
	Execute(ctx context.Context, plan planner.Plan) download.Outcome
}

// Options configures the orchestrator.
type Options struct {
	OutputDir string
	Workers   int
	// DryRun plans every episode but executes nothing.
	DryRun bool
	Logger *slog.Logger
}

// Orchestrator runs sync passes.
type Orchestrator struct {
	catalog   Catalog
	planner   Planner
	executor  Executor
	outputDir string
	workers   int
	dryRun    bool
	logger    *slog.Logger
}

// New creates an orchestrator.
func New(cat Catalog, plans Planner, exec Executor, opts Options) *Orchestrator {
	return &Orchestrator{
		catalog:   cat,
		planner:   plans,
		executor:  exec,
		outputDir: opts.OutputDir,
		workers:   ClampWorkers(opts.Workers),
		dryRun:    opts.DryRun,
		logger:    logging.NewComponentLogger(opts.Logger, "workflow"),
	}
}

// ClampWorkers bounds n to 1..MaxWorkers, mapping zero to DefaultWorkers.
func ClampWorkers(n int) int {
	switch {
	case n == 0:
		return DefaultWorkers
	case n < 1:
		return 1
	case n > MaxWorkers:
		return MaxWorkers
	default:
		return n
	}
}

// Sync mirrors every episode of ref into the output directory.
//
// The returned error is non-nil when the listing could not be completed;
// episodes listed before the failure are still processed and counted.
// Per-episode failures only show up in the report.
func (o *Orchestrator) Sync(ctx context.Context, ref resolve.Ref) (Report, error) {
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = services.WithRunID(ctx, runID)
	}
	ctx = services.WithResource(ctx, ref.String())
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("sync started",
		logging.Int("workers", o.workers),
		logging.Bool("dry_run", o.dryRun),
		logging.String("output_dir", o.outputDir),
	)

	t := &tally{report: Report{RunID: runID, Resources: []string{ref.String()}, DryRun: o.dryRun}}
	var pool errgroup.Group
	pool.SetLimit(o.workers)
	// slots gates dispatch so an abort can interrupt the wait for a free worker.
	slots := make(chan struct{}, o.workers)
	dispatch := func(fn func()) bool {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return false
		}
		if ctx.Err() != nil {
			<-slots
			return false
		}
		pool.Go(func() error {
			defer func() { <-slots }()
			fn()
			return nil
		})
		return true
	}

	folders := existingFolders(o.outputDir)
	var listErr error
	listed, notDispatched := 0, 0
	aborted := false
	containerPlanned := false
	for ep, err := range o.catalog.Episodes(ctx, ref) {
		if ctx.Err() != nil {
			aborted = true
			break
		}
		if err != nil {
			listErr = err
			break
		}
		listed++
		dir := filepath.Join(o.outputDir, folderFor(folders, ep.FolderName()))
		if !containerPlanned && ep.Container != nil {
			containerPlanned = true
			container, publishDate := ep.Container, ep.PublishDate
			dispatch(func() { o.syncContainer(ctx, t, container, publishDate, dir) })
		}
		if !dispatch(func() { o.syncEpisode(ctx, t, ep, dir) }) {
			logging.WarnWithContext(logger, "abort requested; episode not dispatched", "episode_not_dispatched",
				logging.String(logging.FieldEpisodeID, ep.ID),
			)
			notDispatched++
			aborted = true
			break
		}
	}
	_ = pool.Wait()

	report := t.snapshot()
	report.Listed = listed
	report.NotDispatched = notDispatched
	report.Aborted = aborted
	if listErr != nil {
		report.ListingErrors = append(report.ListingErrors, ListingError{Resource: ref.String(), Err: listErr})
	}
	logger.Info("sync finished",
		logging.Int("listed", report.Listed),
		logging.Int("created", report.Created),
		logging.Int("replaced", report.Replaced),
		logging.Int("repaired", report.Repaired),
		logging.Int("skipped", report.Skipped),
		logging.Int("unavailable", report.Unavailable),
		logging.Int("failed", report.Failed),
		logging.Int("not_dispatched", report.NotDispatched),
		logging.Bool("aborted", report.Aborted),
	)
	return report, listErr
}

func (o *Orchestrator) syncEpisode(ctx context.Context, t *tally, ep catalog.Episode, dir string) {
	logger := logging.WithContext(ctx, o.logger)
	resource, _ := services.ResourceFromContext(ctx)
	plan, err := o.planner.Plan(ctx, ep, dir)
	if err != nil {
		logging.WarnWithContext(logger, "episode not planned", "plan_failed",
			logging.String(logging.FieldEpisodeID, ep.ID),
			logging.Error(err),
		)
		t.record(OutcomeFailed, &Failure{Resource: resource, ID: ep.ID, Title: ep.Title, Err: err})
		return
	}

	if o.dryRun {
		for _, step := range plan.Pending() {
			logger.Info("would "+string(step.Action),
				logging.String(logging.FieldEpisodeID, ep.ID),
				logging.String(logging.FieldFileKind, string(step.Kind)),
				logging.String("path", step.Path),
				logging.String("reason", step.Reason),
			)
		}
		t.record(plannedOutcome(plan), nil)
		return
	}

	outcome, err := classify(o.executor.Execute(ctx, plan).Results)
	var failure *Failure
	if err != nil {
		failure = &Failure{Resource: resource, ID: ep.ID, Title: ep.Title, Err: err}
	}
	logger.Debug("episode processed",
		logging.String(logging.FieldEpisodeID, ep.ID),
		logging.String("outcome", string(outcome)),
	)
	t.record(outcome, failure)
}

// syncContainer mirrors the program-level files. They are not counted as an
// episode; failures are still listed.
func (o *Orchestrator) syncContainer(ctx context.Context, t *tally, c *catalog.Container, publishDate, dir string) {
	logger := logging.WithContext(ctx, o.logger)
	resource, _ := services.ResourceFromContext(ctx)
	plan, err := o.planner.PlanContainer(c, publishDate, dir)
	if err == nil && o.dryRun {
		for _, step := range plan.Pending() {
			logger.Info("would "+string(step.Action),
				logging.String(logging.FieldFileKind, string(step.Kind)),
				logging.String("path", step.Path),
			)
		}
		return
	}
	outcome := OutcomeFailed
	if err == nil {
		outcome, err = classify(o.executor.Execute(ctx, plan).Results)
	}
	switch {
	case err == nil:
	case outcome == OutcomeUnavailable:
		logging.WarnWithContext(logger, "program cover unavailable", "container_unavailable",
			logging.String("container_id", c.ID),
			logging.Error(err),
		)
	default:
		logging.WarnWithContext(logger, "program files not mirrored", "container_failed",
			logging.String("container_id", c.ID),
			logging.Error(err),
		)
		t.record("", &Failure{Resource: resource, ID: c.ID, Title: strings.TrimSpace(c.Title), Err: err})
	}
}

// existingFolders maps folder ids to the folder names already present in
// root. The first name in sort order wins.
func existingFolders(root string) map[string]string {
	names, err := programFolders(root)
	if err != nil {
		return nil
	}
	folders := make(map[string]string, len(names))
	for _, name := range names {
		id, _ := textutil.FolderID(name)
		if _, ok := folders[id]; !ok {
			folders[id] = name
		}
	}
	return folders
}

// folderFor keeps episodes in an existing folder for the same id, so a
// renamed program does not start a second copy of its archive.
func folderFor(existing map[string]string, name string) string {
	id, ok := textutil.FolderID(name)
	if !ok {
		return name
	}
	if current, found := existing[id]; found {
		return current
	}
	return name
}
