package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"audiothek/internal/catalog"
	"audiothek/internal/logging"
	"audiothek/internal/preflight"
	"audiothek/internal/quality"
	"audiothek/internal/resolve"
	"audiothek/internal/services"
)

const (
	searchProgramSets = "program-sets"
	searchCollections = "collections"
	searchAll         = "all"
)

// runFlags select what the root command does.
type runFlags struct {
	url                string
	id                 string
	updateFolders      bool
	migrateFolders     bool
	removeLowerQuality bool
	categoryID         string
	searchType         string
	searchLimit        int
}

func (r *runFlags) empty() bool {
	return strings.TrimSpace(r.url) == "" && strings.TrimSpace(r.id) == "" &&
		!r.updateFolders && !r.migrateFolders && !r.removeLowerQuality &&
		strings.TrimSpace(r.categoryID) == ""
}

// ref resolves --url or --id.
func (r *runFlags) ref() (resolve.Ref, error) {
	if raw := strings.TrimSpace(r.url); raw != "" {
		return resolve.URL(raw)
	}
	return resolve.ID(r.id)
}

func runRoot(cmd *cobra.Command, ctx *commandContext, run *runFlags) error {
	if run.empty() {
		return cmd.Help()
	}
	if run.categoryID != "" {
		return runSearch(cmd, ctx, run)
	}

	a, err := ctx.buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := preflight.Err(preflight.RunAll(cmd.Context(), a.cfg, nil)); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	color := colorEnabled(out)
	switch {
	case run.removeLowerQuality:
		decisions, err := quality.New(a.logger).Audit(cmd.Context(), a.cfg.Paths.OutputDir, ctx.flags.dryRun)
		fmt.Fprint(out, renderDecisions(decisions, ctx.flags.dryRun))
		return err
	case run.migrateFolders:
		report, err := a.orchestrator.MigrateFolders(cmd.Context())
		fmt.Fprint(out, renderMigration(report, ctx.flags.dryRun))
		return err
	case run.updateFolders:
		report, err := a.orchestrator.UpdateFolders(cmd.Context())
		fmt.Fprint(out, renderReport(report, color))
		if err != nil {
			return err
		}
		if report.Aborted {
			return context.Canceled
		}
		return nil
	}

	ref, err := run.ref()
	if err != nil {
		return err
	}
	report, err := a.orchestrator.Sync(cmd.Context(), ref)
	fmt.Fprint(out, renderReport(report, color))
	if err != nil && report.Listed == 0 {
		return err
	}
	if err != nil {
		logging.WarnWithContext(a.logger, "listing ended early", "listing_incomplete",
			logging.String(logging.FieldResource, ref.String()),
			logging.Int("listed", report.Listed),
			logging.Error(err),
			logging.String(logging.FieldImpact, "episodes after the failed page were not synced"),
		)
	}
	if report.Aborted {
		return context.Canceled
	}
	return nil
}

func runSearch(cmd *cobra.Command, ctx *commandContext, run *runFlags) error {
	kinds := strings.ToLower(strings.TrimSpace(run.searchType))
	switch kinds {
	case searchProgramSets, searchCollections, searchAll:
	default:
		return services.Wrap(services.ErrInvalidInput, "cli", "search", fmt.Sprintf("unknown --search-type %q", run.searchType), nil)
	}

	a, err := ctx.buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var results []catalog.SearchResult
	if kinds != searchCollections {
		found, err := a.catalog.ProgramSetsByCategory(cmd.Context(), run.categoryID, run.searchLimit)
		if err != nil {
			return err
		}
		results = append(results, found...)
	}
	if kinds != searchProgramSets {
		found, err := a.catalog.CollectionsByCategory(cmd.Context(), run.categoryID, run.searchLimit)
		if err != nil {
			return err
		}
		results = append(results, found...)
	}
	fmt.Fprint(cmd.OutOrStdout(), renderSearch(results))
	return nil
}
