package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"audiothek/internal/catalog"
	"audiothek/internal/fileutil"
	"audiothek/internal/logging"
	"audiothek/internal/resolve"
	"audiothek/internal/services"
	"audiothek/internal/textutil"
)

// programFolders lists the directories below root that carry a leading id,
// sorted by name.
func programFolders(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrInvalidInput, "workflow", "list folders", fmt.Sprintf("output directory %s does not exist", root), nil)
		}
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "list folders", root, err)
	}
	var folders []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, ok := textutil.FolderID(entry.Name()); ok {
			folders = append(folders, entry.Name())
		}
	}
	slices.Sort(folders)
	return folders, nil
}

// UpdateFolders re-syncs every folder below the output directory whose name
// starts with a numeric id. A folder whose id the catalog no longer knows is
// reported as stale and left untouched. Other listing failures are recorded
// and the remaining folders are still processed; the pass only fails when no
// folder could be listed at all.
func (o *Orchestrator) UpdateFolders(ctx context.Context) (Report, error) {
	folders, err := programFolders(o.outputDir)
	if err != nil {
		return Report{}, err
	}
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("updating folders", logging.Int("folders", len(folders)), logging.String("output_dir", o.outputDir))

	total := Report{RunID: runID, DryRun: o.dryRun}
	for _, folder := range folders {
		if ctx.Err() != nil {
			total.Aborted = true
			break
		}
		id, _ := textutil.FolderID(folder)
		ref, err := resolve.ID(id)
		if err != nil {
			total.ListingErrors = append(total.ListingErrors, ListingError{Folder: folder, Err: err})
			continue
		}
		report, err := o.Sync(ctx, ref)
		total.Merge(report)
		switch {
		case err == nil:
		case catalog.IsNotFound(err):
			logging.WarnWithContext(logger, "folder no longer resolves; leaving it untouched", "folder_stale",
				logging.String("folder", folder),
				logging.String(logging.FieldImpact, "folder kept as is"),
			)
			total.Stale = append(total.Stale, folder)
			// Sync recorded the lookup failure; staleness replaces it.
			total.ListingErrors = slices.DeleteFunc(total.ListingErrors, func(le ListingError) bool {
				return le.Resource == ref.String() && catalog.IsNotFound(le.Err)
			})
		default:
			for i := range total.ListingErrors {
				if total.ListingErrors[i].Resource == ref.String() && total.ListingErrors[i].Folder == "" {
					total.ListingErrors[i].Folder = folder
				}
			}
		}
	}
	if !total.Aborted && total.Listed == 0 && len(total.ListingErrors) > 0 {
		return total, services.Wrap(services.ErrUpstream, "workflow", "update folders",
			fmt.Sprintf("none of %d folders could be listed", len(folders)), total.ListingErrors[0].Err)
	}
	return total, nil
}

// MigrationReport summarizes a MigrateFolders pass.
type MigrationReport struct {
	Renamed []string
	Skipped []string
	Failed  []ListingError
}

// MigrateFolders renames numeric-only folders to "<id> <title>". Folders
// whose title cannot be resolved, or whose target already exists, are
// skipped.
func (o *Orchestrator) MigrateFolders(ctx context.Context) (MigrationReport, error) {
	folders, err := programFolders(o.outputDir)
	if err != nil {
		return MigrationReport{}, err
	}
	logger := logging.WithContext(ctx, o.logger)
	var report MigrationReport
	for _, folder := range folders {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		id, _ := textutil.FolderID(folder)
		if id != folder {
			continue
		}
		ref, err := resolve.ID(id)
		if err != nil {
			report.Failed = append(report.Failed, ListingError{Folder: folder, Err: err})
			continue
		}
		title, err := o.catalog.Title(ctx, ref)
		if err != nil {
			logging.WarnWithContext(logger, "folder title lookup failed", "migrate_lookup_failed",
				logging.String("folder", folder),
				logging.Error(err),
			)
			report.Failed = append(report.Failed, ListingError{Resource: ref.String(), Folder: folder, Err: err})
			continue
		}
		target := textutil.FolderName(id, title)
		if target == folder {
			report.Skipped = append(report.Skipped, folder)
			continue
		}
		targetPath := filepath.Join(o.outputDir, target)
		if fileutil.Exists(targetPath) {
			logging.WarnWithContext(logger, "migration target already exists", "migrate_conflict",
				logging.String("folder", folder),
				logging.String("target", target),
			)
			report.Skipped = append(report.Skipped, folder)
			continue
		}
		if o.dryRun {
			logger.Info("would rename folder", logging.String("folder", folder), logging.String("target", target))
			report.Renamed = append(report.Renamed, target)
			continue
		}
		if err := os.Rename(filepath.Join(o.outputDir, folder), targetPath); err != nil {
			report.Failed = append(report.Failed, ListingError{Resource: ref.String(), Folder: folder, Err: err})
			continue
		}
		logger.Info("folder renamed", logging.String("folder", folder), logging.String("target", target))
		report.Renamed = append(report.Renamed, target)
	}
	return report, nil
}
