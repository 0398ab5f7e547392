// Package quality removes lower-quality audio duplicates from a synced tree.
//
// Files are grouped per directory by the episode id embedded in their names.
// Within a group the best file is kept and every file it outranks is removed,
// using the same rank the planner applies before replacing audio. A group
// with a single file is never touched, and neither is a group whose best
// file still has a partial download marker next to it.
package quality

import (
	"context"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"audiothek/internal/fileutil"
	"audiothek/internal/logging"
	"audiothek/internal/media"
	"audiothek/internal/planner"
	"audiothek/internal/services"
	"audiothek/internal/textutil"
)

// Decision marks one file for removal in favour of a better sibling.
type Decision struct {
	Path        string
	Quality     media.Quality
	KeptPath    string
	KeptQuality media.Quality
	// Removed is false in dry runs and when deletion failed.
	Removed bool
	Err     error
}

// Auditor scans synced folders.
type Auditor struct {
	logger *slog.Logger
}

// New creates an auditor.
func New(logger *slog.Logger) *Auditor {
	return &Auditor{logger: logging.NewComponentLogger(logger, "quality")}
}

// Audit walks root and returns one decision per lower-quality file. With
// dryRun set nothing is deleted.
func (a *Auditor) Audit(ctx context.Context, root string, dryRun bool) ([]Decision, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, services.Wrap(services.ErrInvalidInput, "quality", "audit", root+" is not a directory", err)
	}
	logger := logging.WithContext(ctx, a.logger)

	var decisions []Decision
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.WarnWithContext(logger, "skipping unreadable path", "audit_walk_failed",
				logging.String("path", path),
				logging.Error(err),
			)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		found, err := a.auditDir(path, dryRun)
		if err != nil {
			logging.WarnWithContext(logger, "folder not audited", "audit_dir_failed",
				logging.String("path", path),
				logging.Error(err),
			)
		}
		decisions = append(decisions, found...)
		return nil
	})
	return decisions, err
}

func (a *Auditor) auditDir(dir string, dryRun bool) ([]Decision, error) {
	groups, err := audioGroups(dir)
	if err != nil {
		return nil, err
	}
	var decisions []Decision
	for _, id := range slices.Sorted(maps.Keys(groups)) {
		files := groups[id]
		if len(files) < 2 {
			continue
		}
		set, err := planner.Scan(dir, files[0], id, 0)
		if err != nil {
			return decisions, err
		}
		if len(set.Audio) < 2 {
			continue
		}
		best := set.Audio[0]
		if len(fileutil.PartialMarkers(best.Path)) > 0 {
			a.logger.Debug("download in progress; group skipped", logging.String("path", best.Path))
			continue
		}
		for _, file := range set.Audio[1:] {
			if !media.Outranks(best.Quality, file.Quality) {
				continue
			}
			decision := Decision{Path: file.Path, Quality: file.Quality, KeptPath: best.Path, KeptQuality: best.Quality}
			if !dryRun {
				if err := os.Remove(file.Path); err != nil {
					decision.Err = err
				} else {
					decision.Removed = true
				}
			}
			a.log(decision, dryRun)
			decisions = append(decisions, decision)
		}
	}
	return decisions, nil
}

func (a *Auditor) log(d Decision, dryRun bool) {
	attrs := []logging.Attr{
		logging.String("path", d.Path),
		logging.String("quality", d.Quality.String()),
		logging.String("kept", d.KeptPath),
		logging.String("kept_quality", d.KeptQuality.String()),
	}
	switch {
	case dryRun:
		a.logger.Info("would remove lower-quality audio", logging.Args(attrs...)...)
	case d.Err != nil:
		logging.WarnWithContext(a.logger, "lower-quality audio not removed", "audit_remove_failed",
			append(attrs, logging.Error(d.Err))...)
	default:
		a.logger.Info("removed lower-quality audio", logging.Args(attrs...)...)
	}
}

// audioGroups maps episode ids to the stems of the audio files in dir.
func audioGroups(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := media.FormatFromPath(name); !ok {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		id := textutil.EpisodeIDFromBase(stem)
		groups[id] = append(groups[id], stem)
	}
	return groups, nil
}
