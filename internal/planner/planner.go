package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"audiothek/internal/catalog"
	"audiothek/internal/fileutil"
	"audiothek/internal/logging"
	"audiothek/internal/media"
	"audiothek/internal/services"
)

const (
	defaultMinAudioBytes = 1000
	defaultMinImageBytes = 100
)

// Prober reports the size the server would deliver for url.
// Implementations return an error wrapping services.ErrUnavailable when the
// source is gone.
type Prober interface {
	RemoteSize(ctx context.Context, url string) (int64, error)
}

// Options configures plausibility checks.
type Options struct {
	MinAudioBytes int64
	MinImageBytes int64
	// Prober, when set, is asked for the remote size of existing audio.
	Prober Prober
	Logger *slog.Logger
}

// Planner builds download plans.
type Planner struct {
	minAudio int64
	minImage int64
	prober   Prober
	logger   *slog.Logger
}

// New creates a planner.
func New(opts Options) *Planner {
	if opts.MinAudioBytes <= 0 {
		opts.MinAudioBytes = defaultMinAudioBytes
	}
	if opts.MinImageBytes <= 0 {
		opts.MinImageBytes = defaultMinImageBytes
	}
	return &Planner{
		minAudio: opts.MinAudioBytes,
		minImage: opts.MinImageBytes,
		prober:   opts.Prober,
		logger:   logging.NewComponentLogger(opts.Logger, "planner"),
	}
}

// Plan compares ep against the contents of dir.
func (p *Planner) Plan(ctx context.Context, ep catalog.Episode, dir string) (Plan, error) {
	base := ep.FileBase()
	local, err := Scan(dir, base, ep.ID, ep.Duration)
	if err != nil {
		return Plan{}, services.Wrap(services.ErrDownload, "planner", "scan", dir, err)
	}
	metadata, err := fileutil.EncodeJSON(ep.Metadata)
	if err != nil {
		return Plan{}, services.Wrap(services.ErrDownload, "planner", "encode metadata", ep.ID, err)
	}

	plan := Plan{ID: ep.ID, Dir: dir, PublishDate: ep.PublishDate}
	plan.Steps = append(plan.Steps,
		p.planAudio(ctx, ep, dir, base, local.Audio),
		p.planImage(KindCover, ep.Covers.Wide, filepath.Join(dir, base+".jpg"), local.Cover),
		p.planImage(KindSquareCover, ep.Covers.Square, filepath.Join(dir, base+squareSuffix+".jpg"), local.SquareCover),
		planDocument(KindMetadata, metadata, filepath.Join(dir, base+".json"), local.Metadata),
	)

	logger := logging.WithContext(ctx, p.logger)
	for _, step := range plan.Steps {
		if step.Pending() {
			logger.Debug("artifact planned",
				logging.String(logging.FieldEpisodeID, ep.ID),
				logging.String(logging.FieldFileKind, string(step.Kind)),
				logging.String("action", string(step.Action)),
				logging.String("reason", step.Reason),
			)
		}
	}
	return plan, nil
}

// PlanContainer plans the program-level metadata document and cover of c.
// The cover is only ever created; an existing one is kept as is.
func (p *Planner) PlanContainer(c *catalog.Container, publishDate, dir string) (Plan, error) {
	plan := Plan{ID: c.ID, Dir: dir, PublishDate: publishDate}
	metadata, err := fileutil.EncodeJSON(c.Metadata)
	if err != nil {
		return Plan{}, services.Wrap(services.ErrDownload, "planner", "encode container metadata", c.ID, err)
	}
	metaPath := filepath.Join(dir, c.ID+".json")
	plan.Steps = append(plan.Steps, planDocument(KindContainerMetadata, metadata, metaPath, statFile(metaPath)))

	coverPath := filepath.Join(dir, c.ID+".jpg")
	cover := Step{Kind: KindContainerCover, Action: ActionNoop, Path: coverPath}
	switch {
	case c.ImageURL == "":
		cover.Reason = "no remote image"
	case fileutil.Exists(coverPath):
		cover.Reason = "present"
	default:
		cover.Action = ActionCreate
		cover.Sources = []Source{{URL: c.ImageURL, Path: coverPath}}
		cover.Markers = fileutil.PartialMarkers(coverPath)
		cover.Reason = "missing"
	}
	plan.Steps = append(plan.Steps, cover)
	return plan, nil
}

func (p *Planner) planAudio(ctx context.Context, ep catalog.Episode, dir, base string, local []LocalAudio) Step {
	step := Step{Kind: KindAudio, Action: ActionNoop}
	best, ok := ep.Best()
	if !ok {
		step.Reason = "no remote audio"
		if len(local) > 0 {
			step.Path = local[0].Path
		}
		return step
	}

	sources := make([]Source, 0, len(ep.Variants))
	for _, v := range ep.Variants {
		sources = append(sources, Source{URL: v.URL, Path: filepath.Join(dir, base+v.Format.Ext()), Quality: v.Quality()})
	}

	if len(local) == 0 {
		step.Action = ActionCreate
		step.Path = sources[0].Path
		step.Sources = sources
		step.Markers = markersFor(sources)
		step.Reason = "missing"
		return step
	}

	primary := local[0]
	step.Path = primary.Path
	superseded := make([]string, 0, len(local))
	for _, file := range local {
		superseded = append(superseded, file.Path)
	}

	if reason, incomplete := p.incompleteAudio(ctx, ep, primary); incomplete {
		// Never fall below the local container: the truncated file's bitrate
		// estimate is meaningless, its format is not.
		floor := media.Quality{Format: primary.Quality.Format}
		for _, src := range sources {
			if media.Compare(media.Quality{Format: src.Quality.Format}, floor) < 0 {
				continue
			}
			if src.Quality.Format == primary.Quality.Format {
				src.Path = primary.Path
			}
			step.Sources = append(step.Sources, src)
		}
		if len(step.Sources) > 0 {
			step.Action = ActionRepair
			step.Superseded = superseded
			step.Markers = fileutil.PartialMarkers(primary.Path)
			step.Reason = reason
			return step
		}
	}

	if media.Outranks(best.Quality(), primary.Quality) {
		for _, src := range sources {
			if media.Outranks(src.Quality, primary.Quality) {
				step.Sources = append(step.Sources, src)
			}
		}
		step.Action = ActionReplace
		step.Superseded = superseded
		step.Markers = markersFor(step.Sources)
		step.Reason = fmt.Sprintf("remote %s outranks local %s", best.Quality(), primary.Quality)
		return step
	}

	step.Reason = fmt.Sprintf("local %s is at least remote %s", primary.Quality, best.Quality())
	return step
}

// incompleteAudio applies the local plausibility checks first and only asks
// the prober when they pass.
func (p *Planner) incompleteAudio(ctx context.Context, ep catalog.Episode, primary LocalAudio) (string, bool) {
	if primary.Size < p.minAudio {
		return fmt.Sprintf("size %d below minimum %d", primary.Size, p.minAudio), true
	}
	if len(fileutil.PartialMarkers(primary.Path)) > 0 {
		return "partial download marker present", true
	}
	if p.prober == nil {
		return "", false
	}
	for _, v := range ep.Variants {
		if v.Format != primary.Quality.Format {
			continue
		}
		remote, err := p.prober.RemoteSize(ctx, v.URL)
		switch {
		case err == nil && remote > primary.Size:
			return fmt.Sprintf("local size %d shorter than remote %d", primary.Size, remote), true
		case err == nil:
			return "", false
		case errors.Is(err, services.ErrUnavailable):
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "remote audio unavailable; keeping local file", "audio_unavailable",
				logging.String(logging.FieldEpisodeID, ep.ID),
				logging.String("url", v.URL),
				logging.String(logging.FieldImpact, "existing file kept"),
			)
			return "", false
		default:
			p.logger.Debug("remote size probe failed", logging.String("url", v.URL), logging.Error(err))
		}
	}
	return "", false
}

func (p *Planner) planImage(kind FileKind, url, path string, local *LocalFile) Step {
	step := Step{Kind: kind, Action: ActionNoop, Path: path}
	if local != nil {
		step.Path = local.Path
	}
	if url == "" {
		step.Reason = "no remote image"
		return step
	}
	source := []Source{{URL: url, Path: step.Path}}
	switch {
	case local == nil:
		step.Action = ActionCreate
		step.Reason = "missing"
	case local.Size < p.minImage:
		step.Action = ActionRepair
		step.Reason = fmt.Sprintf("size %d below minimum %d", local.Size, p.minImage)
	case len(fileutil.PartialMarkers(local.Path)) > 0:
		step.Action = ActionRepair
		step.Reason = "partial download marker present"
	default:
		step.Reason = "present"
		return step
	}
	step.Sources = source
	step.Markers = fileutil.PartialMarkers(step.Path)
	return step
}

// planDocument compares encoded against the file on disk byte for byte.
func planDocument(kind FileKind, encoded []byte, path string, local *LocalFile) Step {
	step := Step{Kind: kind, Action: ActionNoop, Path: path, Content: encoded}
	if local != nil {
		step.Path = local.Path
	}
	switch {
	case local == nil:
		step.Action = ActionCreate
		step.Reason = "missing"
	case fileutil.JSONMatches(step.Path, encoded):
		step.Reason = "unchanged"
	default:
		step.Action = ActionReplace
		step.Reason = "content changed"
	}
	return step
}

func markersFor(sources []Source) []string {
	var markers []string
	seen := make(map[string]struct{})
	for _, src := range sources {
		if _, ok := seen[src.Path]; ok {
			continue
		}
		seen[src.Path] = struct{}{}
		markers = append(markers, fileutil.PartialMarkers(src.Path)...)
	}
	return markers
}

func statFile(path string) *LocalFile {
	size, ok := fileutil.Size(path)
	if !ok {
		return nil
	}
	return &LocalFile{Path: path, Size: size}
}
