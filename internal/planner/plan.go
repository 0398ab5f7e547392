package planner

import (
	"audiothek/internal/media"
)

// FileKind names one artifact of an episode or container.
type FileKind string

const (
	KindAudio             FileKind = "audio"
	KindCover             FileKind = "cover"
	KindSquareCover       FileKind = "cover_square"
	KindMetadata          FileKind = "metadata"
	KindContainerMetadata FileKind = "container_metadata"
	KindContainerCover    FileKind = "container_cover"
)

// Action is the decision taken for one artifact during a sync pass.
type Action string

const (
	ActionNoop    Action = "noop"
	ActionCreate  Action = "create"
	ActionReplace Action = "replace"
	ActionRepair  Action = "repair"
)

// Source is a URL an artifact can be fetched from and the path it installs to.
type Source struct {
	URL     string
	Path    string
	Quality media.Quality
}

// Step is the planned action for one artifact.
type Step struct {
	Kind   FileKind
	Action Action
	// Path is the artifact's current or intended location.
	Path string
	// Sources are tried in order until one installs.
	Sources []Source
	// Content is written verbatim for metadata steps.
	Content []byte
	// Superseded files are removed once a source has been installed.
	Superseded []string
	// Markers are leftovers of interrupted writes, removed after install.
	Markers []string
	Reason  string
}

// Pending reports whether the step requires any filesystem change.
func (s Step) Pending() bool {
	return s.Action != ActionNoop
}

// Plan is the ordered set of steps for one episode or container.
type Plan struct {
	ID          string
	Dir         string
	PublishDate string
	Steps       []Step
}

// Pending returns the steps that require work.
func (p Plan) Pending() []Step {
	var pending []Step
	for _, step := range p.Steps {
		if step.Pending() {
			pending = append(pending, step)
		}
	}
	return pending
}

// Step returns the step for kind.
func (p Plan) Step(kind FileKind) (Step, bool) {
	for _, step := range p.Steps {
		if step.Kind == kind {
			return step, true
		}
	}
	return Step{}, false
}
