// Package resolve classifies catalog URLs and identifiers into resource
// references without touching the network.
package resolve

import (
	"regexp"
	"strings"

	"audiothek/internal/services"
)

// Kind is the type of catalog resource a reference points at.
type Kind string

const (
	KindProgram    Kind = "program"
	KindCollection Kind = "collection"
	KindEpisode    Kind = "episode"
)

// Ref identifies one catalog resource.
type Ref struct {
	Kind Kind
	ID   string
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID
}

var (
	urnSegmentPattern     = regexp.MustCompile(`/(urn:ard:[^/]+)/?$`)
	numericSegmentPattern = regexp.MustCompile(`/(\d+)/?$`)
	alphanumericPattern   = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// ID classifies a raw identifier. Episode and page URNs map to episodes and
// editorial collections; show URNs, other ARD URNs, and plain alphanumeric ids
// map to programs.
func ID(raw string) (Ref, error) {
	id := strings.TrimSpace(raw)
	switch {
	case id == "":
		return Ref{}, services.Wrap(services.ErrInvalidInput, "resolve", "id", "empty identifier", nil)
	case strings.HasPrefix(id, "urn:ard:episode:"):
		return Ref{Kind: KindEpisode, ID: id}, nil
	case strings.HasPrefix(id, "urn:ard:page:"):
		return Ref{Kind: KindCollection, ID: id}, nil
	case strings.HasPrefix(id, "urn:ard:"):
		return Ref{Kind: KindProgram, ID: id}, nil
	case alphanumericPattern.MatchString(id):
		return Ref{Kind: KindProgram, ID: id}, nil
	default:
		return Ref{}, services.Wrap(services.ErrInvalidInput, "resolve", "id", "unrecognized identifier "+id, nil)
	}
}

// URL classifies a catalog page URL by its trailing URN or numeric segment.
func URL(raw string) (Ref, error) {
	trimmed := strings.TrimSpace(raw)
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if match := urnSegmentPattern.FindStringSubmatch(trimmed); match != nil {
		return ID(match[1])
	}
	if match := numericSegmentPattern.FindStringSubmatch(trimmed); match != nil {
		return ID(match[1])
	}
	return Ref{}, services.Wrap(services.ErrInvalidInput, "resolve", "url", "no resource id in "+raw, nil)
}
