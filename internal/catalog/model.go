package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"audiothek/internal/media"
	"audiothek/internal/resolve"
	"audiothek/internal/textutil"
)

// ImageWidth replaces the {width} placeholder of image URL templates.
const ImageWidth = "2000"

// Variant is one downloadable rendition of an episode's audio.
type Variant struct {
	URL     string
	Format  media.Format
	Bitrate int
	// Direct marks a downloadUrl, as opposed to a streaming url.
	Direct bool
}

// Quality returns the variant's rank inputs.
func (v Variant) Quality() media.Quality {
	return media.Quality{Format: v.Format, Bitrate: v.Bitrate}
}

// Covers holds the resolved cover art URLs. Either may be empty.
type Covers struct {
	Wide   string
	Square string
}

// ProgramSet names the show an episode belongs to.
type ProgramSet struct {
	ID    string
	Title string
}

// Episode is the normalized record for one catalog item.
type Episode struct {
	ID          string
	Title       string
	PublishDate string
	Duration    int
	// Variants are ordered best first.
	Variants   []Variant
	Covers     Covers
	ProgramSet ProgramSet
	Metadata   EpisodeMetadata
	// Container is the listed program or collection, nil for direct lookups.
	Container *Container
}

// Best returns the preferred audio variant.
func (e Episode) Best() (Variant, bool) {
	if len(e.Variants) == 0 {
		return Variant{}, false
	}
	return e.Variants[0], true
}

// FileBase returns the on-disk base name shared by all of the episode's files.
func (e Episode) FileBase() string {
	return textutil.FileBase(e.Title, e.ID)
}

// FolderName returns the directory the episode is mirrored into: its own
// program set, then the listed container, then "episode".
func (e Episode) FolderName() string {
	switch {
	case e.ProgramSet.ID != "":
		return textutil.FolderName(e.ProgramSet.ID, e.ProgramSet.Title)
	case e.Container != nil && e.Container.ID != "":
		return textutil.FolderName(e.Container.ID, e.Container.Title)
	default:
		return "episode"
	}
}

// EpisodeMetadata is the sidecar JSON document written next to each episode.
// Raw values keep the API's nulls and number formatting intact.
type EpisodeMetadata struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description json.RawMessage    `json:"description"`
	Summary     json.RawMessage    `json:"summary"`
	Duration    json.RawMessage    `json:"duration"`
	PublishDate json.RawMessage    `json:"publishDate"`
	ProgramSet  ProgramSetMetadata `json:"programSet"`
}

// ProgramSetMetadata is the programSet block of EpisodeMetadata.
type ProgramSetMetadata struct {
	ID    json.RawMessage `json:"id"`
	Title json.RawMessage `json:"title"`
	Path  json.RawMessage `json:"path"`
}

// Container describes a listed program set or editorial collection.
type Container struct {
	Ref      resolve.Ref
	ID       string
	Title    string
	ImageURL string
	Metadata Fields
}

// Fields is an ordered JSON object.
type Fields []Field

// Field is one key of an ordered JSON object.
type Field struct {
	Key   string
	Value json.RawMessage
}

// MarshalJSON renders the fields in order, writing null for absent values.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(field.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(field.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type rawImage struct {
	URL    string `json:"url"`
	URL1X1 string `json:"url1X1"`
}

type rawAudio struct {
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl"`
}

type rawProgramSet struct {
	ID    json.RawMessage `json:"id"`
	Title json.RawMessage `json:"title"`
	Path  json.RawMessage `json:"path"`
}

type rawNode struct {
	ID          json.RawMessage `json:"id"`
	Title       json.RawMessage `json:"title"`
	Description json.RawMessage `json:"description"`
	Summary     json.RawMessage `json:"summary"`
	Duration    json.RawMessage `json:"duration"`
	PublishDate json.RawMessage `json:"publishDate"`
	Image       *rawImage       `json:"image"`
	ProgramSet  *rawProgramSet  `json:"programSet"`
	Audios      []*rawAudio     `json:"audios"`
}

var errMalformedEpisode = errors.New("malformed episode")

func decodeEpisode(data json.RawMessage) (Episode, error) {
	var node rawNode
	if err := json.Unmarshal(data, &node); err != nil {
		return Episode{}, fmt.Errorf("%w: %w", errMalformedEpisode, err)
	}
	id := strings.TrimSpace(scalarString(node.ID))
	if id == "" {
		return Episode{}, fmt.Errorf("%w: missing id", errMalformedEpisode)
	}
	variants := buildVariants(node.Audios)
	if len(variants) == 0 {
		return Episode{}, fmt.Errorf("%w: episode %s has no audio", errMalformedEpisode, id)
	}

	title := scalarString(node.Title)
	if title == "" {
		title = id
	}
	ep := Episode{
		ID:          id,
		Title:       title,
		PublishDate: scalarString(node.PublishDate),
		Variants:    variants,
		Metadata: EpisodeMetadata{
			ID:          id,
			Title:       title,
			Description: nullable(node.Description),
			Summary:     nullable(node.Summary),
			Duration:    nullable(node.Duration),
			PublishDate: nullable(node.PublishDate),
		},
	}
	if duration, err := strconv.ParseFloat(scalarString(node.Duration), 64); err == nil {
		ep.Duration = int(duration)
	}
	if node.Image != nil {
		ep.Covers = Covers{Wide: imageURL(node.Image.URL), Square: imageURL(node.Image.URL1X1)}
	}
	if node.ProgramSet != nil {
		ep.ProgramSet = ProgramSet{ID: scalarString(node.ProgramSet.ID), Title: scalarString(node.ProgramSet.Title)}
		ep.Metadata.ProgramSet = ProgramSetMetadata{
			ID:    nullable(node.ProgramSet.ID),
			Title: nullable(node.ProgramSet.Title),
			Path:  nullable(node.ProgramSet.Path),
		}
	}
	return ep, nil
}

// buildVariants collects every download and streaming URL once and orders
// them best first: quality rank, then direct downloads, then API order.
func buildVariants(audios []*rawAudio) []Variant {
	seen := make(map[string]struct{})
	var variants []Variant
	add := func(rawURL string, direct bool) {
		rawURL = strings.TrimSpace(rawURL)
		if rawURL == "" {
			return
		}
		if _, ok := seen[rawURL]; ok {
			return
		}
		seen[rawURL] = struct{}{}
		variants = append(variants, Variant{
			URL:     rawURL,
			Format:  media.SniffFormat(rawURL),
			Bitrate: media.BitrateFromURL(rawURL),
			Direct:  direct,
		})
	}
	for _, audio := range audios {
		if audio != nil {
			add(audio.DownloadURL, true)
		}
	}
	for _, audio := range audios {
		if audio != nil {
			add(audio.URL, false)
		}
	}
	slices.SortStableFunc(variants, func(a, b Variant) int {
		if cmp := media.Compare(b.Quality(), a.Quality()); cmp != 0 {
			return cmp
		}
		switch {
		case a.Direct && !b.Direct:
			return -1
		case b.Direct && !a.Direct:
			return 1
		default:
			return 0
		}
	})
	return variants
}

func decodeContainer(ref resolve.Ref, q listQuery, result map[string]json.RawMessage) *Container {
	container := &Container{Ref: ref}
	for _, key := range q.containerFields {
		container.Metadata = append(container.Metadata, Field{Key: key, Value: nullable(result[key])})
	}
	container.ID = scalarString(result["id"])
	if container.ID == "" {
		container.ID = q.fallbackID
	}
	container.Title = scalarString(result["title"])
	var image rawImage
	if raw := result["image"]; len(raw) > 0 && json.Unmarshal(raw, &image) == nil {
		container.ImageURL = imageURL(image.URL)
	}
	return container
}

func imageURL(template string) string {
	return strings.ReplaceAll(strings.TrimSpace(template), "{width}", ImageWidth)
}

// scalarString renders a JSON string or number as text; anything else is "".
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func nullable(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return raw
}
