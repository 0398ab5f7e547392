package planner

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"audiothek/internal/media"
	"audiothek/internal/textutil"
)

const squareSuffix = "_x1"

// LocalAudio is an audio file of an episode found on disk.
type LocalAudio struct {
	Path    string
	Size    int64
	Quality media.Quality
}

// LocalFile is a non-audio artifact found on disk.
type LocalFile struct {
	Path string
	Size int64
}

// LocalArtifactSet is what the episode folder currently holds for one
// episode. It is recomputed on every plan.
type LocalArtifactSet struct {
	// Audio is ordered best first.
	Audio       []LocalAudio
	Cover       *LocalFile
	SquareCover *LocalFile
	Metadata    *LocalFile
}

// Scan collects the files in dir that belong to episode id. base is the
// current file base; files under an older title still match by id, but an
// exact name wins. durationSeconds feeds the local bitrate estimate; when it
// is zero the duration recorded in the metadata sidecar is used.
func Scan(dir, base, id string, durationSeconds int) (LocalArtifactSet, error) {
	var set LocalArtifactSet
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return set, nil
		}
		return set, err
	}

	var audio []LocalFile
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		info, err := entry.Info()
		if err != nil {
			continue
		}
		file := LocalFile{Path: filepath.Join(dir, name), Size: info.Size()}

		switch strings.ToLower(ext) {
		case ".jpg":
			if trimmed, ok := strings.CutSuffix(stem, squareSuffix); ok && textutil.HasEpisodeID(trimmed, id) {
				set.SquareCover = pick(set.SquareCover, file, base+squareSuffix+".jpg")
			} else if textutil.HasEpisodeID(stem, id) {
				set.Cover = pick(set.Cover, file, base+".jpg")
			}
		case ".json":
			if textutil.HasEpisodeID(stem, id) {
				set.Metadata = pick(set.Metadata, file, base+".json")
			}
		default:
			if _, ok := media.FormatFromPath(name); ok && textutil.HasEpisodeID(stem, id) {
				audio = append(audio, file)
			}
		}
	}

	if len(audio) > 0 && durationSeconds <= 0 && set.Metadata != nil {
		durationSeconds = sidecarDuration(set.Metadata.Path)
	}
	for _, file := range audio {
		format, _ := media.FormatFromPath(file.Path)
		set.Audio = append(set.Audio, LocalAudio{
			Path:    file.Path,
			Size:    file.Size,
			Quality: media.Quality{Format: format, Bitrate: media.EstimateBitrate(file.Size, durationSeconds)},
		})
	}
	slices.SortStableFunc(set.Audio, func(a, b LocalAudio) int {
		if cmp := media.Compare(b.Quality, a.Quality); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.Path, b.Path)
	})
	return set, nil
}

// pick keeps the file whose name is exactly preferred, else the first seen.
func pick(current *LocalFile, candidate LocalFile, preferred string) *LocalFile {
	if current == nil || filepath.Base(candidate.Path) == preferred {
		return &candidate
	}
	return current
}

func sidecarDuration(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var sidecar struct {
		Duration json.Number `json:"duration"`
	}
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return 0
	}
	value, err := sidecar.Duration.Float64()
	if err != nil {
		return 0
	}
	return int(value)
}
