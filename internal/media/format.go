package media

import (
	"path/filepath"
	"strings"
)

// Format is an audio container.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatMP4 Format = "mp4"
	FormatM4A Format = "m4a"
	FormatAAC Format = "aac"
)

// AudioFormats lists every container the mirror stores, best first.
var AudioFormats = []Format{FormatMP4, FormatM4A, FormatAAC, FormatMP3}

// Ext returns the file extension including the leading dot.
func (f Format) Ext() string {
	return "." + string(f)
}

func (f Format) preference() int {
	switch f {
	case FormatMP4:
		return 3
	case FormatM4A:
		return 2
	case FormatAAC:
		return 1
	default:
		return 0
	}
}

// SniffFormat picks a container from a media URL: a .m4a or .mp3 suffix wins,
// then any mention of aac or mp4, and mp3 otherwise.
func SniffFormat(rawURL string) Format {
	lower := strings.ToLower(rawURL)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	switch {
	case strings.HasSuffix(lower, ".m4a"):
		return FormatM4A
	case strings.HasSuffix(lower, ".mp3"):
		return FormatMP3
	case strings.Contains(lower, "aac"):
		return FormatAAC
	case strings.Contains(lower, "mp4"):
		return FormatMP4
	default:
		return FormatMP3
	}
}

// FormatFromPath maps a local file name to its container.
func FormatFromPath(path string) (Format, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, f := range AudioFormats {
		if string(f) == ext {
			return f, true
		}
	}
	return "", false
}
