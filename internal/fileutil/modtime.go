package fileutil

import (
	"fmt"
	"os"
	"strings"
	"time"
)

var localDateLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParsePublishDate parses the ISO 8601 timestamps the catalog emits. Values
// without a zone are interpreted in local time.
func ParsePublishDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty publish date")
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed, nil
	}
	for _, layout := range localDateLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized publish date %q", value)
}

// SetModTime stamps path with the publish date for both atime and mtime.
func SetModTime(path, publishDate string) error {
	stamp, err := ParsePublishDate(publishDate)
	if err != nil {
		return err
	}
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		return fmt.Errorf("set modification time for %s: %w", path, err)
	}
	return nil
}
