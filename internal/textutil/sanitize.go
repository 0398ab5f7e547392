package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxFolderNameLength caps sanitized folder titles, counted in characters.
const MaxFolderNameLength = 100

var (
	folderUnsafePattern = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	wordPattern         = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+`)
	leadingIDPattern    = regexp.MustCompile(`^(\d+)`)
)

// SanitizeFolderName replaces filesystem-unsafe characters with underscores,
// strips surrounding spaces and dots, collapses whitespace, and truncates to
// MaxFolderNameLength characters.
func SanitizeFolderName(name string) string {
	sanitized := folderUnsafePattern.ReplaceAllString(name, "_")
	sanitized = strings.Trim(sanitized, " .")
	sanitized = whitespacePattern.ReplaceAllString(sanitized, " ")
	if utf8.RuneCountInString(sanitized) > MaxFolderNameLength {
		runes := []rune(sanitized)
		sanitized = strings.TrimRight(string(runes[:MaxFolderNameLength]), " \t\r\n")
	}
	return sanitized
}

// FolderName returns "<id> <sanitized title>", or just the id when the title
// sanitizes to nothing.
func FolderName(id, title string) string {
	clean := SanitizeFolderName(title)
	if clean == "" {
		return id
	}
	return id + " " + clean
}

// FolderID returns the leading numeric token of a folder name.
func FolderID(folder string) (string, bool) {
	match := leadingIDPattern.FindStringSubmatch(folder)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// FileBase joins the word runs of title with underscores and appends the
// episode id. Titles without any word characters fall back to the id alone.
func FileBase(title, id string) string {
	words := wordPattern.FindAllString(norm.NFC.String(title), -1)
	slug := strings.Join(words, "_")
	if slug == "" {
		slug = id
	}
	return slug + "_" + id
}

// EpisodeIDFromBase extracts the episode id from a file base produced by
// FileBase. Ids containing underscores cannot be recovered this way, so
// callers match known ids with HasEpisodeID when they have one.
func EpisodeIDFromBase(base string) string {
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return base
	}
	return base[idx+1:]
}

// HasEpisodeID reports whether base was produced by FileBase for id.
func HasEpisodeID(base, id string) bool {
	return base == id || strings.HasSuffix(base, "_"+id)
}

var titleCaser = cases.Title(language.German)

// DisplayTitle normalizes a catalog title for terminal output.
func DisplayTitle(title string) string {
	title = strings.TrimSpace(whitespacePattern.ReplaceAllString(title, " "))
	if title == "" {
		return ""
	}
	if strings.ToUpper(title) == title {
		return titleCaser.String(strings.ToLower(title))
	}
	return title
}
