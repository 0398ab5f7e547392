package fileutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/google/renameio/v2"
)

// EncodeJSON renders v with four-space indentation, ASCII-only string
// escapes, and no trailing newline. Output is stable for equal inputs, so
// callers can compare it byte-for-byte against files already on disk.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return escapeNonASCII(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// escapeNonASCII rewrites multi-byte runes as \uXXXX escapes. Non-ASCII bytes
// only ever appear inside JSON strings, so a byte-level pass is safe.
func escapeNonASCII(data []byte) []byte {
	if !hasNonASCII(data) {
		return data
	}
	out := make([]byte, 0, len(data)+len(data)/4)
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
			continue
		}
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			out = appendEscape(out, hi)
			out = appendEscape(out, lo)
			continue
		}
		out = appendEscape(out, r)
	}
	return out
}

func appendEscape(out []byte, r rune) []byte {
	hex := strconv.FormatInt(int64(r), 16)
	out = append(out, '\\', 'u')
	for i := len(hex); i < 4; i++ {
		out = append(out, '0')
	}
	return append(out, hex...)
}

func hasNonASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// WriteFileAtomic replaces path with data using a same-directory temp file,
// so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	pending, err := NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}

// NewPendingFile opens a temp file next to path that atomically replaces it
// on CloseAtomicallyReplace. Leftovers are detected by PartialMarkers.
func NewPendingFile(path string) (*renameio.PendingFile, error) {
	return renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(0o644),
	)
}

// JSONMatches reports whether the file at path already holds exactly encoded.
// A missing or unreadable file never matches.
func JSONMatches(path string, encoded []byte) bool {
	existing, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Equal(existing, encoded)
}

// Exists reports whether path exists, treating stat failures other than
// not-exist as present so callers do not overwrite what they cannot inspect.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// Size returns the size of the regular file at path.
func Size(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}
