package media

import (
	"fmt"
	"regexp"
	"strconv"
)

// bitrateTiers are the kbit/s steps encoders publish.
var bitrateTiers = []int{32, 48, 56, 64, 96, 112, 128, 160, 192, 256, 320}

var bitrateHintPattern = regexp.MustCompile(`(?i)(?:^|[^0-9])(32|48|56|64|96|112|128|160|192|256|320)(?:k|kbit|kbps)(?:[^a-z0-9]|$)`)

// Quality pairs a container with a bitrate in kbit/s. Bitrate 0 means unknown.
type Quality struct {
	Format  Format
	Bitrate int
}

func (q Quality) String() string {
	if q.Bitrate <= 0 {
		return string(q.Format)
	}
	return fmt.Sprintf("%s@%dk", q.Format, q.Bitrate)
}

// SnapBitrate rounds kbps to the nearest standard tier. Non-positive values
// stay unknown.
func SnapBitrate(kbps int) int {
	if kbps <= 0 {
		return 0
	}
	best := bitrateTiers[0]
	for _, tier := range bitrateTiers[1:] {
		if abs(tier-kbps) <= abs(best-kbps) {
			best = tier
		}
	}
	return best
}

// BitrateFromURL extracts a bitrate hint such as "128k" from a media URL.
func BitrateFromURL(rawURL string) int {
	match := bitrateHintPattern.FindStringSubmatch(rawURL)
	if match == nil {
		return 0
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return value
}

// EstimateBitrate derives kbit/s from a file size and a duration in seconds.
func EstimateBitrate(sizeBytes int64, durationSeconds int) int {
	if sizeBytes <= 0 || durationSeconds <= 0 {
		return 0
	}
	return SnapBitrate(int(sizeBytes * 8 / int64(durationSeconds) / 1000))
}

// Compare returns a negative number when a ranks below b, zero when equal,
// and a positive number when a ranks above b.
func Compare(a, b Quality) int {
	ab, bb := SnapBitrate(a.Bitrate), SnapBitrate(b.Bitrate)
	if ab > 0 && bb > 0 && ab != bb {
		return ab - bb
	}
	return a.Format.preference() - b.Format.preference()
}

// Outranks reports whether a is strictly better than b when either side may
// hold an estimated bitrate. Bitrates within a third of each other compare
// equal, leaving the container preference to decide.
func Outranks(a, b Quality) bool {
	if a.Bitrate > 0 && b.Bitrate > 0 && a.Bitrate*3 <= b.Bitrate*4 && b.Bitrate*3 <= a.Bitrate*4 {
		a.Bitrate, b.Bitrate = 0, 0
	}
	return Compare(a, b) > 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
