package recorder

import (
	"regexp"
	"strings"
	"time"
)

// DefaultTitle names recordings of untitled setlists.
const DefaultTitle = "set"

const maxTitleRunes = 50

var (
	illegalChars = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]`)
	separators   = regexp.MustCompile(`[\s_]+`)
)

// SanitizeTitle makes title safe for use in a file name. Every run of
// illegal characters, whitespace and underscores becomes a single hyphen, so
// the result never contains the "_" that [FileName] puts before the
// timestamp. Leading and trailing hyphens and dots are trimmed and the
// result is capped at 50 runes.
func SanitizeTitle(title string) string {
	s := illegalChars.ReplaceAllString(title, "_")
	s = separators.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")
	if r := []rune(s); len(r) > maxTitleRunes {
		s = strings.TrimRight(string(r[:maxTitleRunes]), "-")
	}
	if s == "" {
		return DefaultTitle
	}
	return s
}

// FileName returns the recording file name for a session of title started at
// start: "<sanitized-title>_<20060102-150405>.wav" in local time.
func FileName(title string, start time.Time) string {
	return SanitizeTitle(title) + "_" + start.Format("20060102-150405") + ".wav"
}
