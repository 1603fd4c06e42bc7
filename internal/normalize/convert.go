package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ToInt parses value as a base-10 integer, returning def on any failure.
func ToInt(value string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return n
}

// OptionalInt parses value as an integer, returning nil when it is not one.
func OptionalInt(value string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return nil
	}
	return &n
}

// ToFloat parses value as a float, returning def on failure or for NaN/Inf.
func ToFloat(value string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// CleanString trims surrounding whitespace and one layer of matching quotes.
func CleanString(value string) string {
	s := strings.TrimSpace(value)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return s
}

// ISOLayout is the layout every derivable timestamp is rendered in.
const ISOLayout = time.RFC3339

var (
	epochPattern = regexp.MustCompile(`^\d{9,13}(?:\.\d+)?$`)

	// Embedded date shapes searched for when the text is not itself a date.
	embeddedDates = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`),
		regexp.MustCompile(`\d{4}/\d{2}/\d{2}[ T]\d{2}:\d{2}:\d{2}`),
		regexp.MustCompile(`\d{2}/\d{2}/\d{4}:\d{2}:\d{2}:\d{2}`),
		regexp.MustCompile(`[A-Z][a-z]{2}\s+\d{1,2}\s+\d{4}\s+\d{2}:\d{2}:\d{2}`),
		regexp.MustCompile(`[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}`),
	}

	// Layouts dateparse gets wrong or rejects.
	fixedLayouts = []string{
		"Jan 2 2006 15:04:05",
		"2006/01/02 15:04:05",
		"01/02/2006 15:04:05",
	}

	slashColonDate = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4}):(\d{2}:\d{2}:\d{2})`)
	rfc3164Date    = regexp.MustCompile(`^[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}$`)
)

// now is swapped in tests to pin the year inferred for RFC3164 timestamps.
var now = time.Now

// ToISOTimestamp converts text to an ISO-8601 timestamp. It accepts full ISO
// strings, bare epoch seconds or milliseconds, RFC3164 "Mon D HH:MM:SS"
// (current year assumed) and the other layouts dateparse understands; failing
// that it searches the text for an embedded date. Returns def when nothing parses.
func ToISOTimestamp(text, def string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return def
	}
	if t, ok := parseTime(s); ok {
		return t.Format(ISOLayout)
	}
	for _, re := range embeddedDates {
		if m := re.FindString(s); m != "" && m != s {
			if t, ok := parseTime(m); ok {
				return t.Format(ISOLayout)
			}
		}
	}
	return def
}

func parseTime(s string) (time.Time, bool) {
	if epochPattern.MatchString(s) {
		return parseEpoch(s)
	}
	if rfc3164Date.MatchString(s) {
		t := parseRFC3164Timestamp(s)
		return t, !t.IsZero()
	}
	if m := slashColonDate.FindStringSubmatch(s); m != nil {
		s = m[1] + " " + m[2] + s[len(m[0]):]
	}
	compact := strings.Join(strings.Fields(s), " ")
	for _, layout := range fixedLayouts {
		if t, err := time.Parse(layout, compact); err == nil {
			return t.UTC(), true
		}
	}
	return parseFuzzy(s)
}

// parseFuzzy hands s to dateparse, which panics on some malformed input.
func parseFuzzy(s string) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseEpoch(s string) (time.Time, bool) {
	f := ToFloat(s, -1)
	if f < 0 {
		return time.Time{}, false
	}
	intPart := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
	}
	if len(intPart) >= 13 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// parseRFC3164Timestamp parses timestamps like "Oct 11 22:14:15".
func parseRFC3164Timestamp(ts string) time.Time {
	ref := now().UTC()
	ts = strings.Join(strings.Fields(ts), " ")

	t, err := time.Parse("Jan 2 15:04:05 2006", ts+" "+strconv.Itoa(ref.Year()))
	if err != nil {
		return time.Time{}
	}

	// A date in the future belongs to last year.
	if t.After(ref) {
		t = t.AddDate(-1, 0, 0)
	}
	return t
}
