// Package syslog splits the RFC3164-style envelope off a log line.
package syslog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/pkg/types"
)

var (
	// <34>Oct 11 22:14:15 mymachine payload
	rfc3164 = regexp.MustCompile(`^(?:<(\d{1,3})>)?\s*([A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s*(.*)$`)
	// <34>payload
	priOnly = regexp.MustCompile(`^<(\d{1,3})>\s*(.*)$`)
)

// Header is the result of envelope parsing. Priority is -1 when the line
// carries no <N> prefix; Matched is false when no envelope was recognized and
// Payload is the whole line.
type Header struct {
	Priority  int
	Timestamp string
	Host      string
	Payload   string
	Matched   bool
}

// HasPriority reports whether a <N> prefix was present.
func (h Header) HasPriority() bool {
	return h.Priority >= 0
}

// Facility returns the syslog facility code, or -1.
func (h Header) Facility() int {
	if h.Priority < 0 {
		return -1
	}
	return h.Priority / 8
}

// Severity decomposes the priority, defaulting to INFO when there is none.
func (h Header) Severity() types.Severity {
	return SeverityFromPriority(h.Priority)
}

// ParseHeader recognizes "<N>Mon D HH:MM:SS host payload", the same without
// the priority, or "<N>payload".
func ParseHeader(line string) Header {
	line = strings.TrimSpace(line)

	if m := rfc3164.FindStringSubmatch(line); m != nil {
		return Header{
			Priority:  parsePriority(m[1]),
			Timestamp: m[2],
			Host:      strings.TrimSuffix(m[3], ":"),
			Payload:   m[4],
			Matched:   true,
		}
	}

	if m := priOnly.FindStringSubmatch(line); m != nil {
		return Header{
			Priority: parsePriority(m[1]),
			Payload:  m[2],
			Matched:  true,
		}
	}

	return Header{Priority: -1, Payload: line}
}

func parsePriority(s string) int {
	if s == "" {
		return -1
	}
	p, err := strconv.Atoi(s)
	if err != nil || p > 191 {
		return -1
	}
	return p
}

// SeverityFromPriority maps priority mod 8 onto the canonical vocabulary:
// 0-2 CRITICAL, 3 HIGH, 4 MEDIUM, 5 LOW, otherwise INFO.
func SeverityFromPriority(pri int) types.Severity {
	if pri < 0 {
		return types.SeverityInfo
	}
	return normalize.SyslogLevels.Resolve(LevelName(pri % 8))
}

// LevelName returns the name for a syslog severity code.
func LevelName(code int) string {
	names := []string{
		"emergency",
		"alert",
		"critical",
		"error",
		"warning",
		"notice",
		"info",
		"debug",
	}
	if code >= 0 && code < len(names) {
		return names[code]
	}
	return "unknown"
}
