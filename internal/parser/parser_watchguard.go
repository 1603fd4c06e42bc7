package parser

import (
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/pkg/types"
)

const watchguardMinTokens = 10

var watchguardCounters = []string{"rc", "duration", "sent_bytes", "rcvd_bytes", "elapsed_time"}

// WatchguardExtractor parses whitespace-positional WatchGuard traffic logs:
//
//	date time member action src dst service sport dport [key=value ...]
type WatchguardExtractor struct {
	counters []string
}

// NewWatchguardExtractor creates a WatchguardExtractor.
func NewWatchguardExtractor() *WatchguardExtractor {
	return &WatchguardExtractor{counters: watchguardCounters}
}

// Name returns the vendor id.
func (e *WatchguardExtractor) Name() string { return VendorWatchguard }

// Counters returns the numeric allow-list.
func (e *WatchguardExtractor) Counters() []string { return e.counters }

// Extract parses one line. Lines with fewer than ten tokens are skipped.
func (e *WatchguardExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)
	tokens := strings.Fields(line)
	if len(tokens) < watchguardMinTokens {
		return normalize.Fields{}, ErrNoMatch
	}

	action := strings.ToLower(tokens[3])
	kv := parseKV(strings.Join(tokens[9:], " "))

	severity := types.SeverityInfo
	if action == "deny" || action == "blocked" {
		severity = types.SeverityHigh
	}
	if rc, ok := kv["rc"]; ok && rc != "100" {
		severity = types.SeverityHigh
	}

	return normalize.Fields{
		Timestamp: tokens[0] + " " + tokens[1],
		Severity:  severity,
		Host:      tokens[2],
		SrcIP:     tokens[4],
		DstIP:     tokens[5],
		SrcPort:   normalize.OptionalInt(tokens[7]),
		DstPort:   normalize.OptionalInt(tokens[8]),
		Protocol:  kv["proto"],
		Action:    action,
		Message:   line,
		Tag:       tokens[6],
		Line:      line,
		Raw:       kv,
		Counters:  normalize.Counters(kv, e.counters),
	}, nil
}
