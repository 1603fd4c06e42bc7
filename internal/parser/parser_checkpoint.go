package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/internal/syslog"
	"github.com/cisec/eflp/pkg/types"
)

// LEEF:Version|Vendor|Product|Version|EventID|attributes
var leefHeaderRe = regexp.MustCompile(`^LEEF:(\d+(?:\.\d+)?)\|([^|]*)\|([^|]*)\|([^|]*)\|([^|]*)\|(.*)$`)

var checkpointSeverities = normalize.SeverityTable{
	"critical":      types.SeverityCritical,
	"high":          types.SeverityHigh,
	"medium":        types.SeverityMedium,
	"low":           types.SeverityLow,
	"informational": types.SeverityInfo,
	"info":          types.SeverityInfo,
}

var checkpointCounters = []string{"s_port", "service", "proto", "sid", "srcport", "dstport"}

// CheckpointExtractor parses Check Point logs in either the syslog
// key=value / key:"value"; form or LEEF, optionally behind a syslog header.
type CheckpointExtractor struct {
	severities normalize.SeverityTable
	counters   []string
}

// NewCheckpointExtractor creates a CheckpointExtractor.
func NewCheckpointExtractor() *CheckpointExtractor {
	return &CheckpointExtractor{severities: checkpointSeverities, counters: checkpointCounters}
}

// Name returns the vendor id.
func (e *CheckpointExtractor) Name() string { return VendorCheckpoint }

// Counters returns the numeric allow-list.
func (e *CheckpointExtractor) Counters() []string { return e.counters }

// Extract parses one line.
func (e *CheckpointExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)
	h := syslog.ParseHeader(line)
	if strings.HasPrefix(h.Payload, "LEEF:") {
		return e.extractLEEF(line, h)
	}

	if !h.HasPriority() || h.Timestamp == "" {
		return normalize.Fields{}, ErrNoMatch
	}
	kv := make(map[string]string)
	parseColonQuoted(h.Payload, kv)
	for k, v := range parseKV(colonQuotedRe.ReplaceAllString(h.Payload, " ")) {
		if _, seen := kv[k]; !seen {
			kv[k] = v
		}
	}

	return e.fields(h, kv, h.Timestamp, h.Payload, "", line), nil
}

func (e *CheckpointExtractor) extractLEEF(line string, h syslog.Header) (normalize.Fields, error) {
	leef := h.Payload
	m := leefHeaderRe.FindStringSubmatch(leef)
	if m == nil {
		return normalize.Fields{}, ErrNoMatch
	}
	version, eventID, attrs := m[1], m[5], m[6]

	delim := "\t"
	if strings.HasPrefix(version, "2") {
		delim, attrs = leefDelimiter(attrs)
	}

	kv := map[string]string{
		"leef_version": version,
		"vendor":       m[2],
		"product":      m[3],
		"version":      m[4],
		"eventid":      eventID,
	}
	if delim == "\t" && !strings.Contains(attrs, "\t") {
		parseSpacedKV(attrs, kv)
	} else {
		parseDelimitedKV(attrs, delim, kv)
	}

	ts := firstNonEmpty(kv["devtime"], h.Timestamp)
	return e.fields(h, kv, ts, firstNonEmpty(kv["msg"], leef), eventID, line), nil
}

// leefDelimiter reads the LEEF 2.0 delimiter field ("^", "x09", "0x5E") in
// front of the attributes. Without one the attributes are tab separated, or
// space separated when the tail holds no tab.
func leefDelimiter(attrs string) (string, string) {
	head, rest, ok := strings.Cut(attrs, "|")
	if !ok || strings.Contains(head, "=") {
		return "\t", attrs
	}
	switch {
	case len(head) == 1:
		return head, rest
	case strings.HasPrefix(head, "0x") || strings.HasPrefix(head, "x"):
		hex := strings.TrimPrefix(strings.TrimPrefix(head, "0"), "x")
		if n, err := strconv.ParseUint(hex, 16, 8); err == nil && n > 0 {
			return string(rune(n)), rest
		}
	}
	return "\t", rest
}

func (e *CheckpointExtractor) fields(h syslog.Header, kv map[string]string, ts, message, event, line string) normalize.Fields {
	severity, ok := e.severities.Lookup(kv["severity"])
	if !ok {
		if sev := normalize.OptionalInt(kv["sev"]); sev != nil {
			severity = leefSeverity(*sev)
		} else {
			severity = h.Severity()
		}
	}

	return normalize.Fields{
		Timestamp: ts,
		Severity:  severity,
		Host:      firstNonEmpty(h.Host, kv["origin"], kv["hostname"]),
		SrcIP:     kv["src"],
		DstIP:     kv["dst"],
		SrcPort:   normalize.OptionalInt(firstNonEmpty(kv["s_port"], kv["srcport"])),
		DstPort:   normalize.OptionalInt(firstNonEmpty(kv["service"], kv["dstport"])),
		Protocol:  kv["proto"],
		Action:    strings.ToLower(kv["action"]),
		Message:   message,
		Event:     event,
		Line:      line,
		Raw:       kv,
		Counters:  normalize.Counters(kv, e.counters),
	}
}

// leefSeverity maps the LEEF 0-10 sev scale.
func leefSeverity(sev int) types.Severity {
	switch {
	case sev >= 9:
		return types.SeverityCritical
	case sev >= 7:
		return types.SeverityHigh
	case sev >= 4:
		return types.SeverityMedium
	case sev >= 1:
		return types.SeverityLow
	default:
		return types.SeverityInfo
	}
}
