package parser

import (
	"regexp"
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/internal/syslog"
	"github.com/cisec/eflp/pkg/types"
)

var (
	// <pri>Mon DD HH:MM:SS host sophosutm: payload
	sophosSyslogRe = regexp.MustCompile(`^<(\d{1,3})>([A-Za-z]{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+sophosutm:\s+(.*)$`)
	// [<pri>]YYYY:MM:DD-HH:MM:SS host prog[pid]: payload
	sophosNativeRe = regexp.MustCompile(`^(?:<(\d{1,3})>)?(\d{4}):(\d{2}):(\d{2})-(\d{2}:\d{2}:\d{2})\s+(\S+)\s+[\w\-]+(?:\[\d+\])?:\s+(.*)$`)
)

var sophosDenyActions = map[string]bool{
	"deny":   true,
	"drop":   true,
	"block":  true,
	"reject": true,
}

var sophosCounters = []string{"sport", "dport", "srcport", "dstport", "length", "ttl", "fwrule"}

// SophosUTMExtractor parses Sophos UTM key=value logs, with or without a
// syslog envelope.
type SophosUTMExtractor struct {
	levels   normalize.SeverityTable
	counters []string
}

// NewSophosUTMExtractor creates a SophosUTMExtractor.
func NewSophosUTMExtractor() *SophosUTMExtractor {
	return &SophosUTMExtractor{levels: normalize.SyslogLevels, counters: sophosCounters}
}

// Name returns the vendor id.
func (e *SophosUTMExtractor) Name() string { return VendorSophosUTM }

// Counters returns the numeric allow-list.
func (e *SophosUTMExtractor) Counters() []string { return e.counters }

// Extract parses one line. A line without envelope and without key=value
// pairs is skipped.
func (e *SophosUTMExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)

	var ts, host, payload string
	pri := -1
	switch {
	case sophosSyslogRe.MatchString(line):
		m := sophosSyslogRe.FindStringSubmatch(line)
		pri = normalize.ToInt(m[1], -1)
		ts, host, payload = m[2], m[3], m[4]
	case sophosNativeRe.MatchString(line):
		m := sophosNativeRe.FindStringSubmatch(line)
		pri = normalize.ToInt(m[1], -1)
		ts = m[2] + "-" + m[3] + "-" + m[4] + " " + m[5]
		host, payload = m[6], m[7]
	default:
		payload = line
	}

	kv := parseKV(payload)
	if payload == line && len(kv) == 0 {
		return normalize.Fields{}, ErrNoMatch
	}

	action := strings.ToLower(kv["action"])
	severity, ok := e.levels.Lookup(kv["severity"])
	switch {
	case sophosDenyActions[action]:
		severity = types.SeverityHigh
	case !ok:
		severity = syslog.SeverityFromPriority(pri)
	}

	return normalize.Fields{
		Timestamp: ts,
		Severity:  severity,
		Host:      host,
		SrcIP:     firstNonEmpty(kv["src"], kv["srcip"]),
		DstIP:     firstNonEmpty(kv["dst"], kv["dstip"]),
		SrcPort:   normalize.OptionalInt(firstNonEmpty(kv["sport"], kv["srcport"])),
		DstPort:   normalize.OptionalInt(firstNonEmpty(kv["dport"], kv["dstport"])),
		Protocol:  kv["proto"],
		Action:    action,
		Message:   firstNonEmpty(kv["msg"], payload),
		Event:     kv["name"],
		Tag:       kv["sub"],
		Line:      line,
		Raw:       kv,
		Counters:  normalize.Counters(kv, e.counters),
	}, nil
}
