package parser

import (
	"regexp"
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/internal/syslog"
	"github.com/cisec/eflp/pkg/types"
)

var (
	// src/port->dst/port
	juniperArrowRe = regexp.MustCompile(`([0-9A-Fa-f.:]+)/(\d+)->([0-9A-Fa-f.:]+)/(\d+)`)
	// "1 2024-01-15T10:30:00.000Z host ..." after a bare <pri>
	juniperStructuredRe = regexp.MustCompile(`^\d{1,2}\s+(\S+)\s+(\S+)\s+(.*)$`)
)

// RT_FLOW event types, matched in order.
var juniperEvents = []struct {
	name     string
	severity types.Severity
	action   string
}{
	{"SESSION_CREATE", types.SeverityInfo, types.ActionAllow},
	{"SESSION_CLOSE", types.SeverityMedium, ""},
	{"SESSION_DENY", types.SeverityHigh, types.ActionDeny},
}

var juniperCounters = []string{
	"source-port", "destination-port", "protocol-id", "session-id-32",
	"packets-from-client", "bytes-from-client", "packets-from-server", "bytes-from-server", "elapsed-time",
}

// JuniperExtractor parses Junos SRX RT_FLOW session logs. Other lines are skipped.
type JuniperExtractor struct {
	counters []string
}

// NewJuniperExtractor creates a JuniperExtractor.
func NewJuniperExtractor() *JuniperExtractor {
	return &JuniperExtractor{counters: juniperCounters}
}

// Name returns the vendor id.
func (e *JuniperExtractor) Name() string { return VendorJuniper }

// Counters returns the numeric allow-list.
func (e *JuniperExtractor) Counters() []string { return e.counters }

// Extract parses one line.
func (e *JuniperExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "RT_FLOW") {
		return normalize.Fields{}, ErrNoMatch
	}

	eventType, severity, action := "UNKNOWN", types.SeverityMedium, ""
	for _, ev := range juniperEvents {
		if strings.Contains(line, ev.name) {
			eventType, severity, action = ev.name, ev.severity, ev.action
			break
		}
	}

	h := syslog.ParseHeader(line)
	ts, host := h.Timestamp, h.Host
	if ts == "" && h.HasPriority() {
		if m := juniperStructuredRe.FindStringSubmatch(h.Payload); m != nil {
			ts, host = m[1], m[2]
		}
	}

	kv := parseKV(line)
	kv["event_type"] = eventType

	srcIP, dstIP := kv["source-address"], kv["destination-address"]
	srcPort, dstPort := kv["source-port"], kv["destination-port"]
	if m := juniperArrowRe.FindStringSubmatch(line); m != nil {
		srcIP, srcPort = firstNonEmpty(srcIP, m[1]), firstNonEmpty(srcPort, m[2])
		dstIP, dstPort = firstNonEmpty(dstIP, m[3]), firstNonEmpty(dstPort, m[4])
	}

	return normalize.Fields{
		Timestamp: ts,
		Severity:  severity,
		Host:      host,
		SrcIP:     srcIP,
		DstIP:     dstIP,
		SrcPort:   normalize.OptionalInt(srcPort),
		DstPort:   normalize.OptionalInt(dstPort),
		Protocol:  kv["protocol-id"],
		Action:    action,
		Message:   line,
		Event:     eventType,
		Tag:       "RT_FLOW",
		Line:      line,
		Raw:       kv,
		Counters:  normalize.Counters(kv, e.counters),
	}, nil
}
