package parser

import (
	"regexp"
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/internal/syslog"
	"github.com/cisec/eflp/pkg/types"
)

var ftdTagRe = regexp.MustCompile(`^%(FTD-(\d)-(\d+)):\s*(.*)$`)

// snortSeverity maps a Snort rule priority: 1 and 2 are HIGH, anything
// lower is INFO.
func snortSeverity(priority int) types.Severity {
	if priority <= 2 {
		return types.SeverityHigh
	}
	return types.SeverityInfo
}

var ciscoFTDCounters = []string{
	"priority", "gid", "sid", "revision", "srcport", "dstport",
	"initiatorpackets", "responderpackets", "initiatorbytes", "responderbytes",
}

// CiscoFTDExtractor parses Firepower Threat Defense syslog:
//
//	<pri>Mon D HH:MM:SS host %FTD-1-430001: Protocol: TCP, SrcIP: 10.0.0.5, ...
type CiscoFTDExtractor struct {
	counters []string
}

// NewCiscoFTDExtractor creates a CiscoFTDExtractor.
func NewCiscoFTDExtractor() *CiscoFTDExtractor {
	return &CiscoFTDExtractor{counters: ciscoFTDCounters}
}

// Name returns the vendor id.
func (e *CiscoFTDExtractor) Name() string { return VendorCiscoFTD }

// Counters returns the numeric allow-list.
func (e *CiscoFTDExtractor) Counters() []string { return e.counters }

// Extract parses one line. The RFC3164 timestamp and host are required.
func (e *CiscoFTDExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)
	h := syslog.ParseHeader(line)
	if h.Timestamp == "" {
		return normalize.Fields{}, ErrNoMatch
	}

	var tag, body string
	level := -1
	if m := ftdTagRe.FindStringSubmatch(h.Payload); m != nil {
		tag, body = m[1], m[4]
		level = normalize.ToInt(m[2], -1)
	} else {
		body = h.Payload
	}
	kv := parseNameValues(body)

	// The %FTD-N- level only applies when the event carries no Snort priority.
	severity := h.Severity()
	if p := normalize.OptionalInt(kv["priority"]); p != nil {
		severity = snortSeverity(*p)
	} else if level >= 0 {
		severity = syslog.SeverityFromPriority(level)
	}

	return normalize.Fields{
		Timestamp: h.Timestamp,
		Severity:  severity,
		Host:      h.Host,
		SrcIP:     kv["srcip"],
		DstIP:     kv["dstip"],
		SrcPort:   normalize.OptionalInt(kv["srcport"]),
		DstPort:   normalize.OptionalInt(kv["dstport"]),
		Protocol:  kv["protocol"],
		Action:    strings.ToLower(kv["accesscontrolruleaction"]),
		Message:   h.Payload,
		Event:     kv["message"],
		Tag:       tag,
		Line:      line,
		Raw:       kv,
		Counters:  normalize.Counters(kv, e.counters),
	}, nil
}

// parseNameValues splits "Key: value, Key: value" lists. A segment without
// a "Key: " prefix continues the previous value.
func parseNameValues(body string) map[string]string {
	kv := make(map[string]string)
	last := ""
	for _, part := range strings.Split(body, ", ") {
		k, v, ok := strings.Cut(part, ": ")
		if ok && k != "" && !strings.ContainsAny(k, " \t") {
			last = strings.ToLower(k)
			kv[last] = unquote(strings.TrimSpace(v))
			continue
		}
		if last != "" {
			kv[last] += ", " + part
		}
	}
	return kv
}
