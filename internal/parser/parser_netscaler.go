package parser

import (
	"regexp"
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/internal/syslog"
	"github.com/cisec/eflp/pkg/types"
)

var (
	// <pri>Mon D HH:MM:SS host tag : message
	netscalerSyslogRe = regexp.MustCompile(`^(?:<(\d{1,3})>)?([A-Za-z]{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+([\w\-/\[\]\.]+)\s*:\s*(.*)$`)
	// MM/DD/YYYY:HH:MM:SS TZ host PPE : [default] MODULE EVENT id n : message
	netscalerNativeRe = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4}:\d{2}:\d{2}:\d{2})\s+(\S+)\s+(\S+)\s+(\S+)\s+:\s+(?:default\s+)?([A-Z][A-Z0-9_]*)\s+([A-Z][A-Z0-9_]*)\s*(.*)$`)
	// "123 0 : " sequence prefix of native messages
	netscalerSeqRe = regexp.MustCompile(`^\d+\s+\d+\s*:\s*`)
)

var netscalerCounters = []string{"sport", "dport", "spt", "dpt", "bytes", "eventid"}

// NetscalerExtractor parses Citrix NetScaler/ADC logs heuristically. Every
// non-empty line yields a record; fields are filled from the envelope, any
// key=value pairs and free-text inference over the whole line.
type NetscalerExtractor struct {
	levels   normalize.SeverityTable
	counters []string
}

// NewNetscalerExtractor creates a NetscalerExtractor.
func NewNetscalerExtractor() *NetscalerExtractor {
	return &NetscalerExtractor{levels: normalize.SyslogLevels, counters: netscalerCounters}
}

// Name returns the vendor id.
func (e *NetscalerExtractor) Name() string { return VendorNetscaler }

// Counters returns the numeric allow-list.
func (e *NetscalerExtractor) Counters() []string { return e.counters }

// Extract parses one line.
func (e *NetscalerExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return normalize.Fields{}, ErrNoMatch
	}

	var ts, host, tag string
	msg := line
	pri := -1
	if m := netscalerSyslogRe.FindStringSubmatch(line); m != nil {
		pri = normalize.ToInt(m[1], -1)
		ts, host, tag, msg = m[2], m[3], m[4], m[5]
	} else if m := netscalerNativeRe.FindStringSubmatch(line); m != nil {
		ts, host = m[1], m[3]
		tag = m[5] + " " + m[6]
		msg = netscalerSeqRe.ReplaceAllString(m[7], "")
	} else if h := syslog.ParseHeader(line); h.HasPriority() {
		pri, msg = h.Priority, h.Payload
	}
	msg = strings.TrimSpace(msg)

	kv := parseKV(line)

	timestamp := ""
	for _, c := range []string{ts, kv["time"], kv["timestamp"], kv["date"], line} {
		if c == "" {
			continue
		}
		if iso := normalize.ToISOTimestamp(c, ""); iso != "" {
			timestamp = iso
			break
		}
	}

	endpoints := normalize.ExtractIPsAndPorts(line, kv)

	return normalize.Fields{
		Timestamp:   timestamp,
		Severity:    e.severity(kv, tag, pri),
		Host:        host,
		SrcIP:       endpoints.SrcIP,
		DstIP:       endpoints.DstIP,
		SrcPort:     endpoints.SrcPort,
		DstPort:     endpoints.DstPort,
		Protocol:    firstNonEmpty(kv["proto"], kv["protocol"]),
		Action:      normalize.InferAction(line),
		Message:     msg,
		NetworkType: normalize.ClassifyNetworkType(tag, msg),
		Event:       normalize.ExtractEvent(tag, msg, kv),
		Tag:         tag,
		Line:        line,
		Raw:         kv,
		Counters:    normalize.Counters(kv, e.counters),
	}, nil
}

// severity resolves, in order: a severity/level/pri value, the suffix of a
// dotted tag ("local0.err"), then the syslog priority.
func (e *NetscalerExtractor) severity(kv map[string]string, tag string, pri int) types.Severity {
	word := strings.ToLower(firstNonEmpty(kv["severity"], kv["level"], kv["pri"]))
	if word == "" {
		if i := strings.LastIndexByte(tag, '.'); i >= 0 {
			word = strings.ToLower(tag[i+1:])
		}
	}
	if word != "" {
		if s, ok := e.levels.Lookup(word); ok {
			return s
		}
		if s := normalize.NormalizeSeverity(word, ""); s != "" {
			return s
		}
		if n := normalize.OptionalInt(word); n != nil {
			return syslog.SeverityFromPriority(*n)
		}
	}
	return syslog.SeverityFromPriority(pri)
}
