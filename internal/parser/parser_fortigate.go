package parser

import (
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/internal/syslog"
	"github.com/cisec/eflp/pkg/types"
)

var fortigateLevels = normalize.SeverityTable{
	"emergency":   types.SeverityCritical,
	"alert":       types.SeverityCritical,
	"critical":    types.SeverityCritical,
	"error":       types.SeverityHigh,
	"warning":     types.SeverityMedium,
	"notice":      types.SeverityLow,
	"information": types.SeverityInfo,
	"debug":       types.SeverityInfo,
}

var fortigateCounters = []string{"srcport", "dstport", "sessionid", "sentbyte", "rcvdbyte", "sentpkt", "rcvdpkt"}

// FortigateExtractor parses FortiOS key=value logs behind a <pri> prefix:
//
//	<189>date=2024-01-15 time=10:30:00 devname="fw01" level="notice" srcip=10.0.0.5 ...
type FortigateExtractor struct {
	levels   normalize.SeverityTable
	counters []string
}

// NewFortigateExtractor creates a FortigateExtractor.
func NewFortigateExtractor() *FortigateExtractor {
	return &FortigateExtractor{levels: fortigateLevels, counters: fortigateCounters}
}

// Name returns the vendor id.
func (e *FortigateExtractor) Name() string { return VendorFortigate }

// Counters returns the numeric allow-list.
func (e *FortigateExtractor) Counters() []string { return e.counters }

// Extract parses one line.
func (e *FortigateExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<") {
		return normalize.Fields{}, ErrNoMatch
	}
	h := syslog.ParseHeader(line)
	if !h.HasPriority() {
		return normalize.Fields{}, ErrNoMatch
	}
	kv := parseKV(h.Payload)
	if len(kv) == 0 {
		return normalize.Fields{}, ErrNoMatch
	}

	return normalize.Fields{
		Timestamp: strings.TrimSpace(kv["date"] + " " + kv["time"]),
		Severity:  e.levels.Resolve(kv["level"]),
		Host:      firstNonEmpty(kv["devname"], h.Host),
		SrcIP:     kv["srcip"],
		DstIP:     kv["dstip"],
		SrcPort:   normalize.OptionalInt(kv["srcport"]),
		DstPort:   normalize.OptionalInt(kv["dstport"]),
		Protocol:  kv["proto"],
		Action:    kv["action"],
		Message:   kv["msg"],
		Event:     kv["logdesc"],
		Tag:       kv["subtype"],
		Line:      line,
		Raw:       kv,
		Counters:  normalize.Counters(kv, e.counters),
	}, nil
}
