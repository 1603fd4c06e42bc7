package parser

import (
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/internal/syslog"
)

var sonicwallCounters = []string{"sport", "dport", "sessionid", "sent", "rcvd"}

// SonicwallExtractor parses SonicOS key=value logs. The syslog header is
// optional; src/dst may carry "ip:port:interface".
type SonicwallExtractor struct {
	counters []string
}

// NewSonicwallExtractor creates a SonicwallExtractor.
func NewSonicwallExtractor() *SonicwallExtractor {
	return &SonicwallExtractor{counters: sonicwallCounters}
}

// Name returns the vendor id.
func (e *SonicwallExtractor) Name() string { return VendorSonicwall }

// Counters returns the numeric allow-list.
func (e *SonicwallExtractor) Counters() []string { return e.counters }

// Extract parses one line. Lines without any key=value pair are skipped.
func (e *SonicwallExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)
	kv := parseKV(line)
	if len(kv) == 0 {
		return normalize.Fields{}, ErrNoMatch
	}
	h := syslog.ParseHeader(line)

	srcIP, srcPort, _ := splitHostPort(kv["src"])
	dstIP, dstPort, _ := splitHostPort(kv["dst"])

	severity := h.Severity()
	if pri := normalize.OptionalInt(kv["pri"]); pri != nil {
		severity = syslog.SeverityFromPriority(*pri)
	}

	return normalize.Fields{
		Timestamp: firstNonEmpty(kv["time"], h.Timestamp),
		Severity:  severity,
		Host:      firstNonEmpty(h.Host, kv["sn"], kv["fw"]),
		SrcIP:     srcIP,
		DstIP:     dstIP,
		SrcPort:   normalize.OptionalInt(firstNonEmpty(kv["sport"], srcPort)),
		DstPort:   normalize.OptionalInt(firstNonEmpty(kv["dport"], dstPort)),
		Protocol:  kv["proto"],
		Action:    kv["fw_action"],
		Message:   kv["msg"],
		Line:      line,
		Raw:       kv,
		Counters:  normalize.Counters(kv, e.counters),
	}, nil
}
