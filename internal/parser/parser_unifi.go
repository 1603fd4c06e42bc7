package parser

import (
	"regexp"
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/internal/syslog"
	"github.com/cisec/eflp/pkg/types"
)

var (
	// WAN_IN-4000-D, LAN_LOCAL-default-A
	unifiRuleRe = regexp.MustCompile(`^[A-Za-z0-9_]+-[A-Za-z0-9_]+-([A-Za-z])$`)
	// kernel:, firewall:
	unifiProgramRe = regexp.MustCompile(`^[A-Za-z][\w\-]*(?:\[\d+\])?:\s*`)
)

var unifiRuleActions = map[string]string{
	"A": types.ActionAllow,
	"D": types.ActionDeny,
	"R": types.ActionDeny,
}

var unifiCounters = []string{"spt", "dpt", "len", "ttl", "id"}

// UnifiExtractor parses UniFi gateway iptables logs:
//
//	<4>Jan 15 10:30:00 USG kernel: [WAN_IN-4000-D]IN=eth0 OUT=eth1 SRC=1.2.3.4 DST=10.0.0.5 PROTO=TCP SPT=51000 DPT=22
type UnifiExtractor struct {
	counters []string
}

// NewUnifiExtractor creates a UnifiExtractor.
func NewUnifiExtractor() *UnifiExtractor {
	return &UnifiExtractor{counters: unifiCounters}
}

// Name returns the vendor id.
func (e *UnifiExtractor) Name() string { return VendorUnifi }

// Counters returns the numeric allow-list.
func (e *UnifiExtractor) Counters() []string { return e.counters }

// Extract parses one line. The <pri> and RFC3164 header are required.
func (e *UnifiExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)
	h := syslog.ParseHeader(line)
	if !h.HasPriority() || h.Timestamp == "" {
		return normalize.Fields{}, ErrNoMatch
	}

	payload, rule := stripUnifiPrefix(h.Payload)
	kv := parseKV(payload)
	if rule != "" {
		kv["rule"] = rule
	}

	action := ""
	if m := unifiRuleRe.FindStringSubmatch(rule); m != nil {
		action = unifiRuleActions[strings.ToUpper(m[1])]
	}

	return normalize.Fields{
		Timestamp: h.Timestamp,
		Severity:  h.Severity(),
		Host:      h.Host,
		SrcIP:     kv["src"],
		DstIP:     kv["dst"],
		SrcPort:   normalize.OptionalInt(firstNonEmpty(kv["spt"], kv["srcport"])),
		DstPort:   normalize.OptionalInt(firstNonEmpty(kv["dpt"], kv["dstport"])),
		Protocol:  firstNonEmpty(kv["proto"], kv["protocol"]),
		Action:    action,
		Message:   line,
		Event:     rule,
		Tag:       rule,
		Line:      line,
		Raw:       kv,
		Counters:  normalize.Counters(kv, e.counters),
	}, nil
}

// stripUnifiPrefix removes the program name and leading bracket groups (kernel
// uptime, rule name), returning the rule name if one was present.
func stripUnifiPrefix(payload string) (string, string) {
	rule := ""
	for {
		payload = strings.TrimSpace(payload)
		if loc := unifiProgramRe.FindStringIndex(payload); loc != nil && !strings.Contains(payload[:loc[1]], "=") {
			payload = payload[loc[1]:]
			continue
		}
		if !strings.HasPrefix(payload, "[") {
			return payload, rule
		}
		end := strings.IndexByte(payload, ']')
		if end < 0 {
			return payload, rule
		}
		inner := strings.TrimSpace(payload[1:end])
		if rule == "" && unifiRuleRe.MatchString(inner) {
			rule = inner
		}
		payload = payload[end+1:]
	}
}
