package normalize

import (
	"regexp"
	"strings"

	"github.com/cisec/eflp/pkg/types"
)

const ipPattern = `(?:\d{1,3}\.){3}\d{1,3}`

var (
	ipPortRe = regexp.MustCompile(`(` + ipPattern + `)(?::(\d+))?`)
	arrowRe  = regexp.MustCompile(`(` + ipPattern + `)\s*->\s*(` + ipPattern + `)`)
	fromIPRe = regexp.MustCompile(`(?i)\bfrom\s+(` + ipPattern + `)\b`)
	toIPRe   = regexp.MustCompile(`(?i)\bto\s+(` + ipPattern + `)\b`)
)

// Aliases lists, in priority order, the key names a kv map may use for each
// address field. The first present, non-empty key wins.
type Aliases struct {
	SrcIP   []string
	DstIP   []string
	SrcPort []string
	DstPort []string
}

// DefaultAliases are the canonical key spellings seen across vendors.
var DefaultAliases = Aliases{
	SrcIP:   []string{"src", "srcip", "clientip", "client_ip", "sip", "src_ip", "source-address"},
	DstIP:   []string{"dst", "dstip", "dip", "serverip", "dst_ip", "dest_ip", "destination-address"},
	SrcPort: []string{"sport", "spt", "srcport", "src_port", "source-port"},
	DstPort: []string{"dport", "dpt", "dstport", "dst_port", "dest_port", "destination-port"},
}

// Endpoints is the outcome of address extraction. Ports are nil when unknown.
type Endpoints struct {
	SrcIP   string
	DstIP   string
	SrcPort *int
	DstPort *int
}

func firstOf(kv map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(kv[k]); v != "" {
			return v
		}
	}
	return ""
}

// ExtractIPsAndPorts resolves source/destination addresses from kv first and
// then from text using, in order: the first "ip[:port]" occurrence (source
// only), an "ip -> ip" arrow, "from ip" and "to ip". A field resolved by an
// earlier rule is never overwritten by a later one.
func ExtractIPsAndPorts(text string, kv map[string]string) Endpoints {
	return DefaultAliases.Extract(text, kv)
}

// Extract is ExtractIPsAndPorts with a vendor-specific alias table.
func (a Aliases) Extract(text string, kv map[string]string) Endpoints {
	var e Endpoints
	e.SrcIP = firstOf(kv, a.SrcIP)
	e.DstIP = firstOf(kv, a.DstIP)
	e.SrcPort = OptionalInt(firstOf(kv, a.SrcPort))
	e.DstPort = OptionalInt(firstOf(kv, a.DstPort))

	if text == "" {
		return e
	}
	if e.SrcIP == "" {
		if m := ipPortRe.FindStringSubmatch(text); m != nil {
			e.SrcIP = m[1]
			if e.SrcPort == nil && m[2] != "" {
				e.SrcPort = OptionalInt(m[2])
			}
		}
	}
	if e.SrcIP == "" || e.DstIP == "" {
		if m := arrowRe.FindStringSubmatch(text); m != nil {
			if e.SrcIP == "" {
				e.SrcIP = m[1]
			}
			if e.DstIP == "" {
				e.DstIP = m[2]
			}
		}
	}
	if e.SrcIP == "" {
		if m := fromIPRe.FindStringSubmatch(text); m != nil {
			e.SrcIP = m[1]
		}
	}
	if e.DstIP == "" {
		if m := toIPRe.FindStringSubmatch(text); m != nil {
			e.DstIP = m[1]
		}
	}
	return e
}

type networkRule struct {
	keywords []string
	result   types.NetworkType
}

// networkRules are evaluated in order; the first keyword hit wins.
var networkRules = []networkRule{
	{[]string{"sslvpn", "nsvpn", "vpn", "citrix gateway"}, types.NetworkSSLVPN},
	{[]string{"ike", "ipsec"}, types.NetworkIKE},
	{[]string{"appfw", "app firewall"}, types.NetworkAppFW},
	{[]string{"wan", "internet"}, types.NetworkWAN},
	{[]string{"lan", "intranet"}, types.NetworkLAN},
	{[]string{"dmz"}, types.NetworkDMZ},
}

// ClassifyNetworkType classifies tag+message by substring keywords.
func ClassifyNetworkType(tag, message string) types.NetworkType {
	s := strings.ToLower(tag + " " + message)
	for _, rule := range networkRules {
		for _, kw := range rule.keywords {
			if strings.Contains(s, kw) {
				return rule.result
			}
		}
	}
	return types.NetworkUnknown
}

type actionRule struct {
	pattern *regexp.Regexp
	result  string
}

// actionRules are evaluated in order; the first match wins.
var actionRules = []actionRule{
	{regexp.MustCompile(`(?i)\b(allow|accept|permit)\b`), types.ActionAllow},
	{regexp.MustCompile(`(?i)\b(deny|blocked?|drop(ped)?)\b`), types.ActionDeny},
	{regexp.MustCompile(`(?i)\b(auth|login)\s+(success|ok)\b`), types.ActionAuthSuccess},
	{regexp.MustCompile(`(?i)\b(auth|login)\s+(fail|den(y|ied))\b`), types.ActionAuthFail},
}

// InferAction derives allow/deny/auth_success/auth_fail from free text, or "".
func InferAction(message string) string {
	if message == "" {
		return ""
	}
	for _, rule := range actionRules {
		if rule.pattern.MatchString(message) {
			return rule.result
		}
	}
	return ""
}

// EventKeys are the kv keys consulted, in order, for an explicit event name.
var EventKeys = []string{"event", "eventname", "signature", "sig", "attack", "policyname", "policy", "profile"}

var eventCodeRe = regexp.MustCompile(`\b(APPFW_[A-Z_0-9]+)\b`)

// ExtractEvent picks an event name: explicit kv keys, then an APPFW_* code in
// the message, then the tag, then the first five message words, else "unknown".
func ExtractEvent(tag, message string, kv map[string]string) string {
	for _, k := range EventKeys {
		if v := CleanString(kv[k]); v != "" {
			return v
		}
	}
	if m := eventCodeRe.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	if tag = strings.TrimSpace(tag); tag != "" {
		return tag
	}
	if words := strings.Fields(message); len(words) > 0 {
		if len(words) > 5 {
			words = words[:5]
		}
		return strings.Join(words, " ")
	}
	return "unknown"
}
