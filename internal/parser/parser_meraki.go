package parser

import (
	"regexp"
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/internal/syslog"
	"github.com/cisec/eflp/pkg/types"
)

var (
	merakiEpochRe = regexp.MustCompile(`^\d{9,13}(?:\.\d+)?$`)
	merakiKeyRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)
)

var merakiPriorities = map[int]types.Severity{
	1: types.SeverityHigh,
	2: types.SeverityMedium,
	3: types.SeverityLow,
	4: types.SeverityInfo,
}

var merakiCounters = []string{"sport", "dport", "src_port", "dest_port", "priority"}

// MerakiExtractor parses Meraki MX/MS syslog, a positional form:
//
//	<134>1 1700000000.1 MX84 flows src=10.0.0.5 dst=8.8.8.8 protocol=udp sport=5353 dport=53 pattern: allow all
//
// Plain key=value lines are accepted too.
type MerakiExtractor struct {
	priorities map[int]types.Severity
	counters   []string
}

// NewMerakiExtractor creates a MerakiExtractor.
func NewMerakiExtractor() *MerakiExtractor {
	return &MerakiExtractor{priorities: merakiPriorities, counters: merakiCounters}
}

// Name returns the vendor id.
func (e *MerakiExtractor) Name() string { return VendorMeraki }

// Counters returns the numeric allow-list.
func (e *MerakiExtractor) Counters() []string { return e.counters }

type merakiTokens struct {
	epoch     string
	device    string
	eventType string
	kv        map[string]string
	words     []string
}

// tokenizeMeraki walks the payload tokens: epoch, device and event type up
// front, then key=value tokens and "key: words..." runs. Everything else is
// collected as message words.
func tokenizeMeraki(payload string) merakiTokens {
	t := merakiTokens{kv: make(map[string]string)}
	tokens := strings.Fields(payload)

	// Drop the "1" version that follows <pri> in the structured form.
	if len(tokens) > 1 && len(tokens[0]) <= 2 && normalize.OptionalInt(tokens[0]) != nil && merakiEpochRe.MatchString(tokens[1]) {
		tokens = tokens[1:]
	}

	i := 0
	if i < len(tokens) && merakiEpochRe.MatchString(tokens[i]) {
		t.epoch = tokens[i]
		i++
		if i < len(tokens) && isPlainToken(tokens[i]) {
			t.device = tokens[i]
			i++
		}
		if i < len(tokens) && isPlainToken(tokens[i]) {
			t.eventType = tokens[i]
			i++
		}
	}

	run := ""
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		if k, v, ok := strings.Cut(tok, "="); ok && merakiKeyRe.MatchString(k) {
			// Quoted values may span tokens.
			if q := v; len(q) > 0 && (q[0] == '\'' || q[0] == '"') && (len(q) == 1 || q[len(q)-1] != q[0]) {
				for i+1 < len(tokens) {
					i++
					v += " " + tokens[i]
					if strings.HasSuffix(tokens[i], q[:1]) {
						break
					}
				}
			}
			key := strings.ToLower(k)
			if _, seen := t.kv[key]; !seen {
				t.kv[key] = unquote(v)
			}
			run = ""
			continue
		}
		if len(tok) > 1 && strings.HasSuffix(tok, ":") && merakiKeyRe.MatchString(tok[:len(tok)-1]) {
			run = strings.ToLower(tok[:len(tok)-1])
			if _, seen := t.kv[run]; !seen {
				t.kv[run] = ""
			}
			continue
		}
		if run != "" {
			if t.kv[run] == "" {
				t.kv[run] = tok
			} else {
				t.kv[run] += " " + tok
			}
			continue
		}
		t.words = append(t.words, tok)
	}
	return t
}

func isPlainToken(tok string) bool {
	return !strings.Contains(tok, "=") && !strings.HasSuffix(tok, ":")
}

// Extract parses one line. Lines with neither an epoch prefix nor any
// key/value content are skipped.
func (e *MerakiExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)
	h := syslog.ParseHeader(line)

	t := tokenizeMeraki(h.Payload)
	if t.epoch == "" && len(t.kv) == 0 {
		return normalize.Fields{}, ErrNoMatch
	}
	kv := t.kv
	if t.eventType != "" {
		kv["event_type"] = t.eventType
	}

	severity := h.Severity()
	if p := normalize.OptionalInt(kv["priority"]); p != nil {
		if s, ok := e.priorities[*p]; ok {
			severity = s
		}
	}

	srcIP, srcPort, _ := splitHostPort(firstNonEmpty(kv["src"], kv["src_ip"]))
	dstIP, dstPort, _ := splitHostPort(firstNonEmpty(kv["dst"], kv["dest_ip"]))

	action := kv["action"]
	if action == "" {
		action = normalize.InferAction(kv["pattern"])
	}

	message := strings.Join(t.words, " ")
	if message == "" {
		message = firstNonEmpty(kv["message"], kv["request"], h.Payload)
	}

	return normalize.Fields{
		Timestamp: firstNonEmpty(t.epoch, kv["timestamp"], h.Timestamp),
		Severity:  severity,
		Host:      firstNonEmpty(t.device, h.Host),
		SrcIP:     srcIP,
		DstIP:     dstIP,
		SrcPort:   normalize.OptionalInt(firstNonEmpty(kv["sport"], kv["src_port"], srcPort)),
		DstPort:   normalize.OptionalInt(firstNonEmpty(kv["dport"], kv["dest_port"], dstPort)),
		Protocol:  kv["protocol"],
		Action:    action,
		Message:   message,
		Event:     kv["type"],
		Tag:       t.eventType,
		Line:      line,
		Raw:       kv,
		Counters:  normalize.Counters(kv, e.counters),
	}, nil
}
