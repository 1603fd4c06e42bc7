package normalize

import (
	"strings"

	"github.com/cisec/eflp/pkg/types"
)

// Fields is what a vendor extractor resolves from one line before the record
// is built. Empty/nil fields are filled by inference where possible.
type Fields struct {
	Vendor      string
	Timestamp   string // raw or ISO text; converted to ISO when parseable
	Severity    types.Severity
	Host        string
	SrcIP       string
	DstIP       string
	SrcPort     *int
	DstPort     *int
	Protocol    string
	Action      string
	Message     string
	NetworkType types.NetworkType
	Event       string

	// Tag is the vendor's event tag/code, used by network type and event inference.
	Tag string
	// Line is the original input line, the message of last resort.
	Line string
	// Raw holds every key/value pair the extractor recognized.
	Raw map[string]string
	// Counters holds allow-listed numeric fields coerced to integers.
	Counters map[string]int64
}

var protocolKeys = []string{"proto", "protocol", "service_proto", "ipprotocol"}

// BuildRecord assembles a Record from f. Gaps are filled kv-first by the
// inference rules without overwriting resolved fields, strings are cleaned,
// raw keys are lower-cased and severity_rank is derived from the final severity.
func BuildRecord(f Fields) types.Record {
	raw := make(map[string]string, len(f.Raw))
	for k, v := range f.Raw {
		raw[strings.ToLower(k)] = v
	}

	message := CleanString(f.Message)
	if message == "" {
		message = strings.TrimSpace(f.Line)
	}
	tag := CleanString(f.Tag)

	r := types.Record{
		Severity:    NormalizeSeverity(string(f.Severity), types.SeverityInfo),
		Vendor:      CleanString(f.Vendor),
		Host:        CleanString(f.Host),
		SrcIP:       CleanString(f.SrcIP),
		DstIP:       CleanString(f.DstIP),
		SrcPort:     f.SrcPort,
		DstPort:     f.DstPort,
		Protocol:    CleanString(f.Protocol),
		Action:      CleanString(f.Action),
		Message:     message,
		NetworkType: f.NetworkType,
		Event:       CleanString(f.Event),
		RawFields:   raw,
	}

	if ts := CleanString(f.Timestamp); ts != "" {
		r.Timestamp = ToISOTimestamp(ts, ts)
	}

	if r.SrcIP == "" || r.DstIP == "" || r.SrcPort == nil || r.DstPort == nil {
		e := ExtractIPsAndPorts(message, raw)
		if r.SrcIP == "" {
			r.SrcIP = e.SrcIP
		}
		if r.DstIP == "" {
			r.DstIP = e.DstIP
		}
		if r.SrcPort == nil {
			r.SrcPort = e.SrcPort
		}
		if r.DstPort == nil {
			r.DstPort = e.DstPort
		}
	}
	if r.Protocol == "" {
		r.Protocol = CleanString(firstOf(raw, protocolKeys))
	}
	if r.Action == "" {
		r.Action = InferAction(message)
	}
	if r.NetworkType == "" {
		r.NetworkType = ClassifyNetworkType(tag, message)
	}
	if r.Event == "" {
		r.Event = ExtractEvent(tag, message, raw)
	}
	if len(f.Counters) > 0 {
		r.Counters = make(map[string]int64, len(f.Counters))
		for k, v := range f.Counters {
			r.Counters[strings.ToLower(k)] = v
		}
	}

	r.SeverityRank = SeverityRank(r.Severity)
	return r
}

// Counters coerces the allow-listed keys of kv to integers. Keys that are
// absent or not numeric are left out.
func Counters(kv map[string]string, allow []string) map[string]int64 {
	var out map[string]int64
	for _, k := range allow {
		v, ok := kv[k]
		if !ok {
			continue
		}
		n := OptionalInt(CleanString(v))
		if n == nil {
			continue
		}
		if out == nil {
			out = make(map[string]int64, len(allow))
		}
		out[k] = int64(*n)
	}
	return out
}
