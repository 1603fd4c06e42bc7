package parser

import (
	"encoding/csv"
	"regexp"
	"strconv"
	"strings"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/internal/syslog"
	"github.com/cisec/eflp/pkg/types"
)

// Column positions of the PAN-OS TRAFFIC/THREAT layouts.
const (
	panReceiveTime   = 1
	panSerial        = 2
	panType          = 3
	panSubtype       = 4
	panGeneratedTime = 6
	panSrc           = 7
	panDst           = 8
	panRule          = 11
	panApp           = 14
	panFromZone      = 16
	panToZone        = 17
	panSessionID     = 22
	panRepeatCount   = 23
	panSport         = 24
	panDport         = 25
	panProto         = 29
	panAction        = 30

	panMinColumns    = 4
	panDetailColumns = 31
)

var panLogTypes = normalize.SeverityTable{
	"threat": types.SeverityHigh,
	"system": types.SeverityMedium,
}

var paloAltoCounters = []string{"session_id", "repeat_count", "sport", "dport"}

// "1 2024-01-15T10:30:00Z host payload" after a bare <pri>.
var panStructuredHeader = regexp.MustCompile(`^(?:\d{1,2}\s+)?(\S+)\s+(\S+)\s+(.+)$`)

// PaloAltoExtractor parses PAN-OS CSV logs behind a syslog header.
type PaloAltoExtractor struct {
	logTypes normalize.SeverityTable
	counters []string
}

// NewPaloAltoExtractor creates a PaloAltoExtractor.
func NewPaloAltoExtractor() *PaloAltoExtractor {
	return &PaloAltoExtractor{logTypes: panLogTypes, counters: paloAltoCounters}
}

// Name returns the vendor id.
func (e *PaloAltoExtractor) Name() string { return VendorPaloAlto }

// Counters returns the numeric allow-list.
func (e *PaloAltoExtractor) Counters() []string { return e.counters }

// Extract parses one line. Rows with fewer than four columns are skipped.
func (e *PaloAltoExtractor) Extract(line string) (normalize.Fields, error) {
	line = strings.TrimSpace(line)
	h := syslog.ParseHeader(line)
	if !h.HasPriority() {
		return normalize.Fields{}, ErrNoMatch
	}

	sysTS, host, payload := h.Timestamp, h.Host, h.Payload
	if sysTS == "" {
		m := panStructuredHeader.FindStringSubmatch(h.Payload)
		if m == nil {
			return normalize.Fields{}, ErrNoMatch
		}
		sysTS, host, payload = m[1], m[2], m[3]
	}

	cols, err := splitCSV(payload)
	if err != nil || len(cols) < panMinColumns {
		return normalize.Fields{}, ErrNoMatch
	}

	logType := strings.ToUpper(cols[panType])
	raw := map[string]string{
		"syslog_priority":  strconv.Itoa(h.Priority),
		"syslog_timestamp": sysTS,
		"syslog_host":      host,
		"receive_time":     cols[panReceiveTime],
		"serial":           cols[panSerial],
		"type":             logType,
	}

	var parts []string
	if len(cols) > panSubtype {
		raw["subtype"] = cols[panSubtype]
		parts = append(parts, "Host: "+cols[panSubtype])
	}
	if len(cols) > panGeneratedTime {
		raw["generated_time"] = cols[panGeneratedTime]
		parts = append(parts, "Extra: "+cols[panGeneratedTime])
	}
	message := payload
	if len(parts) > 0 {
		message = strings.Join(parts, " | ")
	}

	f := normalize.Fields{
		Timestamp: firstNonEmpty(cols[panReceiveTime], sysTS),
		Severity:  e.logTypes.Resolve(logType),
		Host:      host,
		Message:   message,
		Tag:       logType,
		Line:      line,
		Raw:       raw,
	}

	if len(cols) >= panDetailColumns {
		named := map[string]int{
			"src":          panSrc,
			"dst":          panDst,
			"rule":         panRule,
			"app":          panApp,
			"from_zone":    panFromZone,
			"to_zone":      panToZone,
			"session_id":   panSessionID,
			"repeat_count": panRepeatCount,
			"sport":        panSport,
			"dport":        panDport,
			"proto":        panProto,
			"action":       panAction,
		}
		for k, i := range named {
			raw[k] = cols[i]
		}
		f.SrcIP = cols[panSrc]
		f.DstIP = cols[panDst]
		f.SrcPort = normalize.OptionalInt(cols[panSport])
		f.DstPort = normalize.OptionalInt(cols[panDport])
		f.Protocol = cols[panProto]
		f.Action = cols[panAction]
		f.Event = cols[panRule]
		f.Counters = normalize.Counters(raw, e.counters)
	}
	return f, nil
}

func splitCSV(s string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(s))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	cols, err := r.Read()
	if err != nil {
		return nil, err
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols, nil
}
