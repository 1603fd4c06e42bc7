// Package normalize holds the vendor-independent half of log normalization:
// the severity model, total value converters, heuristic field inference and
// the record builder every vendor extractor funnels through.
package normalize

import (
	"strings"

	"github.com/cisec/eflp/pkg/types"
)

var severityRanks = map[types.Severity]int{
	types.SeverityCritical: 1,
	types.SeverityHigh:     2,
	types.SeverityMedium:   3,
	types.SeverityLow:      4,
	types.SeverityInfo:     5,
}

// NormalizeSeverity returns text as a canonical severity when it already is
// one (case and surrounding space ignored), otherwise fallback.
func NormalizeSeverity(text string, fallback types.Severity) types.Severity {
	s := types.Severity(strings.ToUpper(strings.TrimSpace(text)))
	if _, ok := severityRanks[s]; ok {
		return s
	}
	return fallback
}

// SeverityRank maps a severity to 1 (CRITICAL) .. 5 (INFO). Unknown values rank as INFO.
func SeverityRank(s types.Severity) int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return 5
}

// SeverityTable maps a vendor's native severity words to the canonical vocabulary.
// Lookups are case-insensitive; unmapped words resolve to INFO.
type SeverityTable map[string]types.Severity

// Lookup resolves word, reporting whether the table knew it.
func (t SeverityTable) Lookup(word string) (types.Severity, bool) {
	s, ok := t[strings.ToLower(strings.TrimSpace(word))]
	return s, ok
}

// Resolve resolves word, defaulting to INFO.
func (t SeverityTable) Resolve(word string) types.Severity {
	if s, ok := t.Lookup(word); ok {
		return s
	}
	return types.SeverityInfo
}

// SyslogLevels is the common syslog level vocabulary shared by several vendors.
var SyslogLevels = SeverityTable{
	"emergency":     types.SeverityCritical,
	"emerg":         types.SeverityCritical,
	"alert":         types.SeverityCritical,
	"critical":      types.SeverityCritical,
	"crit":          types.SeverityCritical,
	"error":         types.SeverityHigh,
	"err":           types.SeverityHigh,
	"warning":       types.SeverityMedium,
	"warn":          types.SeverityMedium,
	"notice":        types.SeverityLow,
	"information":   types.SeverityInfo,
	"informational": types.SeverityInfo,
	"info":          types.SeverityInfo,
	"debug":         types.SeverityInfo,
}
