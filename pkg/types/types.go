// Package types defines the normalized record schema shared by parsers and their consumers.
package types

// Severity is the canonical five-level severity vocabulary.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// NetworkType is a coarse traffic classification inferred from tags and messages.
type NetworkType string

const (
	NetworkSSLVPN  NetworkType = "sslvpn"
	NetworkIKE     NetworkType = "ike"
	NetworkAppFW   NetworkType = "appfw"
	NetworkWAN     NetworkType = "wan"
	NetworkLAN     NetworkType = "lan"
	NetworkDMZ     NetworkType = "dmz"
	NetworkUnknown NetworkType = "unknown"
)

// Inferred action values. Vendors that label the action explicitly keep their own word.
const (
	ActionAllow       = "allow"
	ActionDeny        = "deny"
	ActionAuthSuccess = "auth_success"
	ActionAuthFail    = "auth_fail"
)

// Record is one normalized log line.
type Record struct {
	Timestamp    string            `json:"timestamp"`
	Severity     Severity          `json:"severity"`
	SeverityRank int               `json:"severity_rank"`
	Vendor       string            `json:"vendor"`
	Host         string            `json:"host"`
	SrcIP        string            `json:"src_ip,omitempty"`
	DstIP        string            `json:"dst_ip,omitempty"`
	SrcPort      *int              `json:"src_port,omitempty"`
	DstPort      *int              `json:"dst_port,omitempty"`
	Protocol     string            `json:"protocol,omitempty"`
	Action       string            `json:"action,omitempty"`
	Message      string            `json:"message"`
	NetworkType  NetworkType       `json:"network_type"`
	Event        string            `json:"event"`
	RawFields    map[string]string `json:"raw_fields"`
	Counters     map[string]int64  `json:"counters,omitempty"`
}

// Declared field types understood by the downstream index.
const (
	FieldDate    = "date"
	FieldKeyword = "keyword"
	FieldIP      = "ip"
	FieldInteger = "integer"
	FieldLong    = "long"
	FieldText    = "text"
	FieldObject  = "object"
)

// FieldMapping declares how one record field is typed downstream.
type FieldMapping struct {
	Type       string                  `json:"type,omitempty"`
	Enabled    *bool                   `json:"enabled,omitempty"`
	Properties map[string]FieldMapping `json:"properties,omitempty"`
}

// Mappings is the body of a MappingDescriptor.
type Mappings struct {
	Properties map[string]FieldMapping `json:"properties"`
}

// MappingDescriptor is the index/table layout consumed by export collaborators:
// {"mappings": {"properties": {field: {"type": ...}}}}.
type MappingDescriptor struct {
	Mappings Mappings `json:"mappings"`
}
