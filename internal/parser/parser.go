// Package parser turns vendor log files into normalized records.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/pkg/types"
)

var (
	// ErrUnknownVendor is returned for a vendor id the registry does not know.
	ErrUnknownVendor = errors.New("unknown vendor")
	// ErrNoMatch marks a line that does not fit the vendor's format. It is
	// counted and skipped, never returned from a file parse.
	ErrNoMatch = errors.New("line does not match vendor format")
	// ErrDecode is returned when a delimited file cannot be decoded as a whole.
	ErrDecode = errors.New("decode failed")
)

// Vendor ids.
const (
	VendorFortigate  = "fortigate"
	VendorPaloAlto   = "palo_alto"
	VendorSonicwall  = "sonicwall"
	VendorCiscoFTD   = "cisco_ftd"
	VendorCheckpoint = "checkpoint"
	VendorMeraki     = "meraki"
	VendorNetscaler  = "netscaler"
	VendorSophosUTM  = "sophos_utm"
	VendorJuniper    = "juniper"
	VendorUnifi      = "unifi"
	VendorWatchguard = "watchguard"
)

// Extractor resolves the fields of a single line for one vendor format.
type Extractor interface {
	// Name returns the vendor id.
	Name() string

	// Extract returns the fields of line or ErrNoMatch.
	Extract(line string) (normalize.Fields, error)

	// Counters returns the vendor's numeric field allow-list.
	Counters() []string
}

// VendorParser parses whole inputs for one vendor.
type VendorParser interface {
	Name() string

	// Parse reads the file at path and returns one record per matching line,
	// in input order.
	Parse(ctx context.Context, path string) ([]types.Record, error)

	// Stream calls fn for every record decoded from r.
	Stream(ctx context.Context, r io.Reader, fn func(types.Record) error) (Stats, error)

	// ParseLine normalizes a single line or returns ErrNoMatch.
	ParseLine(line string) (types.Record, error)

	// Mapping describes the index layout for this vendor's records.
	Mapping() types.MappingDescriptor
}

// NewExtractor creates the extractor for a vendor id.
func NewExtractor(vendor string) (Extractor, error) {
	switch vendor {
	case VendorFortigate:
		return NewFortigateExtractor(), nil
	case VendorPaloAlto:
		return NewPaloAltoExtractor(), nil
	case VendorSonicwall:
		return NewSonicwallExtractor(), nil
	case VendorCiscoFTD:
		return NewCiscoFTDExtractor(), nil
	case VendorCheckpoint:
		return NewCheckpointExtractor(), nil
	case VendorMeraki:
		return NewMerakiExtractor(), nil
	case VendorNetscaler:
		return NewNetscalerExtractor(), nil
	case VendorSophosUTM:
		return NewSophosUTMExtractor(), nil
	case VendorJuniper:
		return NewJuniperExtractor(), nil
	case VendorUnifi:
		return NewUnifiExtractor(), nil
	case VendorWatchguard:
		return NewWatchguardExtractor(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}
}

var vendorIDs = []string{
	VendorFortigate,
	VendorPaloAlto,
	VendorSonicwall,
	VendorCiscoFTD,
	VendorCheckpoint,
	VendorMeraki,
	VendorNetscaler,
	VendorSophosUTM,
	VendorJuniper,
	VendorUnifi,
	VendorWatchguard,
}

// Registry maps vendor ids to parsers. It is built once and read-only after.
type Registry struct {
	parsers map[string]VendorParser
	names   []string
}

// NewRegistry builds a parser for every supported vendor.
func NewRegistry(opts Options, logger zerolog.Logger) *Registry {
	r := &Registry{parsers: make(map[string]VendorParser, len(vendorIDs))}
	for _, id := range vendorIDs {
		ex, err := NewExtractor(id)
		if err != nil {
			// vendorIDs and NewExtractor are maintained together.
			panic(err)
		}
		r.parsers[id] = NewLineParser(ex, opts, logger)
		r.names = append(r.names, id)
	}
	sort.Strings(r.names)
	return r
}

// Resolve returns the parser for vendor, or an error wrapping ErrUnknownVendor.
func (r *Registry) Resolve(vendor string) (VendorParser, error) {
	p, ok := r.parsers[vendor]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}
	return p, nil
}

// Vendors returns the supported vendor ids, sorted.
func (r *Registry) Vendors() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
