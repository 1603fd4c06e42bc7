// Package output forwards normalized records to an ingest endpoint.
package output

import (
	"context"
	"fmt"

	"github.com/cisec/eflp/internal/config"
	"github.com/cisec/eflp/pkg/types"
)

// Output defines the interface for sending records to a destination.
type Output interface {
	// Name returns the output name for logging.
	Name() string
	// Send sends a batch of records to the destination.
	Send(ctx context.Context, records []types.Record) error
	// Close closes the output and releases resources.
	Close() error
}

// New creates an output based on configuration.
func New(cfg config.OutputSettings) (Output, error) {
	switch cfg.Type {
	case "http":
		return NewHTTPOutput(cfg)
	default:
		return nil, fmt.Errorf("unknown output type: %s", cfg.Type)
	}
}

// SendAll sends records in batches of batchSize, in order. It stops at the
// first failed batch and returns how many records were delivered.
func SendAll(ctx context.Context, o Output, records []types.Record, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = len(records)
	}

	sent := 0
	for sent < len(records) {
		end := sent + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := o.Send(ctx, records[sent:end]); err != nil {
			return sent, fmt.Errorf("%s output: %w", o.Name(), err)
		}
		sent = end
	}
	return sent, nil
}
