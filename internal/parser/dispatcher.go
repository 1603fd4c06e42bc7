package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cisec/eflp/pkg/types"
)

// Result is the outcome of parsing one input. Exactly one of Records or Rows
// is used: Rows when the input was decoded as generic CSV/TSV.
type Result struct {
	Vendor    string              `json:"vendor"`
	Source    string              `json:"source"`
	Delimited bool                `json:"delimited"`
	Records   []types.Record      `json:"records,omitempty"`
	Rows      []map[string]string `json:"rows,omitempty"`
	Stats     Stats               `json:"stats"`
}

// DispatchConfig tunes a Dispatcher.
type DispatchConfig struct {
	// Workers bounds concurrent files in ParseFiles and, with ParallelLines,
	// the line workers per file. Zero means one per CPU.
	Workers       int
	ParallelLines bool
	MaxLineBytes  int
}

// Dispatcher selects a parser per input: CSV/TSV names are decoded as generic
// rows whatever the declared vendor, everything else goes to the vendor's parser.
type Dispatcher struct {
	registry *Registry
	cfg      DispatchConfig
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, cfg DispatchConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// ParseFile parses the file at path. An unknown vendor is reported before the
// file is opened.
func (d *Dispatcher) ParseFile(ctx context.Context, vendor, path string) (*Result, error) {
	label := delimitedLabel
	if !IsDelimited(path) {
		vp, err := d.registry.Resolve(vendor)
		if err != nil {
			return nil, err
		}
		label = vp.Name()
	}

	f, err := os.Open(path)
	if err != nil {
		ParseErrors.WithLabelValues(label, "io").Inc()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	res, err := d.ParseReader(ctx, vendor, path, f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return res, nil
}

// ParseReader parses r; name only selects the CSV/TSV bypass and labels the result.
func (d *Dispatcher) ParseReader(ctx context.Context, vendor, name string, r io.Reader) (*Result, error) {
	res := &Result{Vendor: vendor, Source: name}

	if comma, ok := delimiterFor(name); ok {
		start := time.Now()
		rows, err := DecodeDelimited(ctx, r, comma)
		if err != nil {
			ParseErrors.WithLabelValues(delimitedLabel, "decode").Inc()
			return nil, err
		}
		res.Delimited = true
		res.Rows = rows
		res.Stats = Stats{Lines: len(rows), Records: len(rows), Duration: time.Since(start)}
		d.logger.Info().Str("source", name).Int("rows", len(rows)).Msg("Decoded delimited file")
		return res, nil
	}

	vp, err := d.registry.Resolve(vendor)
	if err != nil {
		return nil, err
	}

	if d.cfg.ParallelLines {
		records, stats, err := ParseParallel(ctx, vp, r, d.cfg.Workers, d.cfg.MaxLineBytes)
		if err != nil {
			return nil, err
		}
		res.Records, res.Stats = records, stats
	} else {
		stats, err := vp.Stream(ctx, r, func(rec types.Record) error {
			res.Records = append(res.Records, rec)
			return nil
		})
		if err != nil {
			ParseErrors.WithLabelValues(vp.Name(), "read").Inc()
			return nil, err
		}
		res.Stats = stats
	}

	d.logger.Info().
		Str("vendor", vendor).
		Str("source", name).
		Int("lines", res.Stats.Lines).
		Int("records", res.Stats.Records).
		Int("skipped", res.Stats.Skipped).
		Dur("duration", res.Stats.Duration).
		Msg("Parsed input")
	return res, nil
}

// ParseFiles parses paths concurrently. Results keep the order of paths; the
// first failure cancels the remaining work and is returned.
func (d *Dispatcher) ParseFiles(ctx context.Context, vendor string, paths []string) ([]*Result, error) {
	for _, p := range paths {
		if !IsDelimited(p) {
			if _, err := d.registry.Resolve(vendor); err != nil {
				return nil, err
			}
			break
		}
	}

	results := make([]*Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if d.cfg.Workers > 0 {
		g.SetLimit(d.cfg.Workers)
	}
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			res, err := d.ParseFile(gctx, vendor, p)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
