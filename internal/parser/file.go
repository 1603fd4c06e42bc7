package parser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/cisec/eflp/internal/normalize"
	"github.com/cisec/eflp/pkg/types"
)

const (
	// DefaultMaxLineBytes bounds a single input line.
	DefaultMaxLineBytes = 1024 * 1024
	// maxLoggedLine truncates lines echoed into debug logs.
	maxLoggedLine = 256
)

// Options tunes how input is read.
type Options struct {
	MaxLineBytes int
}

// DefaultOptions returns the default read options.
func DefaultOptions() Options {
	return Options{MaxLineBytes: DefaultMaxLineBytes}
}

// Stats summarizes one parse. Skipped includes blank lines.
type Stats struct {
	Lines    int           `json:"lines"`
	Records  int           `json:"records"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// LineParser adapts a line Extractor into a VendorParser.
type LineParser struct {
	extractor Extractor
	opts      Options
	logger    zerolog.Logger
	mapping   types.MappingDescriptor
}

// NewLineParser wraps ex.
func NewLineParser(ex Extractor, opts Options, logger zerolog.Logger) *LineParser {
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}
	return &LineParser{
		extractor: ex,
		opts:      opts,
		logger:    logger.With().Str("component", "parser").Str("vendor", ex.Name()).Logger(),
		mapping:   normalize.SchemaDescriptor(ex.Counters()),
	}
}

// Name returns the vendor id.
func (p *LineParser) Name() string {
	return p.extractor.Name()
}

// Mapping returns the vendor's mapping descriptor.
func (p *LineParser) Mapping() types.MappingDescriptor {
	return p.mapping
}

// ParseLine normalizes one line.
func (p *LineParser) ParseLine(line string) (types.Record, error) {
	if strings.TrimSpace(line) == "" {
		return types.Record{}, ErrNoMatch
	}
	f, err := p.extractor.Extract(line)
	if err != nil {
		return types.Record{}, err
	}
	f.Vendor = p.extractor.Name()
	if f.Line == "" {
		f.Line = line
	}
	return normalize.BuildRecord(f), nil
}

// Parse opens path and collects every record.
func (p *LineParser) Parse(ctx context.Context, path string) ([]types.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []types.Record
	_, err = p.Stream(ctx, f, func(r types.Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}

// Stream decodes r line by line, tolerating invalid UTF-8, and calls fn for
// each record in input order. Non-matching lines are skipped. An error from fn
// stops the stream and is returned.
func (p *LineParser) Stream(ctx context.Context, r io.Reader, fn func(types.Record) error) (Stats, error) {
	var stats Stats
	start := time.Now()
	vendor := p.Name()
	defer func() {
		stats.Duration = time.Since(start)
		observe(vendor, stats)
	}()

	scanner := newLineScanner(r, p.opts.MaxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++

		line := scanner.Text()
		rec, err := p.ParseLine(line)
		if err != nil {
			if errors.Is(err, ErrNoMatch) {
				stats.Skipped++
				p.logSkip(stats.Lines, line)
				continue
			}
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}

		stats.Records++
		if err := fn(rec); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading line %d: %w", stats.Lines+1, err)
	}
	return stats, nil
}

func (p *LineParser) logSkip(lineNo int, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(line) > maxLoggedLine {
		line = line[:maxLoggedLine]
	}
	p.logger.Debug().Int("line", lineNo).Str("text", line).Msg("Skipping unmatched line")
}

// newLineScanner reads r as UTF-8, replacing invalid bytes with U+FFFD. A
// leading byte order mark is honoured, so UTF-16 exports decode too.
func newLineScanner(r io.Reader, maxLine int) *bufio.Scanner {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	scanner := bufio.NewScanner(decoded)
	initial := 64 * 1024
	if maxLine < initial {
		initial = maxLine
	}
	scanner.Buffer(make([]byte, initial), maxLine)
	return scanner
}
