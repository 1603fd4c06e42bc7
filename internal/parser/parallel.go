package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cisec/eflp/pkg/types"
)

type indexedLine struct {
	n    int
	text string
}

type indexedRecord struct {
	n   int
	rec types.Record
}

// ParseParallel parses the lines of r on workers goroutines. Records are
// re-sorted by line number, so the output matches a sequential parse.
func ParseParallel(ctx context.Context, vp VendorParser, r io.Reader, workers, maxLineBytes int) ([]types.Record, Stats, error) {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	start := time.Now()

	var (
		mu    sync.Mutex
		out   []indexedRecord
		stats Stats
	)

	g, gctx := errgroup.WithContext(ctx)
	lines := make(chan indexedLine, workers*64)

	g.Go(func() error {
		defer close(lines)
		scanner := newLineScanner(r, maxLineBytes)
		n := 0
		for scanner.Scan() {
			n++
			select {
			case lines <- indexedLine{n: n, text: scanner.Text()}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		mu.Lock()
		stats.Lines = n
		mu.Unlock()
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading line %d: %w", n+1, err)
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			var local []indexedRecord
			skipped := 0
			for l := range lines {
				rec, err := vp.ParseLine(l.text)
				if err != nil {
					if errors.Is(err, ErrNoMatch) {
						skipped++
						continue
					}
					return fmt.Errorf("line %d: %w", l.n, err)
				}
				local = append(local, indexedRecord{n: l.n, rec: rec})
			}
			mu.Lock()
			out = append(out, local...)
			stats.Skipped += skipped
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		ParseErrors.WithLabelValues(vp.Name(), "parallel").Inc()
		return nil, stats, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })
	records := make([]types.Record, len(out))
	for i, ir := range out {
		records[i] = ir.rec
	}

	stats.Records = len(records)
	stats.Duration = time.Since(start)
	observe(vp.Name(), stats)
	return records, stats, nil
}
