package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cisec/eflp/pkg/types"
)

// Batcher collects records and flushes them in batches.
type Batcher struct {
	recordCh      <-chan types.Record
	flushCallback func(ctx context.Context, records []types.Record) error
	logger        zerolog.Logger

	// Configuration
	batchSize     int
	flushInterval time.Duration

	// State
	mu      sync.Mutex
	buffer  []types.Record
	flushed int
	failed  int
	err     error
}

// NewBatcher creates a new record batcher.
func NewBatcher(
	recordCh <-chan types.Record,
	flushCallback func(ctx context.Context, records []types.Record) error,
	logger zerolog.Logger,
	batchSize int,
	flushInterval time.Duration,
) *Batcher {
	return &Batcher{
		recordCh:      recordCh,
		flushCallback: flushCallback,
		logger:        logger.With().Str("component", "batcher").Logger(),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		buffer:        make([]types.Record, 0, batchSize),
	}
}

// Run processes records until the channel is closed or ctx is cancelled. It
// returns the first flush error, if any; later batches are still attempted.
func (b *Batcher) Run(ctx context.Context) error {
	b.logger.Debug().
		Int("batch_size", b.batchSize).
		Dur("flush_interval", b.flushInterval).
		Msg("Starting batcher")
	defer b.logger.Debug().Msg("Batcher stopped")

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case rec, ok := <-b.recordCh:
			if !ok {
				// Channel closed
				b.flush(ctx)
				return b.firstErr()
			}
			b.add(ctx, rec)

		case <-ticker.C:
			b.flush(ctx)
		}
	}
}

// add adds a record to the buffer and flushes if batch size reached.
func (b *Batcher) add(ctx context.Context, rec types.Record) {
	b.mu.Lock()
	b.buffer = append(b.buffer, rec)
	shouldFlush := len(b.buffer) >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		b.flush(ctx)
	}
}

// flush hands the buffered records to the callback.
func (b *Batcher) flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return
	}

	// Take ownership of buffer and create new one
	records := b.buffer
	b.buffer = make([]types.Record, 0, b.batchSize)
	b.mu.Unlock()

	b.logger.Debug().Int("count", len(records)).Msg("Flushing batch")

	err := b.flushCallback(ctx, records)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.logger.Error().Err(err).Int("count", len(records)).Msg("Flush failed")
		b.failed++
		if b.err == nil {
			b.err = err
		}
		return
	}
	b.flushed++
}

func (b *Batcher) firstErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Stats returns current batcher statistics.
func (b *Batcher) Stats() BatcherStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BatcherStats{
		BufferedRecords: len(b.buffer),
		FlushedBatches:  b.flushed,
		FailedBatches:   b.failed,
		BatchSize:       b.batchSize,
		FlushInterval:   b.flushInterval,
	}
}

// BatcherStats contains batcher statistics.
type BatcherStats struct {
	BufferedRecords int           `json:"buffered_records"`
	FlushedBatches  int           `json:"flushed_batches"`
	FailedBatches   int           `json:"failed_batches"`
	BatchSize       int           `json:"batch_size"`
	FlushInterval   time.Duration `json:"flush_interval"`
}
