package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cisec/eflp/pkg/types"
)

type recordingFlusher struct {
	mu      sync.Mutex
	batches [][]types.Record
	err     error
}

func (f *recordingFlusher) flush(ctx context.Context, records []types.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, records)
	return f.err
}

func (f *recordingFlusher) snapshot() (batches, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.batches {
		total += len(b)
	}
	return len(f.batches), total
}

func TestBatcher(t *testing.T) {
	recordCh := make(chan types.Record, 100)
	f := &recordingFlusher{}

	batcher := NewBatcher(recordCh, f.flush, zerolog.Nop(), 5, 10*time.Second)

	// 12 records: two size-triggered flushes of 5, then 2 on close.
	for i := 0; i < 12; i++ {
		recordCh <- types.Record{Message: "test record"}
	}
	close(recordCh)

	if err := batcher.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	batches, total := f.snapshot()
	if batches != 3 {
		t.Errorf("Expected 3 flushes, got %d", batches)
	}
	if total != 12 {
		t.Errorf("Expected 12 records flushed, got %d", total)
	}

	stats := batcher.Stats()
	if stats.FlushedBatches != 3 {
		t.Errorf("FlushedBatches = %d, want 3", stats.FlushedBatches)
	}
	if stats.BufferedRecords != 0 {
		t.Errorf("BufferedRecords = %d, want 0", stats.BufferedRecords)
	}
}

func TestBatcherTimeBasedFlush(t *testing.T) {
	recordCh := make(chan types.Record, 100)
	f := &recordingFlusher{}

	// Batch size 100, interval 50ms - should flush on interval
	batcher := NewBatcher(recordCh, f.flush, zerolog.Nop(), 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go batcher.Run(ctx)

	for i := 0; i < 3; i++ {
		recordCh <- types.Record{Message: "test record"}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, total := f.snapshot(); total == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, total := f.snapshot()
	t.Errorf("Expected 3 records flushed on interval, got %d", total)
}

func TestBatcherFlushError(t *testing.T) {
	recordCh := make(chan types.Record, 10)
	f := &recordingFlusher{err: errors.New("connection reset")}

	batcher := NewBatcher(recordCh, f.flush, zerolog.Nop(), 2, 10*time.Second)
	for i := 0; i < 5; i++ {
		recordCh <- types.Record{}
	}
	close(recordCh)

	err := batcher.Run(context.Background())
	if err == nil || err.Error() != "connection reset" {
		t.Fatalf("Expected flush error, got %v", err)
	}

	stats := batcher.Stats()
	if stats.FailedBatches != 3 {
		t.Errorf("FailedBatches = %d, want 3", stats.FailedBatches)
	}
}

func TestBatcherCancel(t *testing.T) {
	recordCh := make(chan types.Record)
	f := &recordingFlusher{}
	batcher := NewBatcher(recordCh, f.flush, zerolog.Nop(), 10, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := batcher.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestBatcherStats(t *testing.T) {
	recordCh := make(chan types.Record, 100)
	f := &recordingFlusher{}

	batcher := NewBatcher(recordCh, f.flush, zerolog.Nop(), 50, 5*time.Second)

	stats := batcher.Stats()
	if stats.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", stats.BatchSize)
	}
	if stats.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", stats.FlushInterval)
	}
	if stats.BufferedRecords != 0 {
		t.Errorf("BufferedRecords = %d, want 0", stats.BufferedRecords)
	}
}
