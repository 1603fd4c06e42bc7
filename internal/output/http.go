package output

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cisec/eflp/internal/config"
	"github.com/cisec/eflp/pkg/types"
)

// HTTPOutput posts gzipped NDJSON batches to an ingest endpoint. A failed
// batch is reported, not retried.
type HTTPOutput struct {
	cfg        config.OutputSettings
	httpClient *http.Client

	// Statistics
	mu            sync.RWMutex
	sentBatches   int64
	sentRecords   int64
	failedBatches int64
}

// NewHTTPOutput creates a new HTTP output.
func NewHTTPOutput(cfg config.OutputSettings) (*HTTPOutput, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("HTTP output URL is required")
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &HTTPOutput{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}, nil
}

// Name returns the output name.
func (o *HTTPOutput) Name() string {
	return "http"
}

// Send posts one batch.
func (o *HTTPOutput) Send(ctx context.Context, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}

	payload, err := encodeNDJSON(records)
	if err != nil {
		return fmt.Errorf("preparing payload: %w", err)
	}

	if err := o.doRequest(ctx, payload); err != nil {
		o.recordFailure()
		return err
	}
	o.recordSuccess(len(records))
	return nil
}

// encodeNDJSON writes one record per line, gzipped.
func encodeNDJSON(records []types.Record) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	encoder := json.NewEncoder(gz)

	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return nil, fmt.Errorf("encoding record: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (o *HTTPOutput) doRequest(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("User-Agent", "eflp/1.0")

	if o.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIToken)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	// Read response body for error messages
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func (o *HTTPOutput) recordSuccess(n int) {
	o.mu.Lock()
	o.sentBatches++
	o.sentRecords += int64(n)
	o.mu.Unlock()
}

func (o *HTTPOutput) recordFailure() {
	o.mu.Lock()
	o.failedBatches++
	o.mu.Unlock()
}

// Stats returns output statistics.
func (o *HTTPOutput) Stats() HTTPOutputStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return HTTPOutputStats{
		SentBatches:   o.sentBatches,
		SentRecords:   o.sentRecords,
		FailedBatches: o.failedBatches,
	}
}

// Close closes the HTTP output.
func (o *HTTPOutput) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// HTTPOutputStats contains HTTP output statistics.
type HTTPOutputStats struct {
	SentBatches   int64 `json:"sent_batches"`
	SentRecords   int64 `json:"sent_records"`
	FailedBatches int64 `json:"failed_batches"`
}
