package output

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisec/eflp/internal/config"
	"github.com/cisec/eflp/pkg/types"
)

type ingestServer struct {
	mu       sync.Mutex
	batches  [][]types.Record
	auth     []string
	failWith int
}

func (s *ingestServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.failWith != 0 {
		http.Error(w, "ingest unavailable", s.failWith)
		return
	}

	gz, err := gzip.NewReader(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var batch []types.Record
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		var rec types.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		batch = append(batch, rec)
	}

	s.mu.Lock()
	s.batches = append(s.batches, batch)
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func records(n int) []types.Record {
	out := make([]types.Record, n)
	for i := range out {
		out[i] = types.Record{Vendor: "fortigate", Message: "line", SeverityRank: 5, Severity: types.SeverityInfo}
	}
	return out
}

func testSettings(url string) config.OutputSettings {
	cfg := config.DefaultConfig().Output
	cfg.URL = url
	cfg.APIToken = "ingest-token"
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestHTTPOutputSend(t *testing.T) {
	ingest := &ingestServer{}
	srv := httptest.NewServer(ingest)
	defer srv.Close()

	o, err := NewHTTPOutput(testSettings(srv.URL))
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.Send(context.Background(), records(3)))
	require.NoError(t, o.Send(context.Background(), nil))

	require.Len(t, ingest.batches, 1)
	assert.Len(t, ingest.batches[0], 3)
	assert.Equal(t, "fortigate", ingest.batches[0][0].Vendor)
	assert.Equal(t, "Bearer ingest-token", ingest.auth[0])

	stats := o.Stats()
	assert.Equal(t, int64(1), stats.SentBatches)
	assert.Equal(t, int64(3), stats.SentRecords)
	assert.Zero(t, stats.FailedBatches)
}

func TestHTTPOutputFailure(t *testing.T) {
	srv := httptest.NewServer(&ingestServer{failWith: http.StatusServiceUnavailable})
	defer srv.Close()

	o, err := NewHTTPOutput(testSettings(srv.URL))
	require.NoError(t, err)

	err = o.Send(context.Background(), records(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
	assert.Equal(t, int64(1), o.Stats().FailedBatches)
}

func TestSendAll(t *testing.T) {
	ingest := &ingestServer{}
	srv := httptest.NewServer(ingest)
	defer srv.Close()

	o, err := New(testSettings(srv.URL))
	require.NoError(t, err)

	sent, err := SendAll(context.Background(), o, records(7), 3)
	require.NoError(t, err)
	assert.Equal(t, 7, sent)

	sizes := make([]int, 0, len(ingest.batches))
	for _, b := range ingest.batches {
		sizes = append(sizes, len(b))
	}
	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func TestSendAllStopsOnFailure(t *testing.T) {
	srv := httptest.NewServer(&ingestServer{failWith: http.StatusBadGateway})
	defer srv.Close()

	o, err := New(testSettings(srv.URL))
	require.NoError(t, err)

	sent, err := SendAll(context.Background(), o, records(5), 2)
	require.Error(t, err)
	assert.Zero(t, sent)
	assert.Contains(t, err.Error(), "http output")
}

func TestNew(t *testing.T) {
	_, err := New(config.OutputSettings{Type: "kafka", URL: "http://localhost"})
	assert.Error(t, err)

	_, err = New(config.OutputSettings{Type: "http"})
	assert.Error(t, err)
}
