package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cisec/eflp/internal/parser"
	"github.com/cisec/eflp/pkg/protocol"
	"github.com/cisec/eflp/pkg/types"
)

const (
	streamWriteTimeout = 30 * time.Second
	streamReadTimeout  = 2 * time.Minute
)

// handleStream reads one binary frame holding a log file and answers with
// records frames followed by a done or error frame. An oversized upload is
// closed with code 1009.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	vendor := mux.Vars(r)["vendor"]
	vp, err := s.dispatcher.Registry().Resolve(vendor)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := s.logger.With().
		Str("vendor", vendor).
		Str("request_id", GetRequestID(r.Context())).
		Logger()

	conn.SetReadLimit(s.cfg.MaxUploadBytes)
	conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			logger.Warn().Int64("limit", s.cfg.MaxUploadBytes).Msg("Stream upload too large")
		} else {
			logger.Debug().Err(err).Msg("Stream closed before upload")
		}
		return
	}
	if msgType != websocket.BinaryMessage {
		s.finish(conn, logger, protocol.MessageTypeError, protocol.Error{
			Code:    protocol.CodeBadFrame,
			Message: "expected one binary frame holding the log file",
		})
		return
	}

	start := time.Now()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	recordCh := make(chan types.Record, s.cfg.Stream.BatchSize)
	seq := 0
	flush := func(ctx context.Context, records []types.Record) error {
		seq++
		return writeFrame(conn, protocol.MessageTypeRecords, protocol.RecordsBatch{
			Vendor:  vendor,
			Seq:     seq,
			Records: records,
		})
	}
	batcher := NewBatcher(recordCh, flush, logger, s.cfg.Stream.BatchSize, s.cfg.Stream.FlushInterval)

	var (
		stats     parser.Stats
		streamErr error
		flushErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		flushErr = batcher.Run(ctx)
		return flushErr
	})
	g.Go(func() error {
		defer close(recordCh)
		stats, streamErr = vp.Stream(gctx, bytes.NewReader(data), func(rec types.Record) error {
			select {
			case recordCh <- rec:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		return streamErr
	})
	g.Wait()

	if flushErr != nil {
		logger.Debug().Err(flushErr).Msg("Stream client went away")
		return
	}
	if streamErr != nil {
		logger.Warn().Err(streamErr).Msg("Stream parse failed")
		s.finish(conn, logger, protocol.MessageTypeError, protocol.Error{
			Code:    protocol.CodeRead,
			Message: streamErr.Error(),
		})
		return
	}

	s.finish(conn, logger, protocol.MessageTypeDone, protocol.Done{
		Vendor:     vendor,
		Batches:    batcher.Stats().FlushedBatches,
		Lines:      stats.Lines,
		Records:    stats.Records,
		Skipped:    stats.Skipped,
		DurationMs: time.Since(start).Milliseconds(),
	})
}

// finish writes the closing frame and a normal close.
func (s *Server) finish(conn *websocket.Conn, logger zerolog.Logger, msgType protocol.MessageType, payload interface{}) {
	if err := writeFrame(conn, msgType, payload); err != nil {
		logger.Debug().Err(err).Msg("Failed to write final frame")
		return
	}
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteTimeout),
	)
}

func writeFrame(conn *websocket.Conn, msgType protocol.MessageType, payload interface{}) error {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(msg)
}
