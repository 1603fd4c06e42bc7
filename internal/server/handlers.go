package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/cisec/eflp/internal/parser"
)

// uploadField is the multipart field holding the log file.
const uploadField = "logfile"

const ndjsonContentType = "application/x-ndjson"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":      msg,
		"request_id": GetRequestID(r.Context()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
		"vendors": len(s.dispatcher.Registry().Vendors()),
	})
}

func (s *Server) handleVendors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"vendors": s.dispatcher.Registry().Vendors(),
	})
}

func (s *Server) handleMapping(w http.ResponseWriter, r *http.Request) {
	vp, err := s.dispatcher.Registry().Resolve(mux.Vars(r)["vendor"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, vp.Mapping())
}

// handleParse parses the uploaded logfile part. The part is streamed into the
// dispatcher without spooling to disk.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	vendor := mux.Vars(r)["vendor"]
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "multipart/form-data body required")
		return
	}

	var part io.ReadCloser
	name := uploadField
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.writeParseError(w, r, vendor, err)
			return
		}
		if p.FormName() != uploadField {
			p.Close()
			continue
		}
		if fn := p.FileName(); fn != "" {
			name = fn
		}
		part = p
		break
	}
	if part == nil {
		writeError(w, r, http.StatusBadRequest, "missing "+uploadField+" field")
		return
	}
	defer part.Close()

	res, err := s.dispatcher.ParseReader(r.Context(), vendor, name, part)
	if err != nil {
		s.writeParseError(w, r, vendor, err)
		return
	}

	if !wantsNDJSON(r) {
		writeJSON(w, http.StatusOK, res)
		return
	}

	w.Header().Set("Content-Type", ndjsonContentType)
	w.Header().Set("X-Eflp-Lines", strconv.Itoa(res.Stats.Lines))
	w.Header().Set("X-Eflp-Records", strconv.Itoa(res.Stats.Records))
	w.Header().Set("X-Eflp-Skipped", strconv.Itoa(res.Stats.Skipped))
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	if res.Delimited {
		for _, row := range res.Rows {
			if err := enc.Encode(row); err != nil {
				return
			}
		}
		return
	}
	for _, rec := range res.Records {
		if err := enc.Encode(rec); err != nil {
			return
		}
	}
}

func (s *Server) writeParseError(w http.ResponseWriter, r *http.Request, vendor string, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, parser.ErrUnknownVendor):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &maxErr):
		writeError(w, r, http.StatusRequestEntityTooLarge, "upload exceeds "+strconv.FormatInt(maxErr.Limit, 10)+" bytes")
	case errors.Is(err, parser.ErrDecode), errors.Is(err, bufio.ErrTooLong):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error().Err(err).
			Str("vendor", vendor).
			Str("request_id", GetRequestID(r.Context())).
			Msg("Parse request failed")
		writeError(w, r, http.StatusBadRequest, err.Error())
	}
}

func wantsNDJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "ndjson" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), ndjsonContentType)
}
