// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi is the public-facing HTTP surface over pkg/stream's
// Core: append, read, check_tail, reconfigure, delete_stream. It handles
// incoming requests, maps Core results onto HTTP status codes, and returns
// JSON responses.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"streamkeeper/internal/config"
	"streamkeeper/internal/streamerr"
	"streamkeeper/internal/streamid"
	"streamkeeper/pkg/stream"
)

// Server handles HTTP requests against a single Core.
type Server struct {
	core   *stream.Core
	logger *zap.Logger
}

// NewServer constructs a Server over core.
func NewServer(core *stream.Core, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{core: core, logger: logger}
}

// RegisterRoutes sets up the HTTP routes for the server on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/append", s.handleAppend)
	mux.HandleFunc("/read", s.handleRead)
	mux.HandleFunc("/check_tail", s.handleCheckTail)
	mux.HandleFunc("/reconfigure", s.handleReconfigure)
	mux.HandleFunc("/delete_stream", s.handleDeleteStream)
}

// ListenAndServe starts the HTTP server on addr with fixed read/write/idle
// timeouts.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second, // tailing reads can legitimately hold a connection open
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("streamkeeper HTTP API listening", zap.String("addr", addr))
	return httpServer.ListenAndServe()
}

type appendRequestBody struct {
	Basin    string            `json:"basin"`
	Stream   string            `json:"stream"`
	Records  []recordBody      `json:"records"`
	MatchSeq *uint64           `json:"match_seq,omitempty"`
}

type recordBody struct {
	Timestamp *uint64           `json:"timestamp,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      []byte            `json:"body"`
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body appendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if body.Basin == "" || body.Stream == "" {
		http.Error(w, "basin and stream are required", http.StatusBadRequest)
		return
	}

	records := make([]stream.AppendRecord, 0, len(body.Records))
	for _, rb := range body.Records {
		records = append(records, stream.AppendRecord{
			Timestamp: rb.Timestamp,
			Headers:   headersFromMap(rb.Headers),
			Body:      rb.Body,
		})
	}

	res := s.core.Append(r.Context(), body.Basin, body.Stream, records, body.MatchSeq)
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"first_seq": res.FirstSeq,
		"last_seq":  res.LastSeq,
		"last_ts":   res.LastTs,
		"tail_after": map[string]uint64{
			"next_seq": res.TailAfter.NextSeq,
			"last_ts":  res.TailAfter.LastTs,
		},
	})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	basin, streamName := q.Get("basin"), q.Get("stream")
	if basin == "" || streamName == "" {
		http.Error(w, "basin and stream are required", http.StatusBadRequest)
		return
	}
	limit := 0
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var (
		recs []streamid.Record
		err  error
	)
	if ts := q.Get("from_timestamp"); ts != "" {
		n, perr := strconv.ParseUint(ts, 10, 64)
		if perr != nil {
			http.Error(w, "invalid from_timestamp", http.StatusBadRequest)
			return
		}
		recs, err = s.core.ReadByTimestamp(r.Context(), basin, streamName, n, limit)
	} else {
		fromSeq := uint64(0)
		if fs := q.Get("from_seq"); fs != "" {
			n, perr := strconv.ParseUint(fs, 10, 64)
			if perr != nil {
				http.Error(w, "invalid from_seq", http.StatusBadRequest)
				return
			}
			fromSeq = n
		}
		recs, err = s.core.ReadBySeq(r.Context(), basin, streamName, fromSeq, limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleCheckTail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	basin, streamName := q.Get("basin"), q.Get("stream")
	if basin == "" || streamName == "" {
		http.Error(w, "basin and stream are required", http.StatusBadRequest)
		return
	}
	pos, err := s.core.CheckTail(r.Context(), basin, streamName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"next_seq": pos.NextSeq, "last_ts": pos.LastTs})
}

type reconfigureRequestBody struct {
	Basin                  string `json:"basin"`
	Stream                 string `json:"stream"`
	RetentionSeconds       int64  `json:"retention_seconds"`
	StrictClientTimestamps bool   `json:"strict_client_timestamps"`
	PipelineDepth          int    `json:"pipeline_depth"`
}

func (s *Server) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body reconfigureRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	cfg := config.StreamConfig{
		RetentionSeconds:       body.RetentionSeconds,
		StrictClientTimestamps: body.StrictClientTimestamps,
		PipelineDepth:          body.PipelineDepth,
	}
	if err := s.core.Reconfigure(r.Context(), body.Basin, body.Stream, cfg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	basin, streamName := q.Get("basin"), q.Get("stream")
	if basin == "" || streamName == "" {
		http.Error(w, "basin and stream are required", http.StatusBadRequest)
		return
	}
	if err := s.core.DeleteStream(r.Context(), basin, streamName); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func headersFromMap(m map[string]string) []streamid.Header {
	if len(m) == 0 {
		return nil
	}
	headers := make([]streamid.Header, 0, len(m))
	for name, value := range m {
		headers = append(headers, streamid.Header{Name: []byte(name), Value: []byte(value)})
	}
	return headers
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch streamerr.KindOf(err) {
	case streamerr.KindNotFound:
		status = http.StatusNotFound
	case streamerr.KindAlreadyExists:
		status = http.StatusConflict
	case streamerr.KindInvalidArgument, streamerr.KindWrongSeq, streamerr.KindNonMonotonicTimestamp:
		status = http.StatusBadRequest
	case streamerr.KindUnavailable:
		status = http.StatusServiceUnavailable
	case streamerr.KindAborted:
		status = http.StatusConflict
	case streamerr.KindCorrupt:
		status = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), status)
}
