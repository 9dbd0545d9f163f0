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

// Package streamer implements the per-stream coordinator: the single
// long-lived goroutine that owns one stream's tail, admits and sequences
// appends, commits them durably in pipelined batches, and publishes
// acknowledged records to tailing readers.
package streamer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"streamkeeper/internal/config"
	"streamkeeper/internal/kv"
	"streamkeeper/internal/streamerr"
	"streamkeeper/internal/streamid"
	"streamkeeper/internal/tail"
)

// State is the Streamer's lifecycle stage.
type State int32

const (
	StateResolving State = iota
	StateReady
	StateDraining
	StateShutdown
)

// AppendRecordIn is one record as submitted by a caller, before sequencing.
type AppendRecordIn struct {
	// Timestamp is the client-supplied timestamp, or nil to let the
	// Streamer assign one from its clock.
	Timestamp *uint64
	Headers   []streamid.Header
	Body      []byte
}

// AppendRequest is the inbound contract for an append: a non-empty batch of
// records, an optional optimistic-concurrency hint, and a reply channel.
type AppendRequest struct {
	Ctx      context.Context
	Records  []AppendRecordIn
	MatchSeq *uint64
	reply    chan AppendResult
}

// AppendResult is the Streamer's one reply to an AppendRequest.
type AppendResult struct {
	FirstSeq  uint64
	LastSeq   uint64
	LastTs    uint64
	TailAfter tail.Position
	Err       error
}

// Limits bounds what a single AppendRequest may contain, checked during
// admission before any sequencing happens.
type Limits struct {
	MaxRecords     int
	MaxBatchBytes  int
	MaxRecordBytes int
}

// DefaultLimits mirrors conservative production defaults; callers
// overriding these should do so via StreamConfig-derived Options.
var DefaultLimits = Limits{
	MaxRecords:     1000,
	MaxBatchBytes:  1 << 20,
	MaxRecordBytes: 1 << 18,
}

// Options configures a new Streamer.
type Options struct {
	Store         kv.Store
	Clock         streamid.Clock
	StreamConfig  config.StreamConfig
	Limits        Limits
	PipelineDepth int // bound on concurrent in-flight commit batches; defaults to 1 when <= 0
	InboxCapacity int
	BroadcastCap  int
	Logger        *zap.Logger
}

// Streamer is the per-stream coordinator. Exactly one goroutine (Run) ever
// mutates nextSeq/lastTs/generation; every other field is either atomic or
// owned by the broadcast hub's own lock.
type Streamer struct {
	id     streamid.ID
	store  kv.Store
	clock  streamid.Clock
	cfg    config.StreamConfig
	limits Limits
	depth  int
	logger *zap.Logger
	hub    *broadcastHub
	inbox  chan *AppendRequest
	stopCh chan struct{}
	doneCh chan struct{}
	ready  chan struct{}

	state        atomic.Int32
	lastActivity atomic.Int64 // UnixNano, updated on every admitted request

	confirmedNextSeq atomic.Uint64
	confirmedLastTs  atomic.Uint64

	startMu  sync.Mutex
	startErr error
}

// New constructs a Streamer for id. Call Run in its own goroutine to start
// the tail-resolution and admission loop.
func New(id streamid.ID, opts Options) *Streamer {
	depth := opts.PipelineDepth
	if depth <= 0 {
		depth = 1
	}
	limits := opts.Limits
	if limits.MaxRecords <= 0 {
		limits = DefaultLimits
	}
	inboxCap := opts.InboxCapacity
	if inboxCap <= 0 {
		inboxCap = 64
	}
	broadcastCap := opts.BroadcastCap
	if broadcastCap <= 0 {
		broadcastCap = 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Streamer{
		id:     id,
		store:  opts.Store,
		clock:  opts.Clock,
		cfg:    opts.StreamConfig,
		limits: limits,
		depth:  depth,
		logger: logger.With(zap.String("stream_id", id.String())),
		hub:    newBroadcastHub(broadcastCap),
		inbox:  make(chan *AppendRequest, inboxCap),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		ready:  make(chan struct{}),
	}
	s.state.Store(int32(StateResolving))
	return s
}

// State returns the Streamer's current lifecycle stage.
func (s *Streamer) State() State {
	return State(s.state.Load())
}

// ID returns the stream identity this Streamer serves.
func (s *Streamer) ID() streamid.ID {
	return s.id
}

// IdleSince reports how long it has been since the last admitted request.
// A zero lastActivity (nothing admitted yet) reports zero, so a freshly
// spawned Streamer is never mistaken for an idle one.
func (s *Streamer) IdleSince() time.Duration {
	last := s.lastActivity.Load()
	if last == 0 {
		return 0
	}
	return time.Since(time.Unix(0, last))
}

// Subscribe attaches a tailing reader starting at fromSeq. The caller is
// expected to have already scanned durable records up to fromSeq-1.
func (s *Streamer) Subscribe(fromSeq uint64) *Subscription {
	return s.hub.Subscribe(fromSeq)
}

// CheckTail returns the durably-confirmed tail position.
func (s *Streamer) CheckTail() tail.Position {
	return tail.Position{
		NextSeq: s.confirmedNextSeq.Load(),
		LastTs:  s.confirmedLastTs.Load(),
	}
}

// Ready blocks until tail resolution completes, returning any error from
// resolution.
func (s *Streamer) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		s.startMu.Lock()
		defer s.startMu.Unlock()
		return s.startErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues req for admission. It blocks until the Streamer's inbox
// has room, req.Ctx is cancelled, or the Streamer is stopped.
func (s *Streamer) Submit(req *AppendRequest) AppendResult {
	req.reply = make(chan AppendResult, 1)
	select {
	case s.inbox <- req:
	case <-req.Ctx.Done():
		return AppendResult{Err: streamerr.Internal.Wrap(req.Ctx.Err())}
	case <-s.stopCh:
		return AppendResult{Err: streamerr.Unavailable.New("stream is shutting down")}
	}

	select {
	case res := <-req.reply:
		return res
	case <-req.Ctx.Done():
		// The Streamer still commits and advances the tail; this caller
		// just stops waiting for the reply.
		return AppendResult{Err: streamerr.Internal.Wrap(req.Ctx.Err())}
	case <-s.doneCh:
		// Run exited without ever reaching this request (it arrived in
		// the narrow window between Stop() closing stopCh and Run
		// returning); there is no one left to reply.
		return AppendResult{Err: streamerr.Unavailable.New("stream shut down before replying")}
	}
}

// Stop requests a graceful shutdown: the admission loop stops accepting
// new requests, drains in-flight commits, and closes the broadcast hub.
// It blocks until Run has returned.
func (s *Streamer) Stop() {
	select {
	case <-s.stopCh:
		// already stopping
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

// recordTTL derives the SD/ST row TTL from this stream's retention policy.
func (s *Streamer) recordTTL() time.Duration {
	return s.cfg.Retention()
}
