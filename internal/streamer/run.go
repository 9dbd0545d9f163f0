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

package streamer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"streamkeeper/internal/kv"
	"streamkeeper/internal/kvschema"
	"streamkeeper/internal/streamerr"
	"streamkeeper/internal/streamid"
	"streamkeeper/internal/tail"
	"streamkeeper/internal/telemetry"
)

// pendingBatch is one admitted, sequenced batch working its way through
// the commit pipeline.
type pendingBatch struct {
	req        *AppendRequest
	records    []streamid.Record
	entries    []kv.Entry
	firstSeq   uint64
	lastSeq    uint64
	lastTs     uint64
	generation uint64
	// before is the tail position that was valid immediately before this
	// batch was admitted; it is the rollback target if this batch fails.
	before   tail.Position
	resultCh chan error
}

// Run resolves the stream's tail and then runs the admission loop until
// Stop is called. Run must be invoked in its own goroutine exactly once.
func (s *Streamer) Run(ctx context.Context) {
	defer close(s.doneCh)

	pos, err := tail.Resolve(ctx, s.store, s.id)
	s.startMu.Lock()
	s.startErr = err
	s.startMu.Unlock()
	close(s.ready)
	if err != nil {
		s.logger.Error("tail resolution failed", zap.Error(err))
		s.state.Store(int32(StateShutdown))
		s.hub.close()
		return
	}
	s.confirmedNextSeq.Store(pos.NextSeq)
	s.confirmedLastTs.Store(pos.LastTs)
	s.state.Store(int32(StateReady))

	sem := make(chan struct{}, s.depth)
	ackQueue := make(chan *pendingBatch, s.depth*2+1)
	rollback := make(chan tail.Position, 1)
	abortedGen := uint64(0)
	drainerDone := make(chan struct{})
	go s.drainer(ackQueue, rollback, &abortedGen, drainerDone)

	nextSeq, lastTs := pos.NextSeq, pos.LastTs
	generation := uint64(1)

	for {
		select {
		case pending := <-rollback:
			nextSeq, lastTs = pending.NextSeq, pending.LastTs
			generation++

		case req := <-s.inbox:
			select {
			case pending := <-rollback:
				nextSeq, lastTs = pending.NextSeq, pending.LastTs
				generation++
			default:
			}

			batch, res, ok := s.admitAndSequence(req, nextSeq, lastTs, generation)
			if !ok {
				req.reply <- res
				continue
			}
			nextSeq, lastTs = batch.lastSeq+1, batch.lastTs
			s.lastActivity.Store(time.Now().UnixNano())
			telemetry.ObserveAppendAdmitted()

			select {
			case sem <- struct{}{}:
			case <-s.stopCh:
				req.reply <- AppendResult{Err: streamerr.Unavailable.New("stream is shutting down")}
				continue
			}
			ackQueue <- batch
			go s.commitBatch(ctx, batch, sem)

		case <-s.stopCh:
			close(ackQueue)
			<-drainerDone
			s.state.Store(int32(StateShutdown))
			s.hub.close()
			return
		}
	}
}

// admitAndSequence performs admission checks, timestamp policy, and
// sequencing for one request against the run loop's current speculative
// tail. It never touches the store.
func (s *Streamer) admitAndSequence(req *AppendRequest, nextSeq, lastTs, generation uint64) (*pendingBatch, AppendResult, bool) {
	if len(req.Records) == 0 {
		return nil, AppendResult{Err: streamerr.InvalidArgument.New("append batch must be non-empty")}, false
	}
	if req.MatchSeq != nil && *req.MatchSeq != nextSeq {
		return nil, AppendResult{Err: streamerr.WrongSeq.New("expected next_seq_num %d, got %d", nextSeq, *req.MatchSeq)}, false
	}

	totalBytes := 0
	for _, r := range req.Records {
		recBytes := len(r.Body)
		for _, h := range r.Headers {
			recBytes += len(h.Name) + len(h.Value)
		}
		if s.limits.MaxRecordBytes > 0 && recBytes > s.limits.MaxRecordBytes {
			return nil, AppendResult{Err: streamerr.InvalidArgument.New("record of %d bytes exceeds max_record_bytes %d", recBytes, s.limits.MaxRecordBytes)}, false
		}
		totalBytes += recBytes
	}
	if s.limits.MaxRecords > 0 && len(req.Records) > s.limits.MaxRecords {
		return nil, AppendResult{Err: streamerr.InvalidArgument.New("batch of %d records exceeds max_records %d", len(req.Records), s.limits.MaxRecords)}, false
	}
	if s.limits.MaxBatchBytes > 0 && totalBytes > s.limits.MaxBatchBytes {
		return nil, AppendResult{Err: streamerr.InvalidArgument.New("batch of %d bytes exceeds max_batch_bytes %d", totalBytes, s.limits.MaxBatchBytes)}, false
	}

	before := tail.Position{NextSeq: nextSeq, LastTs: lastTs}
	ttl := s.recordTTL()

	records := make([]streamid.Record, 0, len(req.Records))
	entries := make([]kv.Entry, 0, len(req.Records)*2+1)
	seq := nextSeq
	ts := lastTs
	for _, r := range req.Records {
		if r.Timestamp != nil {
			if *r.Timestamp < ts {
				if s.cfg.StrictClientTimestamps {
					return nil, AppendResult{Err: streamerr.NonMonotonicTimestamp.New("record timestamp %d precedes stream timestamp %d", *r.Timestamp, ts)}, false
				}
				// Non-strict: clamp forward, i.e. max(t, last_ts_so_far) — ts already holds that max.
			} else {
				ts = *r.Timestamp
			}
		} else {
			now := s.clock.NowMs()
			if now > ts {
				ts = now
			}
		}

		rec := streamid.Record{SeqNum: seq, Timestamp: ts, Headers: r.Headers, Body: r.Body}
		records = append(records, rec)
		entries = append(entries,
			kv.Entry{Key: kvschema.RecordKey(s.id, seq), Value: streamid.Encode(rec), TTL: ttl},
			kv.Entry{Key: kvschema.TimestampKey(s.id, ts, seq), TTL: ttl},
		)
		seq++
	}

	afterPos := tail.Position{NextSeq: seq, LastTs: ts}
	entries = append(entries, kv.Entry{Key: kvschema.TailKey(s.id), Value: kvschema.EncodeTail(afterPos.NextSeq, afterPos.LastTs)})

	return &pendingBatch{
		req:        req,
		records:    records,
		entries:    entries,
		firstSeq:   nextSeq,
		lastSeq:    seq - 1,
		lastTs:     ts,
		generation: generation,
		before:     before,
		resultCh:   make(chan error, 1),
	}, AppendResult{}, true
}

// commitBatch performs the actual durable write for batch and releases its
// pipeline slot when the store call returns, independent of ack ordering
// (which the drainer enforces separately).
func (s *Streamer) commitBatch(ctx context.Context, batch *pendingBatch, sem chan struct{}) {
	defer func() { <-sem }()
	err := s.store.PutBatch(ctx, batch.entries)
	if err != nil {
		err = fmt.Errorf("streamer: commit batch [%d,%d] for %s: %w", batch.firstSeq, batch.lastSeq, s.id, err)
	}
	batch.resultCh <- err
}

// drainer enforces FIFO acknowledgement ordering and the abort-all-later
// rule: once a batch in generation g fails, every later-admitted batch
// still in generation g is failed with Aborted without waiting for its
// own store outcome, since the run loop has already rolled its speculative
// tail back to the position before g's first failure.
func (s *Streamer) drainer(ackQueue <-chan *pendingBatch, rollback chan<- tail.Position, abortedGen *uint64, done chan<- struct{}) {
	defer close(done)
	for batch := range ackQueue {
		if *abortedGen != 0 && batch.generation <= *abortedGen {
			telemetry.ObserveBatchAborted()
			batch.req.reply <- AppendResult{Err: streamerr.Aborted.New("batch [%d,%d] aborted after an earlier failure in the same pipeline generation", batch.firstSeq, batch.lastSeq)}
			continue
		}

		err := <-batch.resultCh
		if err != nil {
			*abortedGen = batch.generation
			telemetry.ObserveCommitError()
			s.logger.Error("commit batch failed", zap.Uint64("first_seq", batch.firstSeq), zap.Uint64("last_seq", batch.lastSeq), zap.Error(err))
			batch.req.reply <- AppendResult{Err: streamerr.Unavailable.Wrap(err)}
			select {
			case rollback <- batch.before:
			default:
			}
			continue
		}

		s.confirmedNextSeq.Store(batch.lastSeq + 1)
		s.confirmedLastTs.Store(batch.lastTs)
		telemetry.ObserveCommit(len(batch.records))

		for _, rec := range batch.records {
			s.hub.push(rec)
		}

		batch.req.reply <- AppendResult{
			FirstSeq:  batch.firstSeq,
			LastSeq:   batch.lastSeq,
			LastTs:    batch.lastTs,
			TailAfter: tail.Position{NextSeq: batch.lastSeq + 1, LastTs: batch.lastTs},
		}
	}
}
