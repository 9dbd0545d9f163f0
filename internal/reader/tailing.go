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

package reader

import (
	"context"

	"streamkeeper/internal/kv"
	"streamkeeper/internal/streamer"
	"streamkeeper/internal/streamid"
)

// TailReader implements the tailing read mode: a durable catch-up scan up
// to the Streamer's current tail, followed by a live broadcast
// subscription. Whenever the subscription reports a Lagged gap, the gap is
// filled by a durable scan and the same subscription is kept.
type TailReader struct {
	store    kv.Store
	id       streamid.ID
	streamer *streamer.Streamer

	backlog []streamid.Record // durable records not yet delivered
	sub     *streamer.Subscription
}

// NewTailReader starts tailing a stream from fromSeq: every record at or
// after fromSeq that is already durable is queued first, then live records
// follow from the broadcast.
func NewTailReader(ctx context.Context, store kv.Store, id streamid.ID, s *streamer.Streamer, fromSeq uint64) (*TailReader, error) {
	tail := s.CheckTail()
	var backlog []streamid.Record
	if fromSeq < tail.NextSeq {
		// Bounded to the snapshot tail: a record committed after this
		// CheckTail but before the scan runs would otherwise land in both
		// backlog and the live subscription (which starts at tail.NextSeq),
		// delivering it twice.
		recs, err := ScanRecords(ctx, store, id, fromSeq, int(tail.NextSeq-fromSeq))
		if err != nil {
			return nil, err
		}
		backlog = recs
		fromSeq = tail.NextSeq
	}
	return &TailReader{
		store:    store,
		id:       id,
		streamer: s,
		backlog:  backlog,
		sub:      s.Subscribe(fromSeq),
	}, nil
}

// Next returns the next record in seq_num order, blocking until one is
// durable and published, ctx is cancelled, or the stream shuts down.
func (t *TailReader) Next(ctx context.Context) (streamid.Record, error) {
	if len(t.backlog) > 0 {
		rec := t.backlog[0]
		t.backlog = t.backlog[1:]
		return rec, nil
	}

	for {
		rec, err := t.sub.Next(ctx)
		if err == nil {
			return rec, nil
		}
		lagged, ok := err.(*streamer.LaggedError)
		if !ok {
			return streamid.Record{}, err
		}
		// Fill the gap durably: it starts Skipped records before the
		// subscription's post-skip cursor. More may already have arrived on the broadcast by
		// the time the scan returns, but the scan itself is always
		// sufficient to close the gap exactly once.
		recs, scanErr := ScanRecords(ctx, t.store, t.id, t.sub.Cursor()-lagged.Skipped, int(lagged.Skipped))
		if scanErr != nil {
			return streamid.Record{}, scanErr
		}
		if len(recs) == 0 {
			continue
		}
		t.backlog = recs
		rec := t.backlog[0]
		t.backlog = t.backlog[1:]
		return rec, nil
	}
}

// Close releases the underlying subscription. Safe to call even if Next
// has returned an error.
func (t *TailReader) Close() {
	t.sub = nil
	t.backlog = nil
}
