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

// Package tail implements tail resolution and persistence: finding a
// stream's (next_seq_num, last_timestamp) on cold start, and writing it
// back durably as part of a commit.
package tail

import (
	"context"
	"fmt"
	"time"

	"streamkeeper/internal/kv"
	"streamkeeper/internal/kvschema"
	"streamkeeper/internal/streamerr"
	"streamkeeper/internal/streamid"
)

// Position is a stream's tail: the next sequence number to assign and the
// timestamp of the last committed record.
type Position struct {
	NextSeq uint64
	LastTs  uint64
}

// Resolve finds a stream's tail with a three-step procedure, writing the
// SP row back whenever it had to be derived rather than read directly
// (self-healing):
//  1. read the SP row; if present, adopt it;
//  2. otherwise reverse-scan SD for the newest record and derive
//     (seq+1, timestamp) from it, writing SP;
//  3. otherwise the stream is empty: adopt (0, 0) and write SP.
func Resolve(ctx context.Context, store kv.Store, id streamid.ID) (Position, error) {
	pos, derived, err := resolve(ctx, store, id)
	if err != nil {
		return Position{}, err
	}
	if derived {
		if err := Persist(ctx, store, id, pos, time.Duration(0)); err != nil {
			return Position{}, fmt.Errorf("tail: persisting resolved SP row for %s: %w", id, err)
		}
	}
	return pos, nil
}

// ResolveReadOnly performs the same three-step resolution as Resolve but
// never writes the SP row back, for callers (like a read-only check_tail)
// that must not have a side effect of their own.
func ResolveReadOnly(ctx context.Context, store kv.Store, id streamid.ID) (Position, error) {
	pos, _, err := resolve(ctx, store, id)
	return pos, err
}

func resolve(ctx context.Context, store kv.Store, id streamid.ID) (Position, bool, error) {
	raw, err := store.Get(ctx, kvschema.TailKey(id))
	if err == nil {
		nextSeq, lastTs, ok := kvschema.DecodeTail(raw)
		if !ok {
			return Position{}, false, streamerr.Corrupt.New("stream %s: malformed SP row (%d bytes)", id, len(raw))
		}
		return Position{NextSeq: nextSeq, LastTs: lastTs}, false, nil
	}
	if streamerr.KindOf(err) != streamerr.KindNotFound {
		return Position{}, false, fmt.Errorf("tail: reading SP row for %s: %w", id, err)
	}

	pos, err := resolveFromLastRecord(ctx, store, id)
	if err != nil {
		return Position{}, false, err
	}
	return pos, true, nil
}

func resolveFromLastRecord(ctx context.Context, store kv.Store, id streamid.ID) (Position, error) {
	prefix := kvschema.RecordPrefix(id)
	it, err := store.Scan(ctx, kv.ScanOptions{
		Start:     kvschema.PrefixUpperBound(prefix),
		End:       prefix,
		Direction: kv.Backward,
		Limit:     1,
	})
	if err != nil {
		return Position{}, fmt.Errorf("tail: scanning last record for %s: %w", id, err)
	}
	defer it.Close()

	if !it.Next(ctx) {
		if err := it.Err(); err != nil {
			return Position{}, fmt.Errorf("tail: scanning last record for %s: %w", id, err)
		}
		return Position{NextSeq: 0, LastTs: 0}, nil
	}

	rec, err := streamid.Decode(it.Pair().Value)
	if err != nil {
		return Position{}, fmt.Errorf("tail: decoding last record for %s: %w", id, err)
	}
	return Position{NextSeq: rec.SeqNum + 1, LastTs: rec.Timestamp}, nil
}

// Persist writes the SP row for the given position. ttl is normally zero
// (no expiry): the tail row must outlive every record it summarizes, so it
// is not subject to the same per-record retention as SD/ST rows.
func Persist(ctx context.Context, store kv.Store, id streamid.ID, pos Position, ttl time.Duration) error {
	return store.PutBatch(ctx, []kv.Entry{{
		Key:   kvschema.TailKey(id),
		Value: kvschema.EncodeTail(pos.NextSeq, pos.LastTs),
		TTL:   ttl,
	}})
}
