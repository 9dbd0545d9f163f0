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

// Package reader implements the three read paths over a streamid-keyed
// kv.Store: by sequence number, by timestamp, and tailing (a durable
// catch-up scan followed by a live broadcast subscription).
package reader

import (
	"context"

	"streamkeeper/internal/kv"
	"streamkeeper/internal/kvschema"
	"streamkeeper/internal/streamerr"
	"streamkeeper/internal/streamid"
)

// ScanRecords returns up to limit records starting at fromSeq (inclusive),
// in seq_num order. A limit <= 0 means unbounded.
func ScanRecords(ctx context.Context, store kv.Store, id streamid.ID, fromSeq uint64, limit int) ([]streamid.Record, error) {
	opts := kv.ScanOptions{
		Start:     kvschema.RecordKey(id, fromSeq),
		End:       kvschema.PrefixUpperBound(kvschema.RecordPrefix(id)),
		Direction: kv.Forward,
		Limit:     limit,
	}
	it, err := store.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []streamid.Record
	for it.Next(ctx) {
		pair := it.Pair()
		rec, err := streamid.Decode(pair.Value)
		if err != nil {
			return nil, err
		}
		if keySeq, ok := kvschema.SeqNumFromRecordKey(pair.Key); !ok || keySeq != rec.SeqNum {
			return nil, streamerr.Corrupt.New("record key %x does not match encoded seq_num %d", pair.Key, rec.SeqNum)
		}
		out = append(out, rec)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FirstSeqAtOrAfterTimestamp returns the smallest seq_num whose record has
// timestamp >= ts, by scanning the ST index, which orders by (timestamp,
// seq_num). found is false if the stream has no record at or after ts.
func FirstSeqAtOrAfterTimestamp(ctx context.Context, store kv.Store, id streamid.ID, ts uint64) (seq uint64, found bool, err error) {
	opts := kv.ScanOptions{
		Start:     kvschema.TimestampLowerBound(id, ts),
		End:       kvschema.PrefixUpperBound(kvschema.TimestampPrefix(id)),
		Direction: kv.Forward,
		Limit:     1,
	}
	it, err := store.Scan(ctx, opts)
	if err != nil {
		return 0, false, err
	}
	defer it.Close()

	if !it.Next(ctx) {
		return 0, false, it.Err()
	}
	seq, ok := kvschema.SeqNumFromTimestampKey(it.Pair().Key)
	if !ok {
		return 0, false, it.Err()
	}
	return seq, true, nil
}

// ReadByTimestamp resolves the first record at or after ts (forward scan of
// the ST timestamp index) and returns up to limit records from there on,
// reusing the by-seq-number scan path.
func ReadByTimestamp(ctx context.Context, store kv.Store, id streamid.ID, ts uint64, limit int) ([]streamid.Record, error) {
	seq, found, err := FirstSeqAtOrAfterTimestamp(ctx, store, id, ts)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return ScanRecords(ctx, store, id, seq, limit)
}
