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

// Package kv defines the ordered byte-keyed store abstraction that every
// other component in this repository is built on: the BC/SC/SD/ST/SP key
// schema lives on top of a Store, never against a specific backend
// directly. See internal/kv/memkv, internal/kv/rediskv and
// internal/kv/postgreskv for the concrete backends.
package kv

import (
	"context"
	"time"
)

// Direction selects scan order.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Entry is one key/value pair written atomically as part of a batch.
type Entry struct {
	Key   []byte
	Value []byte
	// TTL is the time the entry should survive for before the backend is
	// free to reclaim it, or zero for no expiry.
	TTL time.Duration
}

// ScanOptions bounds a range scan. Start is inclusive, End is exclusive.
// A nil End scans to the end of the keyspace (or the beginning, for a
// Backward scan). Limit caps the number of returned pairs; zero means
// unbounded.
type ScanOptions struct {
	Start     []byte
	End       []byte
	Direction Direction
	Limit     int
}

// Pair is one key/value result from a scan.
type Pair struct {
	Key   []byte
	Value []byte
}

// Iterator is a lazy cursor over a Scan's results. Callers must call Close
// when done, even after an error or early break.
type Iterator interface {
	// Next advances the cursor and reports whether a pair is available.
	Next(ctx context.Context) bool
	// Pair returns the current key/value; valid only after a true Next.
	Pair() Pair
	// Err returns the first error encountered, if any.
	Err() error
	Close() error
}

// Store is the durable ordered key/value capability the rest of this
// repository depends on. Implementations must give put_batch atomic
// all-or-nothing semantics and must order scan results by raw byte
// comparison of the key, so that big-endian integers embedded in keys sort
// numerically.
type Store interface {
	// PutBatch applies every entry atomically: either all are visible to
	// subsequent reads or none are.
	PutBatch(ctx context.Context, entries []Entry) error
	// Get returns ErrNotFound if key is absent.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Scan returns a snapshot-consistent iterator from opts.Start
	// (inclusive) toward opts.End (exclusive) in opts.Direction order; for
	// a Backward scan Start is the upper bound and End the lower one.
	Scan(ctx context.Context, opts ScanOptions) (Iterator, error)
	// Close releases backend resources (connections, file handles).
	Close() error
}
