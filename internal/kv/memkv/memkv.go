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

// Package memkv is an in-process kv.Store backed by an ordered B-tree. It
// is the default backend for tests and single-process development; nothing
// survives a restart.
package memkv

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/btree"

	"streamkeeper/internal/kv"
)

type item struct {
	key     []byte
	value   []byte
	expires time.Time // zero means no expiry
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Store is a goroutine-safe in-memory kv.Store.
type Store struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[item]
}

// New constructs an empty Store.
func New() *Store {
	return &Store{tree: btree.NewG(32, less)}
}

var _ kv.Store = (*Store)(nil)

// PutBatch applies every entry under one lock so concurrent scans never
// observe a partial batch.
func (s *Store) PutBatch(ctx context.Context, entries []kv.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, e := range entries {
		it := item{key: append([]byte(nil), e.Key...), value: append([]byte(nil), e.Value...)}
		if e.TTL > 0 {
			it.expires = now.Add(e.TTL)
		}
		s.tree.ReplaceOrInsert(it)
	}
	return nil
}

// Get returns kv.ErrNotFound if key is absent or has expired.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	found, ok := s.tree.Get(item{key: key})
	if !ok || isExpired(found) {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), found.value...), nil
}

func isExpired(it item) bool {
	return !it.expires.IsZero() && time.Now().After(it.expires)
}

// Scan takes a point-in-time snapshot of the matching range under the read
// lock and returns an iterator over that snapshot, so a long-lived reader
// never blocks concurrent writers.
func (s *Store) Scan(ctx context.Context, opts kv.ScanOptions) (kv.Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pairs []kv.Pair
	visit := func(it item) bool {
		if isExpired(it) {
			return true
		}
		if opts.End != nil {
			if opts.Direction == kv.Backward && bytes.Compare(it.key, opts.End) <= 0 {
				return false
			}
			if opts.Direction == kv.Forward && bytes.Compare(it.key, opts.End) >= 0 {
				return false
			}
		}
		pairs = append(pairs, kv.Pair{Key: append([]byte(nil), it.key...), Value: append([]byte(nil), it.value...)})
		return opts.Limit == 0 || len(pairs) < opts.Limit
	}

	switch opts.Direction {
	case kv.Backward:
		if opts.Start == nil {
			s.tree.Descend(visit)
		} else {
			s.tree.DescendLessOrEqual(item{key: opts.Start}, visit)
		}
	default:
		if opts.Start == nil {
			s.tree.Ascend(visit)
		} else {
			s.tree.AscendGreaterOrEqual(item{key: opts.Start}, visit)
		}
	}

	return &sliceIterator{pairs: pairs, idx: -1}, nil
}

// Close is a no-op; memkv owns no external resources.
func (s *Store) Close() error {
	return nil
}

type sliceIterator struct {
	pairs []kv.Pair
	idx   int
}

func (it *sliceIterator) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	it.idx++
	return it.idx < len(it.pairs)
}

func (it *sliceIterator) Pair() kv.Pair {
	return it.pairs[it.idx]
}

func (it *sliceIterator) Err() error {
	return nil
}

func (it *sliceIterator) Close() error {
	return nil
}
