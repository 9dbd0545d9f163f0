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

// Package rediskv is a production kv.Store backend on top of
// github.com/redis/go-redis/v9. Byte-lexicographic ordering (required by
// kv.Store's Scan contract) is realized with a Redis sorted set whose
// members all share score 0, so ZRANGEBYLEX/ZREVRANGEBYLEX walk the
// keyspace in raw byte order; each member's value lives in a companion
// string key carrying its own TTL.
package rediskv

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"streamkeeper/internal/kv"
)

// Client is the subset of *redis.Client this package needs, so tests can
// substitute a fake without a live server.
type Client interface {
	redis.Cmdable
}

// Store is a kv.Store backed by Redis.
type Store struct {
	client    Client
	namespace string
}

// New wraps an existing go-redis client. namespace prefixes every Redis key
// this Store touches, so multiple Stores can share one Redis instance.
func New(client Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

var _ kv.Store = (*Store)(nil)

func (s *Store) idxKey() string {
	return s.namespace + ":idx"
}

func (s *Store) valKey(key []byte) string {
	return s.namespace + ":val:" + hex.EncodeToString(key)
}

// PutBatch applies every entry inside one Redis transaction (TxPipelined),
// matching the idempotent, all-or-nothing shape this repository's KV
// contract requires.
func (s *Store) PutBatch(ctx context.Context, entries []kv.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			member := string(e.Key)
			pipe.ZAdd(ctx, s.idxKey(), redis.Z{Score: 0, Member: member})
			vk := s.valKey(e.Key)
			if e.TTL > 0 {
				pipe.Set(ctx, vk, e.Value, e.TTL)
			} else {
				pipe.Set(ctx, vk, e.Value, 0)
			}
		}
		return nil
	})
	if err != nil {
		return kv.ErrUnavailable(fmt.Errorf("rediskv: put_batch of %d entries: %w", len(entries), err))
	}
	return nil
}

// Get returns kv.ErrNotFound when the value has expired or was never set,
// which also naturally covers TTL expiry without a separate sweep for
// reads.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	v, err := s.client.Get(ctx, s.valKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, kv.ErrUnavailable(fmt.Errorf("rediskv: get: %w", err))
	}
	return v, nil
}

// Scan walks the shared sorted-set index with ZRANGEBYLEX/ZREVRANGEBYLEX and
// resolves each member's current value, skipping members whose value key
// has since expired. Expired members are never removed from the index;
// they are only skipped here.
func (s *Store) Scan(ctx context.Context, opts kv.ScanOptions) (kv.Iterator, error) {
	members, err := s.scanMembers(ctx, opts)
	if err != nil {
		return nil, kv.ErrUnavailable(fmt.Errorf("rediskv: scan: %w", err))
	}

	return &iterator{ctx: ctx, store: s, members: members, idx: -1}, nil
}

func (s *Store) scanMembers(ctx context.Context, opts kv.ScanOptions) ([]string, error) {
	min, max := lexBound(opts.Start, true), lexBound(opts.End, false)
	if opts.Direction == kv.Backward {
		min, max = lexBound(opts.End, false), lexBound(opts.Start, true)
		rng := &redis.ZRangeBy{Min: swapLex(min), Max: swapLex(max)}
		if opts.Limit > 0 {
			rng.Count = int64(opts.Limit)
		}
		return s.client.ZRevRangeByLex(ctx, s.idxKey(), rng).Result()
	}
	rng := &redis.ZRangeBy{Min: min, Max: max}
	if opts.Limit > 0 {
		rng.Count = int64(opts.Limit)
	}
	return s.client.ZRangeByLex(ctx, s.idxKey(), rng).Result()
}

// lexBound renders a ZRANGEBYLEX bound. inclusive selects '[' vs '('; a nil
// bound becomes the open end of the keyspace.
func lexBound(b []byte, inclusive bool) string {
	if b == nil {
		if inclusive {
			return "-"
		}
		return "+"
	}
	prefix := "("
	if inclusive {
		prefix = "["
	}
	return prefix + string(b)
}

// swapLex flips a '-'/'+' open-ended bound produced for the wrong
// direction: for a Backward scan the nil End is the low end of the
// keyspace ('-') and the nil Start the high end ('+'). Bracketed bounds
// are returned unchanged.
func swapLex(b string) string {
	switch b {
	case "-":
		return "+"
	case "+":
		return "-"
	}
	return b
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	if closer, ok := s.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

type iterator struct {
	ctx     context.Context
	store   *Store
	members []string
	idx     int
	current kv.Pair
	err     error
}

func (it *iterator) Next(ctx context.Context) bool {
	for {
		it.idx++
		if it.idx >= len(it.members) {
			return false
		}
		member := it.members[it.idx]
		v, err := it.store.Get(ctx, []byte(member))
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			it.err = err
			return false
		}
		it.current = kv.Pair{Key: []byte(member), Value: v}
		return true
	}
}

func (it *iterator) Pair() kv.Pair { return it.current }
func (it *iterator) Err() error    { return it.err }
func (it *iterator) Close() error  { return nil }
