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

// Package stream is the public facade over the registry, streamer, and
// reader packages: append, read, check_tail, reconfigure, delete_stream.
// Callers outside this module (HTTP handlers, cmd/streamd, tests) should
// depend on Core rather than reaching into internal/ directly.
package stream

import (
	"context"

	"streamkeeper/internal/config"
	"streamkeeper/internal/kv"
	"streamkeeper/internal/reader"
	"streamkeeper/internal/registry"
	"streamkeeper/internal/streamer"
	"streamkeeper/internal/streamid"
	"streamkeeper/internal/tail"
)

// AppendRecord is one record as submitted by a caller.
type AppendRecord = streamer.AppendRecordIn

// AppendResult mirrors streamer.AppendResult; re-exported so callers never
// need to import internal/streamer directly.
type AppendResult = streamer.AppendResult

// TailPosition mirrors the durably-confirmed tail of a stream.
type TailPosition = tail.Position

// Core is the process-wide entry point: one Registry plus the KV handle
// and config source it and its Streamers share.
type Core struct {
	store kv.Store
	cfg   config.Source
	reg   *registry.Registry
}

// New constructs a Core over an already-open store/config. Call
// reg.StartEvictionLoop separately if idle eviction is desired; Core just
// forwards to the Registry it wraps.
func New(store kv.Store, cfg config.Source, reg *registry.Registry) *Core {
	return &Core{store: store, cfg: cfg, reg: reg}
}

// Append admits and durably commits records on (basinName, streamName),
// spawning the stream's Streamer if it does not already exist (subject to
// the basin's auto-creation policy).
func (c *Core) Append(ctx context.Context, basinName, streamName string, records []AppendRecord, matchSeq *uint64) AppendResult {
	s, err := c.reg.GetOrSpawn(ctx, basinName, streamName)
	if err != nil {
		return AppendResult{Err: err}
	}
	return s.Submit(&streamer.AppendRequest{Ctx: ctx, Records: records, MatchSeq: matchSeq})
}

// ReadBySeq returns up to limit records starting at fromSeq.
func (c *Core) ReadBySeq(ctx context.Context, basinName, streamName string, fromSeq uint64, limit int) ([]streamid.Record, error) {
	id := streamid.Derive(basinName, streamName)
	return reader.ScanRecords(ctx, c.store, id, fromSeq, limit)
}

// ReadByTimestamp returns up to limit records starting at the first one at
// or after ts.
func (c *Core) ReadByTimestamp(ctx context.Context, basinName, streamName string, ts uint64, limit int) ([]streamid.Record, error) {
	id := streamid.Derive(basinName, streamName)
	return reader.ReadByTimestamp(ctx, c.store, id, ts, limit)
}

// Tail starts a tailing read from fromSeq: a durable catch-up scan
// followed by a live broadcast subscription. The stream's Streamer is
// spawned if it is not already live, subject to the basin's auto-creation
// policy when the stream has no configuration.
func (c *Core) Tail(ctx context.Context, basinName, streamName string, fromSeq uint64) (*reader.TailReader, error) {
	id := streamid.Derive(basinName, streamName)
	s, err := c.reg.GetOrSpawn(ctx, basinName, streamName)
	if err != nil {
		return nil, err
	}
	return reader.NewTailReader(ctx, c.store, id, s, fromSeq)
}

// CheckTail returns the stream's durably-confirmed tail, served from the
// live Streamer when one is running, or by reading the SP row (or
// deriving it, without writing anything back) otherwise — this is a
// read-only call and never spawns a Streamer or mutates the store just to
// answer it.
func (c *Core) CheckTail(ctx context.Context, basinName, streamName string) (TailPosition, error) {
	id := streamid.Derive(basinName, streamName)
	if s, ok := c.reg.Lookup(basinName, streamName); ok {
		return s.CheckTail(), nil
	}
	return tail.ResolveReadOnly(ctx, c.store, id)
}

// Reconfigure updates a stream's configuration. Streamers already running
// pick up the change lazily (next spawn); a live Streamer's limits/policy
// are not hot-reloaded.
func (c *Core) Reconfigure(ctx context.Context, basinName, streamName string, cfg config.StreamConfig) error {
	return c.cfg.PutStream(ctx, basinName, streamName, cfg)
}

// DeleteStream stops and removes the stream's live Streamer, if any. It
// does not touch the stream's SC row or bulk-delete its SD/ST/SP rows:
// full deletion (reclaiming the config row and every durable record) is
// intentionally out of scope for this core and is left to an
// operator-driven compaction pass; a subsequent append against the same
// (basinName, streamName) will happily respawn it.
func (c *Core) DeleteStream(ctx context.Context, basinName, streamName string) error {
	id := streamid.Derive(basinName, streamName)
	c.reg.Evict(id)
	return nil
}
