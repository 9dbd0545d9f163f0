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

// Package registry manages a collection of per-stream Streamer instances in
// memory: lazy spawn on first use, idle eviction, and graceful shutdown of
// everything at once.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"streamkeeper/internal/config"
	"streamkeeper/internal/kv"
	"streamkeeper/internal/streamer"
	"streamkeeper/internal/streamerr"
	"streamkeeper/internal/streamid"
	"streamkeeper/internal/telemetry"
)

// handle wraps a live Streamer with the bookkeeping the registry needs that
// the Streamer itself has no reason to track.
type handle struct {
	streamer  *streamer.Streamer
	spawnedAt time.Time
}

// Options configures a Registry.
type Options struct {
	Store         kv.Store
	Config        config.Source
	Clock         streamid.Clock
	PipelineDepth int
	Limits        streamer.Limits
	IdleAfter     time.Duration // 0 disables idle eviction
	EvictInterval time.Duration
	Logger        *zap.Logger
}

// Registry is a sync.Map-backed store of Streamer instances keyed by
// streamid.ID: a fast-path Load before falling back to spawning a new one.
// Spawn is additionally serialized through singleflight because
// constructing a Streamer means resolving its tail against the durable
// store, an operation worth de-duplicating rather than racing.
type Registry struct {
	streams sync.Map // streamid.ID -> *handle

	store   kv.Store
	cfg     config.Source
	clock   streamid.Clock
	depth   int
	limits  streamer.Limits
	logger  *zap.Logger
	spawn   singleflight.Group

	idleAfter     time.Duration
	evictInterval time.Duration
	stopCh        chan struct{}
	evictDone     chan struct{}
	stopOnce      sync.Once
}

// New constructs a Registry. Call StartEvictionLoop to enable idle eviction.
func New(opts Options) *Registry {
	clock := opts.Clock
	if clock == nil {
		clock = streamid.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	evictInterval := opts.EvictInterval
	if evictInterval <= 0 {
		evictInterval = 30 * time.Second
	}
	// evictDone starts pre-closed: if StartEvictionLoop is never called,
	// ShutdownAll must not block waiting for a loop that doesn't exist.
	evictDone := make(chan struct{})
	close(evictDone)

	return &Registry{
		store:         opts.Store,
		cfg:           opts.Config,
		clock:         clock,
		depth:         opts.PipelineDepth,
		limits:        opts.Limits,
		logger:        logger,
		idleAfter:     opts.IdleAfter,
		evictInterval: evictInterval,
		stopCh:        make(chan struct{}),
		evictDone:     evictDone,
	}
}

// GetOrSpawn returns the Streamer for (basinName, streamName), spawning one
// on first use. If no stream configuration exists, the basin's
// AutoCreateStreams policy decides whether a default-configured stream is
// created on the fly or the caller sees streamerr.NotFound.
func (r *Registry) GetOrSpawn(ctx context.Context, basinName, streamName string) (*streamer.Streamer, error) {
	id := streamid.Derive(basinName, streamName)

	if v, ok := r.streams.Load(id); ok {
		return v.(*handle).streamer, nil
	}

	v, err, _ := r.spawn.Do(id.String(), func() (interface{}, error) {
		if existing, ok := r.streams.Load(id); ok {
			return existing.(*handle).streamer, nil
		}

		cfg, err := r.resolveStreamConfig(ctx, basinName, streamName)
		if err != nil {
			return nil, err
		}

		depth := r.depth
		if cfg.PipelineDepth > 0 {
			depth = cfg.PipelineDepth
		}
		s := streamer.New(id, streamer.Options{
			Store:         r.store,
			Clock:         r.clock,
			StreamConfig:  cfg,
			Limits:        r.limits,
			PipelineDepth: depth,
			Logger:        r.logger,
		})
		go s.Run(context.Background())
		if err := s.Ready(ctx); err != nil {
			return nil, err
		}

		r.streams.Store(id, &handle{streamer: s, spawnedAt: time.Now()})
		telemetry.ObserveStreamerSpawned()
		r.logger.Info("streamer spawned", zap.String("basin", basinName), zap.String("stream", streamName))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*streamer.Streamer), nil
}

// resolveStreamConfig looks up the stream's configuration, auto-creating a
// default one if the basin allows it and none exists yet.
func (r *Registry) resolveStreamConfig(ctx context.Context, basinName, streamName string) (config.StreamConfig, error) {
	cfg, err := r.cfg.Stream(ctx, basinName, streamName)
	if err == nil {
		return cfg, nil
	}
	if streamerr.KindOf(err) != streamerr.KindNotFound {
		return config.StreamConfig{}, err
	}

	basin, berr := r.cfg.Basin(ctx, basinName)
	if berr != nil {
		return config.StreamConfig{}, err
	}
	if !basin.AutoCreateStreams {
		return config.StreamConfig{}, err
	}

	cfg = config.StreamConfig{RetentionSeconds: int64(basin.DefaultRetention.Seconds())}
	if putErr := r.cfg.PutStream(ctx, basinName, streamName, cfg); putErr != nil {
		return config.StreamConfig{}, putErr
	}
	return cfg, nil
}

// Lookup returns the Streamer for (basinName, streamName) if one is
// currently live, without spawning.
func (r *Registry) Lookup(basinName, streamName string) (*streamer.Streamer, bool) {
	id := streamid.Derive(basinName, streamName)
	v, ok := r.streams.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*handle).streamer, true
}

// Evict removes id from the registry immediately, stopping its Streamer.
// Used both by idle eviction and by an explicit delete_stream operation.
func (r *Registry) Evict(id streamid.ID) {
	v, ok := r.streams.LoadAndDelete(id)
	if !ok {
		return
	}
	v.(*handle).streamer.Stop()
	telemetry.ObserveStreamerEvicted()
}

// ForEach iterates over every currently live Streamer.
func (r *Registry) ForEach(f func(id streamid.ID, s *streamer.Streamer)) {
	r.streams.Range(func(key, value interface{}) bool {
		f(key.(streamid.ID), value.(*handle).streamer)
		return true
	})
}

// ShutdownAll stops every live Streamer and the eviction loop, blocking
// until all have returned.
func (r *Registry) ShutdownAll() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.evictDone

	var wg sync.WaitGroup
	r.streams.Range(func(key, value interface{}) bool {
		h := value.(*handle)
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.streamer.Stop()
		}()
		return true
	})
	wg.Wait()
	r.streams = sync.Map{}
}
