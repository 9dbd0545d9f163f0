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

package registry

import (
	"time"

	"go.uber.org/zap"

	"streamkeeper/internal/streamer"
	"streamkeeper/internal/streamid"
)

// StartEvictionLoop launches the background sweep that stops and removes
// Streamers that have been idle for longer than IdleAfter: a time.Ticker
// wakes a cycle function that finds stale entries and removes them, with a
// final check against the entry's current idle duration immediately before
// eviction to avoid evicting something touched in the interim. A zero
// IdleAfter disables the sweep entirely.
func (r *Registry) StartEvictionLoop() {
	if r.idleAfter <= 0 {
		return
	}
	r.evictDone = make(chan struct{})
	go r.evictionLoop()
}

func (r *Registry) evictionLoop() {
	defer close(r.evictDone)

	ticker := time.NewTicker(r.evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runEvictionCycle()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) runEvictionCycle() {
	var stale []streamid.ID

	r.streams.Range(func(key, value interface{}) bool {
		id := key.(streamid.ID)
		h := value.(*handle)
		if r.idleDuration(h) >= r.idleAfter {
			stale = append(stale, id)
		}
		return true
	})

	for _, id := range stale {
		v, ok := r.streams.Load(id)
		if !ok {
			continue
		}
		h := v.(*handle)
		if r.idleDuration(h) < r.idleAfter {
			// Touched again since the scan above; leave it alone.
			continue
		}
		if h.streamer.State() != streamer.StateReady {
			continue
		}
		r.Evict(id)
		r.logger.Debug("streamer evicted for idleness", zap.String("stream_id", h.streamer.ID().String()))
	}
}

// idleDuration reports how long h's Streamer has been idle. A Streamer that
// has never admitted a request reports idle since it was spawned, unlike
// Streamer.IdleSince which reports zero in that case to distinguish "never
// active" from "recently active" at the Streamer layer.
func (r *Registry) idleDuration(h *handle) time.Duration {
	if d := h.streamer.IdleSince(); d > 0 {
		return d
	}
	return time.Since(h.spawnedAt)
}
