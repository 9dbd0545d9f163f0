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
	"context"
	"sync"
	"testing"
	"time"

	"streamkeeper/internal/config"
	"streamkeeper/internal/kv/memkv"
	"streamkeeper/internal/streamer"
	"streamkeeper/internal/streamerr"
	"streamkeeper/internal/streamid"
)

func TestGetOrSpawnReturnsSameInstance(t *testing.T) {
	cfg := config.NewStaticSource()
	cfg.PutBasin("b", config.BasinConfig{AutoCreateStreams: true})
	r := New(Options{Store: memkv.New(), Config: cfg, Clock: streamid.NewFixedClock(1000)})
	defer r.ShutdownAll()

	s1, err := r.GetOrSpawn(context.Background(), "b", "s")
	if err != nil {
		t.Fatalf("GetOrSpawn: %v", err)
	}
	s2, err := r.GetOrSpawn(context.Background(), "b", "s")
	if err != nil {
		t.Fatalf("GetOrSpawn: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected the same Streamer instance across calls")
	}
}

func TestGetOrSpawnConcurrentDedup(t *testing.T) {
	cfg := config.NewStaticSource()
	cfg.PutBasin("b", config.BasinConfig{AutoCreateStreams: true})
	r := New(Options{Store: memkv.New(), Config: cfg, Clock: streamid.NewFixedClock(1000)})
	defer r.ShutdownAll()

	const n = 32
	results := make([]*streamer.Streamer, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			s, err := r.GetOrSpawn(context.Background(), "b", "concurrent")
			if err != nil {
				t.Errorf("GetOrSpawn: %v", err)
				return
			}
			results[i] = s
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("concurrent GetOrSpawn produced distinct Streamers")
		}
	}
}

func TestGetOrSpawnRejectsUnknownStreamWithoutAutoCreate(t *testing.T) {
	cfg := config.NewStaticSource()
	cfg.PutBasin("b", config.BasinConfig{AutoCreateStreams: false})
	r := New(Options{Store: memkv.New(), Config: cfg, Clock: streamid.NewFixedClock(1000)})
	defer r.ShutdownAll()

	_, err := r.GetOrSpawn(context.Background(), "b", "nope")
	if streamerr.KindOf(err) != streamerr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetOrSpawnAutoCreatesStream(t *testing.T) {
	cfg := config.NewStaticSource()
	cfg.PutBasin("b", config.BasinConfig{AutoCreateStreams: true, DefaultRetention: time.Hour})
	r := New(Options{Store: memkv.New(), Config: cfg, Clock: streamid.NewFixedClock(1000)})
	defer r.ShutdownAll()

	s, err := r.GetOrSpawn(context.Background(), "b", "fresh")
	if err != nil {
		t.Fatalf("GetOrSpawn: %v", err)
	}
	if s.State() != streamer.StateReady {
		t.Fatalf("expected spawned streamer to be Ready, got %v", s.State())
	}

	stored, err := cfg.Stream(context.Background(), "b", "fresh")
	if err != nil {
		t.Fatalf("expected auto-created stream config to persist: %v", err)
	}
	if stored.RetentionSeconds != int64(time.Hour.Seconds()) {
		t.Fatalf("got retention %d, want %d", stored.RetentionSeconds, int64(time.Hour.Seconds()))
	}
}

func TestLookupWithoutSpawning(t *testing.T) {
	cfg := config.NewStaticSource()
	r := New(Options{Store: memkv.New(), Config: cfg, Clock: streamid.NewFixedClock(1000)})
	defer r.ShutdownAll()

	if _, ok := r.Lookup("b", "never-spawned"); ok {
		t.Fatalf("expected Lookup to report false for an unspawned stream")
	}
}

func TestEvictIdleStreamer(t *testing.T) {
	cfg := config.NewStaticSource()
	cfg.PutBasin("b", config.BasinConfig{AutoCreateStreams: true})
	r := New(Options{
		Store:         memkv.New(),
		Config:        cfg,
		Clock:         streamid.NewFixedClock(1000),
		IdleAfter:     10 * time.Millisecond,
		EvictInterval: 5 * time.Millisecond,
	})
	defer r.ShutdownAll()
	r.StartEvictionLoop()

	s, err := r.GetOrSpawn(context.Background(), "b", "idle")
	if err != nil {
		t.Fatalf("GetOrSpawn: %v", err)
	}
	id := s.ID()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Lookup("b", "idle"); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := r.Lookup("b", "idle"); ok {
		t.Fatalf("expected stream %s to be evicted for idleness", id)
	}
}

func TestShutdownAllStopsEveryStreamer(t *testing.T) {
	cfg := config.NewStaticSource()
	cfg.PutBasin("b", config.BasinConfig{AutoCreateStreams: true})
	r := New(Options{Store: memkv.New(), Config: cfg, Clock: streamid.NewFixedClock(1000)})

	var streamers []*streamer.Streamer
	for i := 0; i < 5; i++ {
		s, err := r.GetOrSpawn(context.Background(), "b", string(rune('a'+i)))
		if err != nil {
			t.Fatalf("GetOrSpawn: %v", err)
		}
		streamers = append(streamers, s)
	}

	r.ShutdownAll()

	for _, s := range streamers {
		if s.State() != streamer.StateShutdown {
			t.Fatalf("expected every streamer to be stopped after ShutdownAll")
		}
	}
}
