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

package config

import (
	"context"
	"sync"

	"streamkeeper/internal/streamerr"
)

// Source resolves basin and stream configuration. The registry reads it
// when it spawns a Streamer; a running Streamer does not re-read it after
// a reconfigure, so a new configuration applies from the next spawn.
type Source interface {
	Basin(ctx context.Context, basinName string) (BasinConfig, error)
	Stream(ctx context.Context, basinName, streamName string) (StreamConfig, error)
	// PutStream creates or updates a stream's configuration, e.g. for
	// auto-creation on first append.
	PutStream(ctx context.Context, basinName, streamName string, cfg StreamConfig) error
}

// StaticSource is an in-process Source for tests and single-node
// development: every basin and stream config lives in a guarded map.
type StaticSource struct {
	mu      sync.RWMutex
	basins  map[string]BasinConfig
	streams map[string]StreamConfig
}

// NewStaticSource returns an empty StaticSource; every lookup fails with
// streamerr.NotFound until populated via PutBasin/PutStream.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		basins:  make(map[string]BasinConfig),
		streams: make(map[string]StreamConfig),
	}
}

var _ Source = (*StaticSource)(nil)

func streamKey(basinName, streamName string) string {
	return basinName + "\x00" + streamName
}

// PutBasin installs or replaces a basin's configuration.
func (s *StaticSource) PutBasin(basinName string, cfg BasinConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.basins[basinName] = cfg
}

// Basin returns the configuration for basinName.
func (s *StaticSource) Basin(ctx context.Context, basinName string) (BasinConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.basins[basinName]
	if !ok {
		return BasinConfig{}, streamerr.NotFound.New("basin %q not found", basinName)
	}
	return cfg, nil
}

// Stream returns the configuration for (basinName, streamName).
func (s *StaticSource) Stream(ctx context.Context, basinName, streamName string) (StreamConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.streams[streamKey(basinName, streamName)]
	if !ok {
		return StreamConfig{}, streamerr.NotFound.New("stream %q/%q not found", basinName, streamName)
	}
	return cfg, nil
}

// PutStream creates or updates a stream's configuration.
func (s *StaticSource) PutStream(ctx context.Context, basinName, streamName string, cfg StreamConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[streamKey(basinName, streamName)] = cfg
	return nil
}
