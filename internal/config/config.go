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

// Package config holds the basin- and stream-level configuration records
// (the BC/SC rows of the kv schema) and the Source abstraction used to
// read and write them.
package config

import "time"

// BasinConfig is the per-basin policy record stored under the BC prefix.
type BasinConfig struct {
	// AutoCreateStreams permits the registry to spawn a Streamer (and
	// implicitly create its StreamConfig) for a stream name with no
	// existing SC row, on first append.
	AutoCreateStreams bool
	// DefaultRetention is used for a stream's StreamConfig.RetentionSeconds
	// when not set explicitly at stream-create time.
	DefaultRetention time.Duration
}

// StreamConfig is the per-stream policy record stored under the SC prefix.
type StreamConfig struct {
	// RetentionSeconds is the TTL applied to SD/ST rows committed for this
	// stream. Zero means no expiry.
	RetentionSeconds int64
	// StrictClientTimestamps, when true, rejects an append whose
	// client-supplied timestamp is behind the stream's last assigned
	// timestamp instead of silently clamping it forward.
	StrictClientTimestamps bool
	// PipelineDepth bounds the number of concurrent in-flight commit
	// batches for this stream's Streamer. Zero means inherit the
	// process-wide default.
	PipelineDepth int
}

// Retention returns the configured retention as a time.Duration, or zero
// for "no expiry".
func (c StreamConfig) Retention() time.Duration {
	if c.RetentionSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RetentionSeconds) * time.Second
}
