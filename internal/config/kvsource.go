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
	"encoding/binary"
	"errors"
	"time"

	"streamkeeper/internal/kv"
	"streamkeeper/internal/kvschema"
)

// KVSource is a Source that reads and writes BasinConfig/StreamConfig
// directly as BC/SC rows in the shared kv.Store, so configuration survives
// a restart the same way records do.
type KVSource struct {
	store kv.Store
}

// NewKVSource wraps store for configuration reads/writes.
func NewKVSource(store kv.Store) *KVSource {
	return &KVSource{store: store}
}

var _ Source = (*KVSource)(nil)

// Basin reads and decodes the BC row for basinName.
func (s *KVSource) Basin(ctx context.Context, basinName string) (BasinConfig, error) {
	raw, err := s.store.Get(ctx, kvschema.BasinConfigKey(basinName))
	if err != nil {
		return BasinConfig{}, err
	}
	return decodeBasinConfig(raw)
}

// Stream reads and decodes the SC row for (basinName, streamName).
func (s *KVSource) Stream(ctx context.Context, basinName, streamName string) (StreamConfig, error) {
	raw, err := s.store.Get(ctx, kvschema.StreamConfigKey(basinName, streamName))
	if err != nil {
		return StreamConfig{}, err
	}
	return decodeStreamConfig(raw)
}

// PutStream encodes and writes the SC row for (basinName, streamName).
func (s *KVSource) PutStream(ctx context.Context, basinName, streamName string, cfg StreamConfig) error {
	return s.store.PutBatch(ctx, []kv.Entry{{
		Key:   kvschema.StreamConfigKey(basinName, streamName),
		Value: encodeStreamConfig(cfg),
	}})
}

// PutBasin encodes and writes the BC row for basinName.
func (s *KVSource) PutBasin(ctx context.Context, basinName string, cfg BasinConfig) error {
	return s.store.PutBatch(ctx, []kv.Entry{{
		Key:   kvschema.BasinConfigKey(basinName),
		Value: encodeBasinConfig(cfg),
	}})
}

// Config value encodings below use a leading version byte, reserved so the
// on-disk format can evolve without breaking existing rows.
const configVersion1 = 0x01

func encodeBasinConfig(c BasinConfig) []byte {
	buf := make([]byte, 1+1+8)
	buf[0] = configVersion1
	if c.AutoCreateStreams {
		buf[1] = 1
	}
	binary.BigEndian.PutUint64(buf[2:], uint64(c.DefaultRetention.Seconds()))
	return buf
}

func decodeBasinConfig(buf []byte) (BasinConfig, error) {
	if len(buf) != 10 || buf[0] != configVersion1 {
		return BasinConfig{}, errors.New("config: unrecognized BasinConfig encoding")
	}
	return BasinConfig{
		AutoCreateStreams: buf[1] != 0,
		DefaultRetention:  time.Duration(binary.BigEndian.Uint64(buf[2:])) * time.Second,
	}, nil
}

func encodeStreamConfig(c StreamConfig) []byte {
	buf := make([]byte, 1+8+1+4)
	buf[0] = configVersion1
	binary.BigEndian.PutUint64(buf[1:], uint64(c.RetentionSeconds))
	if c.StrictClientTimestamps {
		buf[9] = 1
	}
	binary.BigEndian.PutUint32(buf[10:], uint32(c.PipelineDepth))
	return buf
}

func decodeStreamConfig(buf []byte) (StreamConfig, error) {
	if len(buf) != 14 || buf[0] != configVersion1 {
		return StreamConfig{}, errors.New("config: unrecognized StreamConfig encoding")
	}
	return StreamConfig{
		RetentionSeconds:       int64(binary.BigEndian.Uint64(buf[1:])),
		StrictClientTimestamps: buf[9] != 0,
		PipelineDepth:          int(int32(binary.BigEndian.Uint32(buf[10:]))),
	}, nil
}
