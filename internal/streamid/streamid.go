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

// Package streamid derives the stable 32-byte identity of a stream from its
// basin and stream names, and defines the record wire framing committed to
// the KV schema.
package streamid

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Size is the byte length of an ID.
const Size = 32

// ID is the domain-separated hash identity of a (basin, stream) pair.
type ID [Size]byte

// domainSeparator sits between the basin and stream name bytes so that
// basin "a", stream "bc" never collides with basin "ab", stream "c".
const domainSeparator = 0x00

// Derive computes the ID for a (basin_name, stream_name) pair.
//
//	StreamID = Blake3(basin_name || 0x00 || stream_name)
func Derive(basinName, streamName string) ID {
	buf := make([]byte, 0, len(basinName)+1+len(streamName))
	buf = append(buf, basinName...)
	buf = append(buf, domainSeparator)
	buf = append(buf, streamName...)
	return ID(blake3.Sum256(buf))
}

// String renders the ID as lowercase hex, for logging and keys.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 32 bytes, e.g. to embed in a KV key.
func (id ID) Bytes() []byte {
	return id[:]
}
