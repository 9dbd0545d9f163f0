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

package streamid

import (
	"encoding/binary"

	"streamkeeper/internal/streamerr"
)

// Header is one name/value pair carried alongside a record body.
type Header struct {
	Name  []byte
	Value []byte
}

// Record is the immutable unit stored under the SD key prefix.
type Record struct {
	SeqNum    uint64
	Timestamp uint64
	Headers   []Header
	Body      []byte
}

// recordCorrupt classifies every decode failure in this file under the
// shared Corrupt taxonomy member (see internal/streamerr).
var recordCorrupt = streamerr.Corrupt

// Encode serializes r using the length-prefixed framing:
//
//	be_u64(seq_num) || be_u64(timestamp) ||
//	be_u32(header_count) || { be_u32(name_len) || name || be_u32(value_len) || value } ... ||
//	be_u32(body_len) || body
func Encode(r Record) []byte {
	size := 8 + 8 + 4
	for _, h := range r.Headers {
		size += 4 + len(h.Name) + 4 + len(h.Value)
	}
	size += 4 + len(r.Body)

	buf := make([]byte, size)
	off := 0
	binary.BigEndian.PutUint64(buf[off:], r.SeqNum)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], r.Timestamp)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(len(r.Headers)))
	off += 4
	for _, h := range r.Headers {
		binary.BigEndian.PutUint32(buf[off:], uint32(len(h.Name)))
		off += 4
		off += copy(buf[off:], h.Name)
		binary.BigEndian.PutUint32(buf[off:], uint32(len(h.Value)))
		off += 4
		off += copy(buf[off:], h.Value)
	}
	binary.BigEndian.PutUint32(buf[off:], uint32(len(r.Body)))
	off += 4
	off += copy(buf[off:], r.Body)
	return buf[:off]
}

// Decode is the exact inverse of Encode. Any truncation or length mismatch
// is reported as recordCorrupt rather than panicking, since the bytes
// originate from a durable store that may have been damaged out of band.
func Decode(buf []byte) (Record, error) {
	var r Record
	if len(buf) < 8+8+4 {
		return r, recordCorrupt.New("truncated record header: %d bytes", len(buf))
	}
	off := 0
	r.SeqNum = binary.BigEndian.Uint64(buf[off:])
	off += 8
	r.Timestamp = binary.BigEndian.Uint64(buf[off:])
	off += 8
	headerCount := binary.BigEndian.Uint32(buf[off:])
	off += 4

	if headerCount > 0 {
		// headerCount is untrusted (it comes straight off the wire/disk);
		// each header needs at least 8 bytes (its two length prefixes), so
		// cap the preallocation at what the remaining buffer could possibly
		// hold instead of trusting a corrupt count like 0xFFFFFFFF.
		maxPossible := uint32(len(buf)-off) / 8
		prealloc := headerCount
		if prealloc > maxPossible {
			prealloc = maxPossible
		}
		r.Headers = make([]Header, 0, prealloc)
	}
	for i := uint32(0); i < headerCount; i++ {
		name, next, err := readChunk(buf, off)
		if err != nil {
			return Record{}, err
		}
		off = next
		value, next, err := readChunk(buf, off)
		if err != nil {
			return Record{}, err
		}
		off = next
		r.Headers = append(r.Headers, Header{Name: name, Value: value})
	}

	body, next, err := readChunk(buf, off)
	if err != nil {
		return Record{}, err
	}
	off = next
	r.Body = body

	if off != len(buf) {
		return Record{}, recordCorrupt.New("trailing %d bytes after body", len(buf)-off)
	}
	return r, nil
}

// readChunk reads a be_u32 length prefix followed by that many bytes,
// starting at off, and returns the slice plus the offset just past it.
func readChunk(buf []byte, off int) ([]byte, int, error) {
	if off+4 > len(buf) {
		return nil, 0, recordCorrupt.New("truncated length prefix at offset %d", off)
	}
	n := int(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	if n < 0 || off+n > len(buf) {
		return nil, 0, recordCorrupt.New("truncated chunk of %d bytes at offset %d", n, off)
	}
	return buf[off : off+n], off + n, nil
}
