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

// Package kvschema encodes the BC/SC/SD/ST/SP key layout of the KV schema
// over the abstract kv.Store. Every other package that needs to address a
// row goes through here, so the byte layout is defined in exactly one
// place.
package kvschema

import (
	"encoding/binary"

	"streamkeeper/internal/streamid"
)

const (
	prefixBasinConfig  = "BC"
	prefixStreamConfig = "SC"
	prefixRecord       = "SD"
	prefixTimestamp    = "ST"
	prefixTail         = "SP"

	streamConfigSep = 0x23 // '#'
)

// BasinConfigKey is "BC" || basin_name.
func BasinConfigKey(basinName string) []byte {
	return append([]byte(prefixBasinConfig), basinName...)
}

// StreamConfigKey is "SC" || basin_name || 0x23 || stream_name.
func StreamConfigKey(basinName, streamName string) []byte {
	buf := make([]byte, 0, 2+len(basinName)+1+len(streamName))
	buf = append(buf, prefixStreamConfig...)
	buf = append(buf, basinName...)
	buf = append(buf, streamConfigSep)
	buf = append(buf, streamName...)
	return buf
}

// RecordKey is "SD" || StreamID || be_u64(seq_num).
func RecordKey(id streamid.ID, seqNum uint64) []byte {
	buf := make([]byte, 2+streamid.Size+8)
	copy(buf, prefixRecord)
	copy(buf[2:], id.Bytes())
	binary.BigEndian.PutUint64(buf[2+streamid.Size:], seqNum)
	return buf
}

// RecordPrefix is "SD" || StreamID, the inclusive lower bound (and, with
// PrefixUpperBound, exclusive upper bound) for scanning every record of a
// stream.
func RecordPrefix(id streamid.ID) []byte {
	buf := make([]byte, 2+streamid.Size)
	copy(buf, prefixRecord)
	copy(buf[2:], id.Bytes())
	return buf
}

// TimestampKey is "ST" || StreamID || be_u64(timestamp) || be_u64(seq_num).
func TimestampKey(id streamid.ID, timestamp, seqNum uint64) []byte {
	buf := make([]byte, 2+streamid.Size+8+8)
	copy(buf, prefixTimestamp)
	copy(buf[2:], id.Bytes())
	binary.BigEndian.PutUint64(buf[2+streamid.Size:], timestamp)
	binary.BigEndian.PutUint64(buf[2+streamid.Size+8:], seqNum)
	return buf
}

// TimestampPrefix is "ST" || StreamID, the bound for scanning a stream's
// whole timestamp index.
func TimestampPrefix(id streamid.ID) []byte {
	buf := make([]byte, 2+streamid.Size)
	copy(buf, prefixTimestamp)
	copy(buf[2:], id.Bytes())
	return buf
}

// TimestampLowerBound is "ST" || StreamID || be_u64(timestamp), the
// inclusive lower bound for "first record at or after timestamp".
func TimestampLowerBound(id streamid.ID, timestamp uint64) []byte {
	buf := make([]byte, 2+streamid.Size+8)
	copy(buf, prefixTimestamp)
	copy(buf[2:], id.Bytes())
	binary.BigEndian.PutUint64(buf[2+streamid.Size:], timestamp)
	return buf
}

// TailKey is "SP" || StreamID.
func TailKey(id streamid.ID) []byte {
	buf := make([]byte, 2+streamid.Size)
	copy(buf, prefixTail)
	copy(buf[2:], id.Bytes())
	return buf
}

// PrefixUpperBound returns the smallest key that is strictly greater than
// every key starting with prefix, by incrementing the last byte that isn't
// already 0xFF (and dropping trailing 0xFF bytes). Used as the exclusive
// End of a forward Scan bounded to one prefix.
func PrefixUpperBound(prefix []byte) []byte {
	bound := append([]byte(nil), prefix...)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] != 0xFF {
			bound[i]++
			return bound[:i+1]
		}
	}
	// prefix was all 0xFF bytes: there is no finite upper bound, so the
	// caller must scan to the end of the keyspace (nil End).
	return nil
}

// EncodeTail serializes (next_seq, last_ts) for the SP row.
func EncodeTail(nextSeq, lastTs uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf, nextSeq)
	binary.BigEndian.PutUint64(buf[8:], lastTs)
	return buf
}

// DecodeTail is the inverse of EncodeTail.
func DecodeTail(buf []byte) (nextSeq, lastTs uint64, ok bool) {
	if len(buf) != 16 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint64(buf), binary.BigEndian.Uint64(buf[8:]), true
}

// SeqNumFromRecordKey extracts the seq_num suffix of an "SD"-prefixed key.
func SeqNumFromRecordKey(key []byte) (uint64, bool) {
	if len(key) != 2+streamid.Size+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[2+streamid.Size:]), true
}

// SeqNumFromTimestampKey extracts the seq_num suffix of an "ST"-prefixed key.
func SeqNumFromTimestampKey(key []byte) (uint64, bool) {
	if len(key) != 2+streamid.Size+8+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[2+streamid.Size+8:]), true
}
