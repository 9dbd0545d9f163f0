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

import "time"

// Clock supplies millisecond timestamps to domain logic. Production code
// must never call time.Now() directly inside the Streamer's admission path;
// going through this interface keeps timestamp assignment deterministic and
// replayable in tests.
type Clock interface {
	NowMs() uint64
}

// SystemClock is the Clock backed by the wall clock, used by cmd/streamd.
type SystemClock struct{}

// NowMs returns the current Unix time in milliseconds.
func (SystemClock) NowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

// FixedClock is a Clock that always returns the same value until advanced,
// used by tests that need deterministic timestamps.
type FixedClock struct {
	ms uint64
}

// NewFixedClock returns a FixedClock starting at ms.
func NewFixedClock(ms uint64) *FixedClock {
	return &FixedClock{ms: ms}
}

// NowMs returns the clock's current value.
func (c *FixedClock) NowMs() uint64 {
	return c.ms
}

// Advance moves the clock forward by delta milliseconds and returns the new value.
func (c *FixedClock) Advance(delta uint64) uint64 {
	c.ms += delta
	return c.ms
}

// Set pins the clock to an explicit value.
func (c *FixedClock) Set(ms uint64) {
	c.ms = ms
}
