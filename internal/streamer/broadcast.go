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

package streamer

import (
	"context"
	"fmt"
	"sync"

	"streamkeeper/internal/streamid"
)

// LaggedError is returned by Subscription.Next when a subscriber's cursor
// fell behind the oldest record the hub still holds. By the time it is
// returned the subscription's cursor has moved past the gap, so the
// skipped records are [Cursor()-Skipped, Cursor()); the caller reads them
// durably and keeps using the same subscription.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("streamer: subscriber lagged, skipped %d records", e.Skipped)
}

// broadcastHub fans out committed records to tailing readers through a
// fixed-capacity ring buffer. Publication happens strictly after durable
// acknowledgement (the Streamer only ever calls push from its drainer).
// A slow subscriber never blocks a fast one or the publisher: it simply
// observes LaggedError and must resume from the durable log.
type broadcastHub struct {
	mu    sync.Mutex
	cond  *sync.Cond
	buf   []streamid.Record
	empty bool
	// oldest/newest are inclusive sequence-number bounds of what buf holds.
	oldest, newest uint64
	closed         bool
}

func newBroadcastHub(capacity int) *broadcastHub {
	if capacity < 1 {
		capacity = 1
	}
	h := &broadcastHub{buf: make([]streamid.Record, capacity), empty: true}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// push publishes rec to every subscriber. Records must be pushed in strict
// seq_num order; the hub does not re-sort.
func (h *broadcastHub) push(rec streamid.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	idx := int(rec.SeqNum % uint64(len(h.buf)))
	h.buf[idx] = rec
	if h.empty {
		h.oldest = rec.SeqNum
		h.empty = false
	} else if rec.SeqNum-h.oldest >= uint64(len(h.buf)) {
		h.oldest = rec.SeqNum - uint64(len(h.buf)) + 1
	}
	h.newest = rec.SeqNum
	h.cond.Broadcast()
}

// close wakes every blocked subscriber so they can observe shutdown.
func (h *broadcastHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.cond.Broadcast()
}

// Subscription is a tailing reader's live cursor into a broadcastHub.
type Subscription struct {
	hub    *broadcastHub
	cursor uint64
}

// Subscribe attaches a new subscription starting at fromSeq (the first
// seq_num the caller has not yet observed via a durable scan).
func (h *broadcastHub) Subscribe(fromSeq uint64) *Subscription {
	return &Subscription{hub: h, cursor: fromSeq}
}

// Cursor reports the next seq_num this subscription expects.
func (s *Subscription) Cursor() uint64 {
	return s.cursor
}

// Next blocks until a record at or after the subscription's cursor is
// available, the context is cancelled, or the hub is closed. On
// LaggedError the subscription's cursor has already been advanced past
// the gap: the skipped records are [Cursor()-Skipped, Cursor()), and later
// calls continue from Cursor().
func (s *Subscription) Next(ctx context.Context) (streamid.Record, error) {
	h := s.hub

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		h.cond.Broadcast()
		h.mu.Unlock()
		close(done)
	})
	defer stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return streamid.Record{}, ctx.Err()
		}
		if h.closed {
			return streamid.Record{}, fmt.Errorf("streamer: subscription closed")
		}
		if !h.empty {
			if s.cursor < h.oldest {
				skipped := h.oldest - s.cursor
				s.cursor = h.oldest
				return streamid.Record{}, &LaggedError{Skipped: skipped}
			}
			if s.cursor <= h.newest {
				rec := h.buf[s.cursor%uint64(len(h.buf))]
				s.cursor++
				return rec, nil
			}
		}
		h.cond.Wait()
	}
}
