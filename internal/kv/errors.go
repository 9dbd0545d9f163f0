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

package kv

import "streamkeeper/internal/streamerr"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = streamerr.NotFound.New("key not found")

// ErrUnavailable wraps a transient backend failure (network, timeout,
// connection pool exhaustion). Callers should treat it as retryable.
func ErrUnavailable(cause error) error {
	return streamerr.Unavailable.Wrap(cause)
}

// ErrCorrupt wraps a decode failure discovered while reading from the backend.
func ErrCorrupt(cause error) error {
	return streamerr.Corrupt.Wrap(cause)
}
