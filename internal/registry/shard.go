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
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"streamkeeper/internal/streamid"
)

// ShardRouter picks the owning node for a stream among a fixed set of
// cluster nodes using rendezvous (highest random weight) hashing: adding or
// removing a node only reshuffles the streams that hashed to it, unlike a
// modulo-based scheme that reshuffles nearly everything. A single-node
// deployment never consults this type; it exists for multi-node
// deployments that shard streams across a cluster.
type ShardRouter struct {
	r *rendezvous.Rendezvous
}

// NewShardRouter builds a router over the given node identifiers (e.g.
// "host:port" strings).
func NewShardRouter(nodes []string) *ShardRouter {
	return &ShardRouter{r: rendezvous.New(nodes, hashNode)}
}

// Owner returns which node owns id.
func (s *ShardRouter) Owner(id streamid.ID) string {
	return s.r.Lookup(id.String())
}

// AddNode registers a new node, reassigning only the streams whose weight
// against it now exceeds their current owner's.
func (s *ShardRouter) AddNode(node string) {
	s.r.Add(node)
}

// RemoveNode retires a node so its streams redistribute across the rest.
func (s *ShardRouter) RemoveNode(node string) {
	s.r.Remove(node)
}

// hashNode is the library's string hasher: it is applied to every node
// name and to every candidate key, and the library combines the two
// hashes into each node's weight.
func hashNode(key string) uint64 {
	return xxhash.Sum64String(key)
}
