// Copyright 2026 SnapFS Authors
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

// Package blockmap is an in-process implementation of the block-map
// contract the engine consumes. The engine only assembles deletion sets;
// this map tracks ownership and queues releases until the caller drains
// them.
package blockmap

import (
	"sort"
	"sync"

	"snapfs/internal/namespace"
)

// Map tracks block ownership and pending deletions.
type Map struct {
	mu      sync.Mutex
	owners  map[namespace.BlockID]*namespace.File
	pending []namespace.BlockID
}

func New() *Map {
	return &Map{owners: make(map[namespace.BlockID]*namespace.File)}
}

// Mark records that owner holds the block.
func (m *Map) Mark(id namespace.BlockID, owner *namespace.File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[id] = owner
}

// AddToDelete queues the block for release and forgets its owner.
func (m *Map) AddToDelete(id namespace.BlockID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[id]; ok {
		delete(m.owners, id)
		m.pending = append(m.pending, id)
	}
}

// Has reports whether the map still holds the block.
func (m *Map) Has(id namespace.BlockID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.owners[id]
	return ok
}

// Held returns the retained block ids in ascending order.
func (m *Map) Held() []namespace.BlockID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]namespace.BlockID, 0, len(m.owners))
	for id := range m.owners {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Drain returns and clears the pending deletion queue.
func (m *Map) Drain() []namespace.BlockID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}

// Len is the number of retained blocks.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.owners)
}
