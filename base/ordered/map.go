// Copyright 2025 Google LLC
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

// Package ordered provides the interning map the compiler keys its
// tables on.
//
// The constant pool, the global function table, and the kernel table all
// hand out dense indices in order of first observation. A Go map loses
// that order, so Map records it: every key keeps the index assigned when
// it was first stored, and iteration follows index order.
package ordered

// Map is an insertion-ordered map interning its keys: the first Store of
// a key assigns it the next dense index, later Stores only replace the
// value.
type Map[K comparable, V any] struct {
	indices map[K]int
	keys    []K
	values  []V
}

// NewMap returns a new empty map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{indices: make(map[K]int)}
}

// Store a key,value pair. The index of k is assigned on its first store
// and never changes.
func (m *Map[K, V]) Store(k K, v V) {
	i, in := m.indices[k]
	if !in {
		i = len(m.keys)
		m.indices[k] = i
		m.keys = append(m.keys, k)
		m.values = append(m.values, v)
		return
	}
	m.values[i] = v
}

// Load returns the value stored for a key.
func (m *Map[K, V]) Load(k K) (V, bool) {
	i, ok := m.indices[k]
	if !ok {
		var zero V
		return zero, false
	}
	return m.values[i], true
}

// IndexOf returns the dense index assigned to a key.
func (m *Map[K, V]) IndexOf(k K) (int, bool) {
	i, ok := m.indices[k]
	return i, ok
}

// Iter returns an iterator to range over the elements of the map in
// index order.
func (m *Map[K, V]) Iter() func(func(K, V) bool) {
	return func(yield func(K, V) bool) {
		for i, k := range m.keys {
			if !yield(k, m.values[i]) {
				break
			}
		}
	}
}

// Size returns the number of elements in the map.
func (m *Map[K, V]) Size() int {
	return len(m.keys)
}
