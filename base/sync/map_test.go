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

package sync_test

import (
	"testing"

	"github.com/gx-org/tensorvm/base/sync"
)

func TestMap(t *testing.T) {
	var m sync.Map[string, int]
	if _, ok := m.Load("a"); ok {
		t.Errorf("Load found a key in an empty map")
	}
	m.Store("a", 1)
	v, ok := m.Load("a")
	if !ok || v != 1 {
		t.Errorf("Load(a) = %d, %v but want 1, true", v, ok)
	}
	if v, loaded := m.LoadOrStore("a", 2); !loaded || v != 1 {
		t.Errorf("LoadOrStore(a) = %d, %v but want 1, true", v, loaded)
	}
	if v, loaded := m.LoadOrStore("b", 2); loaded || v != 2 {
		t.Errorf("LoadOrStore(b) = %d, %v but want 2, false", v, loaded)
	}
	got := map[string]int{}
	for k, v := range m.Iter() {
		got[k] = v
	}
	if len(got) != 2 || got["a"] != 1 || got["b"] != 2 {
		t.Errorf("Iter yields %v but want map[a:1 b:2]", got)
	}
}
