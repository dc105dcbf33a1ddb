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

package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/gx-org/tensorvm/base/sync"
	"github.com/gx-org/tensorvm/build/ir"
)

// SimpleFunc is the lowered-function handle produced by Simple.
type SimpleFunc struct {
	name   string
	fn     *ir.Function
	target Target
}

var _ LoweredFunc = (*SimpleFunc)(nil)

// Name of the lowered function.
func (f *SimpleFunc) Name() string { return f.name }

// Func returns the primitive function the handle was lowered from.
func (f *SimpleFunc) Func() *ir.Function { return f.fn }

// Target the function was lowered for.
func (f *SimpleFunc) Target() Target { return f.target }

// Simple is an in-process compile engine. It assigns each distinct
// lowering request a unique kernel name and memoizes per cache key, so
// lowering the same primitive twice returns the same handle.
type Simple struct {
	cache sync.Map[CacheKey, *SimpleFunc]
	count atomic.Int64
}

var _ Engine = (*Simple)(nil)

// NewSimple returns a new engine with an empty cache.
func NewSimple() *Simple {
	return &Simple{}
}

// Lower returns the handle implementing fn on target.
func (e *Simple) Lower(fn *ir.Function, target Target) ([]LoweredFunc, error) {
	if !fn.Primitive {
		return nil, errors.Errorf("cannot lower %s: not a primitive function", ir.ExprString(fn))
	}
	key := CacheKey{Func: fn, Target: target}
	lowered, ok := e.cache.Load(key)
	if !ok {
		lowered = &SimpleFunc{
			name:   fmt.Sprintf("lowered_%d", e.count.Add(1)-1),
			fn:     fn,
			target: target,
		}
		// A concurrent lowering of the same key wins the name it stored
		// first.
		lowered, _ = e.cache.LoadOrStore(key, lowered)
	}
	return []LoweredFunc{lowered}, nil
}
