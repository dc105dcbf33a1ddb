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

// Package engine defines the contracts between the bytecode compiler and
// the external kernel toolchain: the compile engine lowering primitive
// functions and the backend builder turning lowered functions into
// callable handles.
package engine

import (
	"github.com/gx-org/tensorvm/build/ir"
	"github.com/gx-org/tensorvm/vm"
)

// Target names the kernel backend a module is compiled for.
type Target string

// DefaultTarget is the backend used when the caller selects none.
const DefaultTarget Target = "go"

// LoweredFunc is a handle on a kernel produced by a compile engine.
// Implementations must be comparable: the compiler interns handles so that
// identical kernels share one op index.
type LoweredFunc interface {
	// Name of the lowered function. The backend runtime module resolves
	// callables by this name.
	Name() string
}

// CacheKey identifies a lowering request. Engines may memoize on it.
type CacheKey struct {
	Func   *ir.Function
	Target Target
}

// Engine lowers primitive functions to kernels.
type Engine interface {
	// Lower returns the bundle of kernels implementing fn on target.
	// The compiler requires exactly one entry per bundle.
	Lower(fn *ir.Function, target Target) ([]LoweredFunc, error)
}

// RuntimeModule holds the object code produced by a backend builder.
type RuntimeModule interface {
	// GetFunction resolves a lowered function by name.
	GetFunction(name string) (vm.PackedFunc, error)
}
