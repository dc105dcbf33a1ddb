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

// Package transform normalizes source modules before bytecode emission.
//
// The emitter assumes a flat form: every intermediate value named by a
// let (A-normal form), primitive callees inlined at their call sites, and
// nested functions promoted to module globals (lambda lifting).
package transform

import (
	"github.com/gx-org/tensorvm/build/ir"
)

// Pass rewrites a module into a new module.
type Pass func(*ir.Module) (*ir.Module, error)

// Sequential returns a pass applying passes in order.
func Sequential(passes ...Pass) Pass {
	return func(mod *ir.Module) (*ir.Module, error) {
		var err error
		for _, pass := range passes {
			mod, err = pass(mod)
			if err != nil {
				return nil, err
			}
		}
		return mod, nil
	}
}

// Normalize establishes the flat form the bytecode emitter requires.
// Primitives are inlined a second time to reach the bodies created by
// lambda lifting.
func Normalize(mod *ir.Module) (*ir.Module, error) {
	return Sequential(
		ToANormalForm,
		InlinePrimitives,
		LambdaLift,
		InlinePrimitives,
	)(mod)
}
