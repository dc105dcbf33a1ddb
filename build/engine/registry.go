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
	"github.com/pkg/errors"
	"github.com/gx-org/tensorvm/base/sync"
)

// Builder compiles a list of lowered functions into a runtime module for
// a target.
type Builder func(funcs []LoweredFunc, target Target) (RuntimeModule, error)

// BuildFuncName is the registry name the compiler uses to discover the
// backend builder.
const BuildFuncName = "tensorvm.backend.build"

// Registry maps names to backend builders.
type Registry struct {
	builders sync.Map[string, Builder]
}

// NewRegistry returns a new empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register a builder under a name, replacing any previous registration.
func (r *Registry) Register(name string, build Builder) {
	r.builders.Store(name, build)
}

// Lookup returns the builder registered under a name.
func (r *Registry) Lookup(name string) (Builder, error) {
	build, ok := r.builders.Load(name)
	if !ok {
		return nil, errors.Errorf("%s is not registered", name)
	}
	return build, nil
}

var global = NewRegistry()

// Global returns the process-wide registry.
func Global() *Registry {
	return global
}
