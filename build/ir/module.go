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

package ir

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/tensorvm/base/ordered"
)

// Module maps global variables to top-level functions.
// Iteration order is insertion order: the compiler assigns dense global
// indices from it.
type Module struct {
	funcs  *ordered.Map[*GlobalVar, *Function]
	byName map[string]*GlobalVar
}

// NewModule returns a new empty module.
func NewModule() *Module {
	return &Module{
		funcs:  ordered.NewMap[*GlobalVar, *Function](),
		byName: make(map[string]*GlobalVar),
	}
}

// Add a global function to the module.
// Adding an already present global replaces its definition.
func (m *Module) Add(gv *GlobalVar, fn *Function) {
	m.funcs.Store(gv, fn)
	m.byName[gv.Name] = gv
}

// Lookup returns the definition of a global.
func (m *Module) Lookup(gv *GlobalVar) (*Function, error) {
	fn, ok := m.funcs.Load(gv)
	if !ok {
		return nil, errors.Errorf("global %s is not defined in the module", gv.Name)
	}
	return fn, nil
}

// GlobalByName returns the global variable with the given name.
func (m *Module) GlobalByName(name string) (*GlobalVar, bool) {
	gv, ok := m.byName[name]
	return gv, ok
}

// Funcs returns an iterator over the module globals in insertion order.
func (m *Module) Funcs() func(func(*GlobalVar, *Function) bool) {
	return m.funcs.Iter()
}

// Size returns the number of globals in the module.
func (m *Module) Size() int {
	return m.funcs.Size()
}

// String representation of the module.
func (m *Module) String() string {
	var sb strings.Builder
	for gv, fn := range m.funcs.Iter() {
		sb.WriteString("def @")
		sb.WriteString(gv.Name)
		sb.WriteString(" = ")
		sb.WriteString(ExprString(fn))
		sb.WriteString("\n")
	}
	return sb.String()
}
