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

package compiler

import (
	"github.com/pkg/errors"
	"github.com/gx-org/tensorvm/base/errlist"
	"github.com/gx-org/tensorvm/base/ordered"
	"github.com/gx-org/tensorvm/build/engine"
	"github.com/gx-org/tensorvm/build/ir"
	"github.com/gx-org/tensorvm/vm"
)

// context is the state shared by all function compilations of one
// CompileModule invocation. It is owned by the module compiler and
// mutated by one function compiler at a time.
type context struct {
	module *ir.Module
	errs   *errlist.List

	engine   engine.Engine
	target   engine.Target
	registry *engine.Registry

	// pool holds literal constants and precomputed tensor shapes.
	pool *constPool

	// globalMap interns the globals, assigning each its dense function
	// index.
	globalMap *ordered.Map[*ir.GlobalVar, *ir.Function]

	// loweredFuncs and seenFuncs intern kernel handles: identical
	// handles share one op index.
	loweredFuncs []engine.LoweredFunc
	seenFuncs    map[engine.LoweredFunc]vm.Index

	// tagMap and tagNameMap record the constructors seen during
	// compilation, by constructor and by tag.
	tagMap     map[*ir.Constructor]int
	tagNameMap map[int]*ir.Constructor
}

func newContext(mod *ir.Module, opts *options) *context {
	return &context{
		module:     mod,
		errs:       &errlist.List{},
		engine:     opts.engine,
		target:     opts.target,
		registry:   opts.registry,
		globalMap:  ordered.NewMap[*ir.GlobalVar, *ir.Function](),
		seenFuncs:  make(map[engine.LoweredFunc]vm.Index),
		tagMap:     make(map[*ir.Constructor]int),
		tagNameMap: make(map[int]*ir.Constructor),
	}
}

// constIndex returns the pool index of a literal constant.
func (ctx *context) constIndex(konst *ir.Constant) (vm.Index, error) {
	entry, ok := ctx.pool.consts.Load(konst.Value.Key())
	if !ok {
		return 0, errors.Wrapf(ErrMissingConstant, "%s", ir.ExprString(konst))
	}
	return entry.index, nil
}

// shapeIndex returns the pool index of the shape tensor of a tensor type.
func (ctx *context) shapeIndex(tt *ir.TensorType) (vm.Index, error) {
	entry, ok := ctx.pool.shapes.Load(tt.Key())
	if !ok {
		return 0, errors.Wrapf(ErrMissingConstant, "no shape constant for %s", tt.String())
	}
	return entry.index, nil
}

// registerConstructor records a constructor in the tag tables.
func (ctx *context) registerConstructor(con *ir.Constructor) int {
	ctx.tagMap[con] = con.Tag
	ctx.tagNameMap[con.Tag] = con
	return con.Tag
}

// lowerPrimitive asks the compile engine for the kernel implementing fn
// and interns the handle, returning its dense op index.
func (ctx *context) lowerPrimitive(fn *ir.Function) (vm.Index, error) {
	bundle, err := ctx.engine.Lower(fn, ctx.target)
	if err != nil {
		return 0, errors.Wrapf(ErrLowering, "%s: %v", ir.ExprString(fn), err)
	}
	if len(bundle) != 1 {
		return 0, errors.Wrapf(ErrLowering, "engine returned %d functions for %s but want 1", len(bundle), ir.ExprString(fn))
	}
	lowered := bundle[0]
	if index, ok := ctx.seenFuncs[lowered]; ok {
		return index, nil
	}
	index := len(ctx.loweredFuncs)
	ctx.loweredFuncs = append(ctx.loweredFuncs, lowered)
	ctx.seenFuncs[lowered] = index
	return index, nil
}
