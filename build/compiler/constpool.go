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
	"github.com/gx-org/tensorvm/base/ordered"
	"github.com/gx-org/tensorvm/build/ir"
	"github.com/gx-org/tensorvm/tensor"
)

type poolEntry struct {
	index int
	value *tensor.Tensor
}

// constPool packs literal constants and statically-known result shapes of
// primitive calls into one dense index space. Indices are assigned in
// order of first observation.
type constPool struct {
	next   int
	consts *ordered.Map[string, poolEntry]
	shapes *ordered.Map[string, poolEntry]
}

func newConstPool() *constPool {
	return &constPool{
		consts: ordered.NewMap[string, poolEntry](),
		shapes: ordered.NewMap[string, poolEntry](),
	}
}

func (p *constPool) addConstant(konst *ir.Constant) {
	key := konst.Value.Key()
	if _, ok := p.consts.Load(key); ok {
		return
	}
	p.consts.Store(key, poolEntry{index: p.next, value: konst.Value})
	p.next++
}

func (p *constPool) addTensorShape(tt *ir.TensorType) {
	key := tt.Key()
	if _, ok := p.shapes.Load(key); ok {
		return
	}
	axes := tt.Sh.AxisLengths
	dims := make([]int64, len(axes))
	for i, axis := range axes {
		dims[i] = int64(axis)
	}
	p.shapes.Store(key, poolEntry{index: p.next, value: tensor.FromInt64s(dims...)})
	p.next++
}

// size returns the number of pool entries across both sub-maps.
func (p *constPool) size() int {
	return p.next
}

// tensors returns the pool as a dense array indexed by pool index.
func (p *constPool) tensors() []*tensor.Tensor {
	out := make([]*tensor.Tensor, p.size())
	for _, entry := range p.consts.Iter() {
		out[entry.index] = entry.value
	}
	for _, entry := range p.shapes.Iter() {
		out[entry.index] = entry.value
	}
	return out
}

// layoutConstantPool walks every expression reachable from the module
// globals and collects the pool. Global references are chased once;
// primitive function bodies are opaque and not walked.
func layoutConstantPool(mod *ir.Module) (*constPool, error) {
	b := &poolBuilder{
		mod:     mod,
		visited: make(map[*ir.GlobalVar]bool),
		pool:    newConstPool(),
	}
	for gv := range mod.Funcs() {
		if err := b.walk(gv); err != nil {
			return nil, err
		}
	}
	return b.pool, nil
}

type poolBuilder struct {
	mod     *ir.Module
	visited map[*ir.GlobalVar]bool
	pool    *constPool
}

func (b *poolBuilder) walk(e ir.Expr) error {
	switch eT := e.(type) {
	case *ir.Var, *ir.Constructor:
		return nil
	case *ir.GlobalVar:
		if b.visited[eT] {
			return nil
		}
		b.visited[eT] = true
		fn, err := b.mod.Lookup(eT)
		if err != nil {
			return errors.Wrapf(ErrMissingGlobal, "%v", err)
		}
		return b.walk(fn)
	case *ir.Constant:
		b.pool.addConstant(eT)
		return nil
	case *ir.Tuple:
		return b.walkAll(eT.Fields)
	case *ir.TupleGetItem:
		return b.walk(eT.Tuple)
	case *ir.Let:
		if err := b.walk(eT.Value); err != nil {
			return err
		}
		return b.walk(eT.Body)
	case *ir.If:
		if err := b.walk(eT.Cond); err != nil {
			return err
		}
		if err := b.walk(eT.True); err != nil {
			return err
		}
		return b.walk(eT.False)
	case *ir.Call:
		if err := b.walkAll(eT.Args); err != nil {
			return err
		}
		if _, ok := eT.Op.(*ir.Function); ok {
			b.addReturnShapes(eT.Typ)
		}
		return nil
	case *ir.Function:
		if eT.Primitive {
			return nil
		}
		return b.walk(eT.Body)
	case *ir.Match:
		return b.walk(eT.Subject)
	default:
		return errors.Wrapf(ErrUnsupported, "cannot layout constants in %s: unknown node %T", ir.ExprString(e), e)
	}
}

func (b *poolBuilder) walkAll(es []ir.Expr) error {
	for _, e := range es {
		if err := b.walk(e); err != nil {
			return err
		}
	}
	return nil
}

// addReturnShapes records the shape constants for the result type of a
// primitive call: the tensor itself, or the tensor fields of a tuple.
// Non-tensor fields are left for the emitter to reject.
func (b *poolBuilder) addReturnShapes(retType ir.Type) {
	switch ty := retType.(type) {
	case *ir.TensorType:
		b.pool.addTensorShape(ty)
	case *ir.TupleType:
		for _, f := range ty.Fields {
			if tt, ok := f.(*ir.TensorType); ok {
				b.pool.addTensorShape(tt)
			}
		}
	}
}
