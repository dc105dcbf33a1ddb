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

package transform

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/gx-org/tensorvm/build/ir"
)

// ToANormalForm names every non-atomic subexpression with a let, so that
// the arguments of calls, tuples, projections, and conditions are always
// variables or constants. Branches of a conditional are normalized in
// their own scope. Primitive function bodies are left untouched.
func ToANormalForm(mod *ir.Module) (*ir.Module, error) {
	out := ir.NewModule()
	n := &normalizer{}
	for gv, fn := range mod.Funcs() {
		if fn.Primitive {
			out.Add(gv, fn)
			continue
		}
		body, err := n.normalize(fn.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot normalize %s", gv.Name)
		}
		out.Add(gv, &ir.Function{Params: fn.Params, Body: body})
	}
	return out, nil
}

type binding struct {
	v     *ir.Var
	value ir.Expr
}

type normalizer struct {
	count int
}

func (n *normalizer) fresh(typ ir.Type) *ir.Var {
	v := &ir.Var{Name: fmt.Sprintf("t%d", n.count), Typ: typ}
	n.count++
	return v
}

// normalize rewrites an expression into a chain of lets ending in a
// result expression. It opens a fresh binding scope: bindings created
// below e stay below e.
func (n *normalizer) normalize(e ir.Expr) (ir.Expr, error) {
	var binds []binding
	res, err := n.compound(e, &binds)
	if err != nil {
		return nil, err
	}
	for i := len(binds) - 1; i >= 0; i-- {
		res = &ir.Let{Var: binds[i].v, Value: binds[i].value, Body: res}
	}
	return res, nil
}

func isAtomic(e ir.Expr) bool {
	switch e.(type) {
	case *ir.Var, *ir.GlobalVar, *ir.Constant, *ir.Constructor:
		return true
	}
	return false
}

// atom returns an atomic expression equivalent to e,
// let-binding e to a fresh variable if required.
func (n *normalizer) atom(e ir.Expr, binds *[]binding) (ir.Expr, error) {
	if isAtomic(e) {
		return e, nil
	}
	value, err := n.compound(e, binds)
	if err != nil {
		return nil, err
	}
	v := n.fresh(value.Type())
	*binds = append(*binds, binding{v: v, value: value})
	return v, nil
}

// compound normalizes one level of e: direct subexpressions become atoms
// bound in the enclosing scope.
func (n *normalizer) compound(e ir.Expr, binds *[]binding) (ir.Expr, error) {
	switch eT := e.(type) {
	case *ir.Var, *ir.GlobalVar, *ir.Constant, *ir.Constructor:
		return e, nil
	case *ir.Let:
		value, err := n.compound(eT.Value, binds)
		if err != nil {
			return nil, err
		}
		*binds = append(*binds, binding{v: eT.Var, value: value})
		return n.compound(eT.Body, binds)
	case *ir.Tuple:
		fields := make([]ir.Expr, len(eT.Fields))
		for i, f := range eT.Fields {
			var err error
			if fields[i], err = n.atom(f, binds); err != nil {
				return nil, err
			}
		}
		return &ir.Tuple{Fields: fields}, nil
	case *ir.TupleGetItem:
		tup, err := n.atom(eT.Tuple, binds)
		if err != nil {
			return nil, err
		}
		return &ir.TupleGetItem{Tuple: tup, Index: eT.Index, Typ: eT.Typ}, nil
	case *ir.If:
		cond, err := n.atom(eT.Cond, binds)
		if err != nil {
			return nil, err
		}
		trueB, err := n.normalize(eT.True)
		if err != nil {
			return nil, err
		}
		falseB, err := n.normalize(eT.False)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: cond, True: trueB, False: falseB}, nil
	case *ir.Call:
		op, err := n.callOp(eT.Op, binds)
		if err != nil {
			return nil, err
		}
		args := make([]ir.Expr, len(eT.Args))
		for i, arg := range eT.Args {
			if args[i], err = n.atom(arg, binds); err != nil {
				return nil, err
			}
		}
		return &ir.Call{Op: op, Args: args, Typ: eT.Typ}, nil
	case *ir.Function:
		if eT.Primitive {
			return eT, nil
		}
		body, err := n.normalize(eT.Body)
		if err != nil {
			return nil, err
		}
		return &ir.Function{Params: eT.Params, Body: body}, nil
	case *ir.Match:
		subject, err := n.atom(eT.Subject, binds)
		if err != nil {
			return nil, err
		}
		return &ir.Match{Subject: subject, Typ: eT.Typ}, nil
	default:
		return nil, errors.Errorf("cannot normalize expression %s: unknown node %T", ir.ExprString(e), e)
	}
}

// callOp normalizes the operator of a call. Operators that the emitter
// dispatches on directly stay in place; anything else is named like an
// argument.
func (n *normalizer) callOp(op ir.Expr, binds *[]binding) (ir.Expr, error) {
	switch opT := op.(type) {
	case *ir.Var, *ir.GlobalVar, *ir.Constructor:
		return op, nil
	case *ir.Function:
		if opT.Primitive {
			return opT, nil
		}
		// A lambda in call position is named so that lambda lifting
		// turns the call into a closure invocation.
		return n.atom(opT, binds)
	default:
		return n.atom(op, binds)
	}
}
