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

// LambdaLift promotes every nested non-primitive function to a module
// global. A function with free variables becomes a closure-shaped global:
// the outer function lists the captured variables as parameters and its
// body is the original function. The use site becomes a call of the
// lifted global over the captured variables, which the compiler emits as
// a closure allocation. A function with no free variables is lifted
// as-is and the use site becomes a reference to the global.
func LambdaLift(mod *ir.Module) (*ir.Module, error) {
	l := &lifter{out: ir.NewModule()}
	for gv, fn := range mod.Funcs() {
		if fn.Primitive {
			l.out.Add(gv, fn)
			continue
		}
		body, err := l.lift(fn.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot lift lambdas in %s", gv.Name)
		}
		l.out.Add(gv, &ir.Function{Params: fn.Params, Body: body})
	}
	return l.out, nil
}

type lifter struct {
	out   *ir.Module
	count int
}

func (l *lifter) liftFunction(fn *ir.Function) (ir.Expr, error) {
	// Post-order: the innermost functions are lifted first, so the free
	// variables of fn account for its own lifted replacements.
	body, err := l.lift(fn.Body)
	if err != nil {
		return nil, err
	}
	inner := &ir.Function{Params: fn.Params, Body: body}
	free := FreeVars(inner)
	gv := &ir.GlobalVar{Name: fmt.Sprintf("lifted_%d", l.count)}
	l.count++
	if len(free) == 0 {
		l.out.Add(gv, inner)
		return gv, nil
	}
	// The captured variables become the parameters of the outer
	// function: the closure invocation convention places call arguments
	// first, then the environment.
	l.out.Add(gv, &ir.Function{Params: free, Body: inner})
	args := make([]ir.Expr, len(free))
	for i, v := range free {
		args[i] = v
	}
	return &ir.Call{Op: gv, Args: args, Typ: inner.Type()}, nil
}

func (l *lifter) lift(e ir.Expr) (ir.Expr, error) {
	switch eT := e.(type) {
	case *ir.Var, *ir.GlobalVar, *ir.Constant, *ir.Constructor:
		return e, nil
	case *ir.Function:
		if eT.Primitive {
			return eT, nil
		}
		return l.liftFunction(eT)
	case *ir.Tuple:
		fields, err := l.liftAll(eT.Fields)
		if err != nil {
			return nil, err
		}
		return &ir.Tuple{Fields: fields}, nil
	case *ir.TupleGetItem:
		tup, err := l.lift(eT.Tuple)
		if err != nil {
			return nil, err
		}
		return &ir.TupleGetItem{Tuple: tup, Index: eT.Index, Typ: eT.Typ}, nil
	case *ir.Let:
		value, err := l.lift(eT.Value)
		if err != nil {
			return nil, err
		}
		body, err := l.lift(eT.Body)
		if err != nil {
			return nil, err
		}
		return &ir.Let{Var: eT.Var, Value: value, Body: body}, nil
	case *ir.If:
		cond, err := l.lift(eT.Cond)
		if err != nil {
			return nil, err
		}
		trueB, err := l.lift(eT.True)
		if err != nil {
			return nil, err
		}
		falseB, err := l.lift(eT.False)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: cond, True: trueB, False: falseB}, nil
	case *ir.Call:
		var op ir.Expr
		var err error
		if fnOp, ok := eT.Op.(*ir.Function); ok && fnOp.Primitive {
			op = fnOp
		} else if op, err = l.lift(eT.Op); err != nil {
			return nil, err
		}
		args, err := l.liftAll(eT.Args)
		if err != nil {
			return nil, err
		}
		return &ir.Call{Op: op, Args: args, Typ: eT.Typ}, nil
	case *ir.Match:
		subject, err := l.lift(eT.Subject)
		if err != nil {
			return nil, err
		}
		return &ir.Match{Subject: subject, Typ: eT.Typ}, nil
	default:
		return nil, errors.Errorf("cannot lift lambdas in %s: unknown node %T", ir.ExprString(e), e)
	}
}

func (l *lifter) liftAll(es []ir.Expr) ([]ir.Expr, error) {
	out := make([]ir.Expr, len(es))
	for i, e := range es {
		var err error
		if out[i], err = l.lift(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}
