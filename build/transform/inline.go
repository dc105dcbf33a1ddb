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
	"github.com/pkg/errors"
	"github.com/gx-org/tensorvm/build/ir"
)

// InlinePrimitives replaces references to primitive globals with the
// primitive function literal, so primitive calls appear as a call of a
// function node at the site. Primitive globals are then dropped from the
// module: every remaining global compiles to a VM function.
func InlinePrimitives(mod *ir.Module) (*ir.Module, error) {
	out := ir.NewModule()
	for gv, fn := range mod.Funcs() {
		if fn.Primitive {
			continue
		}
		body, err := inlineExpr(mod, fn.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot inline primitives in %s", gv.Name)
		}
		out.Add(gv, &ir.Function{Params: fn.Params, Body: body})
	}
	return out, nil
}

func inlineExpr(mod *ir.Module, e ir.Expr) (ir.Expr, error) {
	switch eT := e.(type) {
	case *ir.GlobalVar:
		def, err := mod.Lookup(eT)
		if err != nil {
			return nil, err
		}
		if def.Primitive {
			return def, nil
		}
		return eT, nil
	case *ir.Var, *ir.Constant, *ir.Constructor:
		return e, nil
	case *ir.Tuple:
		fields, err := inlineExprs(mod, eT.Fields)
		if err != nil {
			return nil, err
		}
		return &ir.Tuple{Fields: fields}, nil
	case *ir.TupleGetItem:
		tup, err := inlineExpr(mod, eT.Tuple)
		if err != nil {
			return nil, err
		}
		return &ir.TupleGetItem{Tuple: tup, Index: eT.Index, Typ: eT.Typ}, nil
	case *ir.Let:
		value, err := inlineExpr(mod, eT.Value)
		if err != nil {
			return nil, err
		}
		body, err := inlineExpr(mod, eT.Body)
		if err != nil {
			return nil, err
		}
		return &ir.Let{Var: eT.Var, Value: value, Body: body}, nil
	case *ir.If:
		cond, err := inlineExpr(mod, eT.Cond)
		if err != nil {
			return nil, err
		}
		trueB, err := inlineExpr(mod, eT.True)
		if err != nil {
			return nil, err
		}
		falseB, err := inlineExpr(mod, eT.False)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: cond, True: trueB, False: falseB}, nil
	case *ir.Call:
		op, err := inlineExpr(mod, eT.Op)
		if err != nil {
			return nil, err
		}
		args, err := inlineExprs(mod, eT.Args)
		if err != nil {
			return nil, err
		}
		return &ir.Call{Op: op, Args: args, Typ: eT.Typ}, nil
	case *ir.Function:
		if eT.Primitive {
			return eT, nil
		}
		body, err := inlineExpr(mod, eT.Body)
		if err != nil {
			return nil, err
		}
		return &ir.Function{Params: eT.Params, Body: body}, nil
	case *ir.Match:
		subject, err := inlineExpr(mod, eT.Subject)
		if err != nil {
			return nil, err
		}
		return &ir.Match{Subject: subject, Typ: eT.Typ}, nil
	default:
		return nil, errors.Errorf("cannot inline primitives in %s: unknown node %T", ir.ExprString(e), e)
	}
}

func inlineExprs(mod *ir.Module, es []ir.Expr) ([]ir.Expr, error) {
	out := make([]ir.Expr, len(es))
	for i, e := range es {
		var err error
		if out[i], err = inlineExpr(mod, e); err != nil {
			return nil, err
		}
	}
	return out, nil
}
