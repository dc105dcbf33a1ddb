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
	"github.com/gx-org/tensorvm/build/ir"
)

// FreeVars returns the variables of e that are not bound within e, in
// first-occurrence order. Variables are identified by pointer.
func FreeVars(e ir.Expr) []*ir.Var {
	w := &freeWalker{seen: make(map[*ir.Var]bool)}
	w.walk(e, make(map[*ir.Var]bool))
	return w.free
}

type freeWalker struct {
	free []*ir.Var
	seen map[*ir.Var]bool
}

func (w *freeWalker) walk(e ir.Expr, bound map[*ir.Var]bool) {
	switch eT := e.(type) {
	case *ir.Var:
		if bound[eT] || w.seen[eT] {
			return
		}
		w.seen[eT] = true
		w.free = append(w.free, eT)
	case *ir.GlobalVar, *ir.Constant, *ir.Constructor:
	case *ir.Tuple:
		for _, f := range eT.Fields {
			w.walk(f, bound)
		}
	case *ir.TupleGetItem:
		w.walk(eT.Tuple, bound)
	case *ir.Let:
		w.walk(eT.Value, bound)
		w.walk(eT.Body, bind(bound, eT.Var))
	case *ir.If:
		w.walk(eT.Cond, bound)
		w.walk(eT.True, bound)
		w.walk(eT.False, bound)
	case *ir.Call:
		w.walk(eT.Op, bound)
		for _, arg := range eT.Args {
			w.walk(arg, bound)
		}
	case *ir.Function:
		w.walk(eT.Body, bind(bound, eT.Params...))
	case *ir.Match:
		w.walk(eT.Subject, bound)
	}
}

func bind(bound map[*ir.Var]bool, vars ...*ir.Var) map[*ir.Var]bool {
	nb := make(map[*ir.Var]bool, len(bound)+len(vars))
	for v := range bound {
		nb[v] = true
	}
	for _, v := range vars {
		nb[v] = true
	}
	return nb
}
