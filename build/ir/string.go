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
	"fmt"
	"strings"
)

// ExprString returns a compact representation of an expression.
// Compile failures print the offending expression with it.
func ExprString(e Expr) string {
	switch eT := e.(type) {
	case *Var:
		return eT.Name
	case *GlobalVar:
		return "@" + eT.Name
	case *Constant:
		return eT.Value.String()
	case *Tuple:
		return "(" + exprList(eT.Fields) + ")"
	case *TupleGetItem:
		return fmt.Sprintf("%s.%d", ExprString(eT.Tuple), eT.Index)
	case *Let:
		return fmt.Sprintf("let %s = %s; %s", eT.Var.Name, ExprString(eT.Value), ExprString(eT.Body))
	case *If:
		return fmt.Sprintf("if %s { %s } else { %s }", ExprString(eT.Cond), ExprString(eT.True), ExprString(eT.False))
	case *Call:
		return fmt.Sprintf("%s(%s)", ExprString(eT.Op), exprList(eT.Args))
	case *Function:
		prim := ""
		if eT.Primitive {
			prim = "primitive "
		}
		params := make([]string, len(eT.Params))
		for i, p := range eT.Params {
			params[i] = p.Name
		}
		return fmt.Sprintf("%sfn(%s) { %s }", prim, strings.Join(params, ", "), ExprString(eT.Body))
	case *Constructor:
		return "#" + eT.Name
	case *Match:
		return fmt.Sprintf("match %s", ExprString(eT.Subject))
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

func exprList(es []Expr) string {
	ss := make([]string, len(es))
	for i, e := range es {
		ss[i] = ExprString(e)
	}
	return strings.Join(ss, ", ")
}
