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

// Package ir is the typed functional tensor-program intermediate
// representation consumed by the bytecode compiler.
//
// Expressions are tagged variants: a traversal is a type switch over the
// Expr interface. Var, GlobalVar, and Constructor nodes are identified by
// pointer, so they can key maps directly.
package ir

import (
	"github.com/gx-org/tensorvm/tensor"
)

type (
	// Node in the tree.
	Node interface {
		// node marks a structure as a node structure.
		// It prevents external implementations of the interface.
		node()
	}

	// Expr is an expression of the source program.
	// Every expression carries the type computed by the checker.
	Expr interface {
		Node

		// Type returns the checked type of the expression.
		Type() Type
	}
)

// Var is a local binding reference.
type Var struct {
	Name string
	Typ  Type
}

var _ Expr = (*Var)(nil)

func (*Var) node() {}

// Type of the variable.
func (v *Var) Type() Type { return v.Typ }

// GlobalVar references a top-level function by name.
type GlobalVar struct {
	Name string
}

var _ Expr = (*GlobalVar)(nil)

func (*GlobalVar) node() {}

// Type of a global reference. Globals are only legal in call position,
// where the compiler resolves them through the module, so they carry no
// checked type of their own.
func (v *GlobalVar) Type() Type { return nil }

// Constant is a literal tensor.
type Constant struct {
	Value *tensor.Tensor
}

var _ Expr = (*Constant)(nil)

func (*Constant) node() {}

// Type of the constant.
func (c *Constant) Type() Type {
	return &TensorType{Sh: c.Value.Shape()}
}

// Tuple is an ordered sequence of expressions.
type Tuple struct {
	Fields []Expr
}

var _ Expr = (*Tuple)(nil)

func (*Tuple) node() {}

// Type of the tuple.
func (t *Tuple) Type() Type {
	fields := make([]Type, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = f.Type()
	}
	return &TupleType{Fields: fields}
}

// TupleGetItem projects a field out of a tuple.
type TupleGetItem struct {
	Tuple Expr
	Index int
	Typ   Type
}

var _ Expr = (*TupleGetItem)(nil)

func (*TupleGetItem) node() {}

// Type of the projected field.
func (t *TupleGetItem) Type() Type { return t.Typ }

// Let binds the value of an expression to a variable in a body.
type Let struct {
	Var   *Var
	Value Expr
	Body  Expr
}

var _ Expr = (*Let)(nil)

func (*Let) node() {}

// Type of the let expression is the type of its body.
func (l *Let) Type() Type { return l.Body.Type() }

// If selects between two branches.
type If struct {
	Cond  Expr
	True  Expr
	False Expr
}

var _ Expr = (*If)(nil)

func (*If) node() {}

// Type of the expression. Both branches have the same checked type.
func (e *If) Type() Type { return e.True.Type() }

// Call applies an operator to arguments.
// Typ caches the checked result type of the call.
type Call struct {
	Op   Expr
	Args []Expr
	Typ  Type
}

var _ Expr = (*Call)(nil)

func (*Call) node() {}

// Type of the value returned by the call.
func (c *Call) Type() Type { return c.Typ }

// Function is a function literal.
// A primitive function is an opaque kernel lowered by an external engine.
// After lambda lifting, non-primitive functions appear only as module
// globals or as the body of a closure-shaped global.
type Function struct {
	Params    []*Var
	Body      Expr
	Primitive bool
}

var _ Expr = (*Function)(nil)

func (*Function) node() {}

// Type of the function.
func (f *Function) Type() Type {
	params := make([]Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Typ
	}
	return &FuncType{Params: params, Ret: f.Body.Type()}
}

// RetType returns the checked type of the function result.
func (f *Function) RetType() Type {
	return f.Body.Type()
}

// Constructor is an algebraic-data-type constructor.
type Constructor struct {
	Name  string
	Tag   int
	Arity int
}

var _ Expr = (*Constructor)(nil)

func (*Constructor) node() {}

// Type of a constructor used as a value. Constructors are only legal in
// call position.
func (c *Constructor) Type() Type { return nil }

// Match is pattern matching over algebraic data types.
// The compiler rejects it.
type Match struct {
	Subject Expr
	Typ     Type
}

var _ Expr = (*Match)(nil)

func (*Match) node() {}

// Type of the match expression.
func (m *Match) Type() Type { return m.Typ }
