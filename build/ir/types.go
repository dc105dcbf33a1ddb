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

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
)

// Type of an expression.
type Type interface {
	Node

	// Key returns the structural identity of the type.
	// Two types are equal if and only if their keys are equal.
	Key() string

	// String representation of the type.
	String() string
}

// TensorType is the type of a tensor with a static shape.
type TensorType struct {
	Sh *shape.Shape
}

var _ Type = (*TensorType)(nil)

func (*TensorType) node() {}

// DType returns the element type of the tensor.
func (t *TensorType) DType() dtype.DataType { return t.Sh.DType }

// Key returns the structural identity of the type.
func (t *TensorType) Key() string {
	return fmt.Sprintf("%s%v", t.Sh.DType.String(), t.Sh.AxisLengths)
}

// String representation of the type.
func (t *TensorType) String() string { return t.Key() }

// TensorOf returns the tensor type with the given element type and axes.
func TensorOf(dt dtype.DataType, axes ...int) *TensorType {
	return &TensorType{Sh: &shape.Shape{DType: dt, AxisLengths: axes}}
}

// TupleType is the type of an ordered sequence of values.
type TupleType struct {
	Fields []Type
}

var _ Type = (*TupleType)(nil)

func (*TupleType) node() {}

// Key returns the structural identity of the type.
func (t *TupleType) Key() string {
	keys := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		keys[i] = f.Key()
	}
	return "(" + strings.Join(keys, ",") + ")"
}

// String representation of the type.
func (t *TupleType) String() string {
	ss := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		ss[i] = f.String()
	}
	return "(" + strings.Join(ss, ", ") + ")"
}

// FuncType is the type of a function. It is inspected by the compiler but
// never materialized in the bytecode.
type FuncType struct {
	Params []Type
	Ret    Type
}

var _ Type = (*FuncType)(nil)

func (*FuncType) node() {}

// Key returns the structural identity of the type.
func (t *FuncType) Key() string {
	keys := make([]string, len(t.Params))
	for i, p := range t.Params {
		keys[i] = p.Key()
	}
	return "fn(" + strings.Join(keys, ",") + ")->" + t.Ret.Key()
}

// String representation of the type.
func (t *FuncType) String() string {
	ss := make([]string, len(t.Params))
	for i, p := range t.Params {
		ss[i] = p.String()
	}
	return "fn(" + strings.Join(ss, ", ") + ") " + t.Ret.String()
}

// TypesEqual returns true if two types are structurally equal.
func TypesEqual(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Key() == b.Key()
}
