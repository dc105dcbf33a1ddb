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

// Package tensor provides host tensor values.
//
// A Tensor owns its buffer on the host. The compiler uses tensors for
// literal constants in the source program and for the shape constants it
// synthesizes into the constant pool.
package tensor

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
)

// Tensor is a host value: a shape and a flat row-major buffer.
type Tensor struct {
	sh   *shape.Shape
	data []byte
}

// New returns a tensor owning data.
func New(sh *shape.Shape, data []byte) (*Tensor, error) {
	want := sh.Size() * dtype.Sizeof(sh.DType)
	if len(data) != want {
		return nil, errors.Errorf("buffer has %d bytes but shape %s requires %d", len(data), sh.String(), want)
	}
	return &Tensor{sh: sh, data: data}, nil
}

// FromSlice returns a tensor with the given axes, copying vals.
func FromSlice[T dtype.GoDataType](vals []T, axes []int) (*Tensor, error) {
	sh := &shape.Shape{
		DType:       dtype.Generic[T](),
		AxisLengths: axes,
	}
	return New(sh, bytesOf(vals))
}

// FromInt64s returns a 1-D int64 tensor listing vals.
// The constant pool stores tensor shapes in this form.
func FromInt64s(vals ...int64) *Tensor {
	t, err := FromSlice(vals, []int{len(vals)})
	if err != nil {
		panic(err)
	}
	return t
}

func bytesOf[T dtype.GoDataType](vals []T) []byte {
	if len(vals) == 0 {
		return nil
	}
	ptr := unsafe.Pointer(&vals[0])
	src := unsafe.Slice((*byte)(ptr), len(vals)*int(unsafe.Sizeof(vals[0])))
	return append([]byte{}, src...)
}

// Shape of the tensor.
func (t *Tensor) Shape() *shape.Shape {
	return t.sh
}

// Data returns the raw buffer of the tensor.
func (t *Tensor) Data() []byte {
	return t.data
}

// Int64s decodes the buffer of a int64 tensor.
func (t *Tensor) Int64s() ([]int64, error) {
	if t.sh.DType != dtype.Int64 {
		return nil, errors.Errorf("tensor has data type %s but want %s", t.sh.DType.String(), dtype.Int64.String())
	}
	if len(t.data) == 0 {
		return []int64{}, nil
	}
	return dtype.ToSlice[int64](t.data), nil
}

// Key returns a structural identity for the tensor.
// Two tensors with the same data type, axes, and buffer share a key.
func (t *Tensor) Key() string {
	return fmt.Sprintf("%s%v:%x", t.sh.DType.String(), t.sh.AxisLengths, t.data)
}

// String representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("tensor<%s%v>", t.sh.DType.String(), t.sh.AxisLengths)
}
