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

package vm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"github.com/gx-org/tensorvm/tensor"
)

// PackedFunc is a callable kernel handle. Arguments list inputs first,
// then the pre-allocated output tensors the kernel writes into.
type PackedFunc func(args ...*tensor.Tensor) error

// Function is a compiled VM function: a linear instruction stream over a
// dense register frame.
type Function struct {
	Name         string
	Arity        int
	Instructions []Instruction
	NumRegisters int
}

// String lists the instructions of the function.
func (fn Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "VMFunc %s(arity=%d, registers=%d):\n", fn.Name, fn.Arity, fn.NumRegisters)
	for pc, instr := range fn.Instructions {
		fmt.Fprintf(&sb, "  %d: %s\n", pc, instr.String())
	}
	return sb.String()
}

// Executable is the image produced by one module compilation.
type Executable struct {
	// Functions indexed by the global map.
	Functions []Function
	// Constants is the pool of literal and shape tensors.
	Constants []*tensor.Tensor
	// PackedFuncs indexed by the op index of InvokePacked.
	PackedFuncs []PackedFunc
	// GlobalMap maps a global function name to its index in Functions.
	GlobalMap map[string]Index
}

// FindFunction returns the VM function with the given global name.
func (exec *Executable) FindFunction(name string) (Function, error) {
	index, ok := exec.GlobalMap[name]
	if !ok {
		return Function{}, errors.Errorf("function %s is not defined in the executable", name)
	}
	return exec.Functions[index], nil
}

// String representation of the executable.
func (exec *Executable) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Executable(functions=%d, constants=%d, packed_funcs=%d)\n",
		len(exec.Functions), len(exec.Constants), len(exec.PackedFuncs))
	names := maps.Keys(exec.GlobalMap)
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "  @%s -> %d\n", name, exec.GlobalMap[name])
	}
	for _, fn := range exec.Functions {
		sb.WriteString(fn.String())
	}
	return sb.String()
}
