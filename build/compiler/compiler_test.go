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

package compiler_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"

	"github.com/gx-org/tensorvm/build/compiler"
	"github.com/gx-org/tensorvm/build/engine"
	"github.com/gx-org/tensorvm/build/ir"
	"github.com/gx-org/tensorvm/tensor"
	"github.com/gx-org/tensorvm/vm"
)

var f32 = ir.TensorOf(dtype.Float32, 4)

func newVar(name string) *ir.Var {
	return &ir.Var{Name: name, Typ: f32}
}

func constOf(vals ...float32) *ir.Constant {
	value, err := tensor.FromSlice(vals, []int{len(vals)})
	if err != nil {
		panic(err)
	}
	return &ir.Constant{Value: value}
}

// addPrimitive returns a primitive function of the given parameters.
func addPrimitive(params ...*ir.Var) *ir.Function {
	return &ir.Function{
		Params:    params,
		Body:      params[0],
		Primitive: true,
	}
}

type fakeRuntimeModule struct{}

func (fakeRuntimeModule) GetFunction(name string) (vm.PackedFunc, error) {
	return func(args ...*tensor.Tensor) error { return nil }, nil
}

// newRegistry returns a registry with a backend builder resolving every
// kernel to a no-op callable.
func newRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	reg := engine.NewRegistry()
	reg.Register(engine.BuildFuncName, func(funcs []engine.LoweredFunc, target engine.Target) (engine.RuntimeModule, error) {
		return fakeRuntimeModule{}, nil
	})
	return reg
}

func compile(t *testing.T, mod *ir.Module) *vm.Executable {
	t.Helper()
	exec, err := compiler.CompileModule(mod, compiler.WithRegistry(newRegistry(t)))
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	return exec
}

func checkInstructions(t *testing.T, fn vm.Function, want []vm.Instruction) {
	t.Helper()
	if diff := cmp.Diff(want, fn.Instructions); diff != "" {
		t.Errorf("instructions mismatch (-want +got):\n%s\n%s", diff, fn.String())
	}
	if len(fn.Instructions) == 0 || fn.Instructions[len(fn.Instructions)-1].Op != vm.OpRet {
		t.Errorf("function does not end with ret:\n%s", fn.String())
	}
}

// Identity function: one register, a single ret.
func TestCompileIdentity(t *testing.T) {
	x := newVar("x")
	mod := ir.NewModule()
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{Params: []*ir.Var{x}, Body: x})

	exec := compile(t, mod)
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	if fn.Arity != 1 || fn.NumRegisters != 1 {
		t.Errorf("got arity=%d registers=%d but want arity=1 registers=1", fn.Arity, fn.NumRegisters)
	}
	checkInstructions(t, fn, []vm.Instruction{vm.Ret(0)})
}

// A conditional emits both branches and selects between their registers.
func TestCompileIf(t *testing.T) {
	x := newVar("x")
	mod := ir.NewModule()
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{x},
		Body:   &ir.If{Cond: x, True: constOf(1), False: constOf(2)},
	})

	exec := compile(t, mod)
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	checkInstructions(t, fn, []vm.Instruction{
		vm.If(0, 1, 3),
		vm.LoadConst(0, 1),
		vm.Goto(2),
		vm.LoadConst(1, 2),
		vm.Select(0, 1, 2, 3),
		vm.Ret(3),
	})
	if len(exec.Constants) != 2 {
		t.Errorf("constant pool has %d entries but want 2", len(exec.Constants))
	}
}

// A tuple allocates a tag-0 datatype cell over the field registers.
func TestCompileTuple(t *testing.T) {
	a, b := newVar("a"), newVar("b")
	mod := ir.NewModule()
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{a, b},
		Body:   &ir.Tuple{Fields: []ir.Expr{a, b}},
	})

	exec := compile(t, mod)
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	checkInstructions(t, fn, []vm.Instruction{
		vm.AllocDatatype(0, 2, []vm.RegName{0, 1}, 2),
		vm.Ret(2),
	})
}

// A primitive call over a tuple parameter flattens its fields, allocates
// the output tensor, and invokes the packed kernel.
func TestCompilePrimitiveTupleParam(t *testing.T) {
	tupleType := &ir.TupleType{Fields: []ir.Type{f32, f32}}
	p := &ir.Var{Name: "p", Typ: tupleType}
	prim := addPrimitive(p)
	addGlobal := &ir.GlobalVar{Name: "add"}
	tup := &ir.Var{Name: "t", Typ: tupleType}
	mod := ir.NewModule()
	mod.Add(addGlobal, prim)
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{tup},
		Body:   &ir.Call{Op: addGlobal, Args: []ir.Expr{tup}, Typ: f32},
	})

	exec := compile(t, mod)
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	checkInstructions(t, fn, []vm.Instruction{
		vm.GetField(0, 0, 1),
		vm.GetField(0, 1, 2),
		vm.LoadConst(0, 3),
		vm.AllocTensor(3, dtype.Float32, 4),
		vm.InvokePacked(0, 3, 1, []vm.RegName{1, 2, 4}),
		vm.Ret(4),
	})
	// The pool holds the shape tensor of the result type.
	if len(exec.Constants) != 1 {
		t.Fatalf("constant pool has %d entries but want 1", len(exec.Constants))
	}
	dims, err := exec.Constants[0].Int64s()
	if err != nil {
		t.Fatalf("shape constant: %v", err)
	}
	if len(dims) != 1 || dims[0] != 4 {
		t.Errorf("shape constant is %v but want [4]", dims)
	}
	if len(exec.PackedFuncs) != 1 {
		t.Errorf("executable has %d packed funcs but want 1", len(exec.PackedFuncs))
	}
}

// A primitive returning a tuple pre-allocates one output per field and
// re-aggregates the outputs into a datatype cell.
func TestCompilePrimitiveTupleReturn(t *testing.T) {
	retType := &ir.TupleType{Fields: []ir.Type{f32, f32}}
	px, py := newVar("px"), newVar("py")
	prim := &ir.Function{
		Params:    []*ir.Var{px, py},
		Body:      &ir.Tuple{Fields: []ir.Expr{px, py}},
		Primitive: true,
	}
	divmod := &ir.GlobalVar{Name: "divmod"}
	a, b := newVar("a"), newVar("b")
	mod := ir.NewModule()
	mod.Add(divmod, prim)
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{a, b},
		Body:   &ir.Call{Op: divmod, Args: []ir.Expr{a, b}, Typ: retType},
	})

	exec := compile(t, mod)
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	checkInstructions(t, fn, []vm.Instruction{
		vm.LoadConst(0, 2),
		vm.AllocTensor(2, dtype.Float32, 3),
		vm.LoadConst(0, 4),
		vm.AllocTensor(4, dtype.Float32, 5),
		vm.InvokePacked(0, 4, 2, []vm.RegName{0, 1, 3, 5}),
		vm.AllocDatatype(0, 2, []vm.RegName{3, 5}, 6),
		vm.Ret(6),
	})
}

// A nested function capturing a variable compiles to a closure-shaped VM
// function: inner parameters first, captured parameters last.
func TestCompileClosure(t *testing.T) {
	px, py := newVar("px"), newVar("py")
	prim := addPrimitive(px, py)
	addGlobal := &ir.GlobalVar{Name: "add"}
	c, x := newVar("c"), newVar("x")
	mod := ir.NewModule()
	mod.Add(addGlobal, prim)
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{c},
		Body: &ir.Function{
			Params: []*ir.Var{x},
			Body:   &ir.Call{Op: addGlobal, Args: []ir.Expr{x, c}, Typ: f32},
		},
	})

	exec := compile(t, mod)

	// The lifted global captures c: at the use site f allocates a
	// closure over its c register instead of invoking.
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	liftedIndex := exec.GlobalMap["lifted_0"]
	checkInstructions(t, fn, []vm.Instruction{
		vm.AllocClosure(liftedIndex, 1, []vm.RegName{0}, 1),
		vm.Ret(1),
	})

	lifted, err := exec.FindFunction("lifted_0")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	// Arity counts call arguments and captured variables.
	if lifted.Arity != 2 {
		t.Errorf("closure arity is %d but want 2", lifted.Arity)
	}
	// Register layout is x then c: the kernel consumes x from $0 and c
	// from $1.
	checkInstructions(t, lifted, []vm.Instruction{
		vm.LoadConst(0, 2),
		vm.AllocTensor(2, dtype.Float32, 3),
		vm.InvokePacked(0, 3, 1, []vm.RegName{0, 1, 3}),
		vm.Ret(3),
	})
}

// Calling a variable that holds a closure emits a closure invocation.
func TestCompileInvokeClosure(t *testing.T) {
	px, py := newVar("px"), newVar("py")
	prim := addPrimitive(px, py)
	addGlobal := &ir.GlobalVar{Name: "add"}
	c, x := newVar("c"), newVar("x")
	g := &ir.Var{Name: "g", Typ: &ir.FuncType{Params: []ir.Type{f32}, Ret: f32}}
	mod := ir.NewModule()
	mod.Add(addGlobal, prim)
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{c},
		Body: &ir.Let{
			Var: g,
			Value: &ir.Function{
				Params: []*ir.Var{x},
				Body:   &ir.Call{Op: addGlobal, Args: []ir.Expr{x, c}, Typ: f32},
			},
			Body: &ir.Call{Op: g, Args: []ir.Expr{c}, Typ: f32},
		},
	})

	exec := compile(t, mod)
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	liftedIndex := exec.GlobalMap["lifted_0"]
	checkInstructions(t, fn, []vm.Instruction{
		vm.AllocClosure(liftedIndex, 1, []vm.RegName{0}, 1),
		vm.InvokeClosure(1, []vm.RegName{0}, 2),
		vm.Ret(2),
	})
}

// A call to an ordinary global emits a direct invocation.
func TestCompileInvokeGlobal(t *testing.T) {
	x, y := newVar("x"), newVar("y")
	gGlobal := &ir.GlobalVar{Name: "g"}
	mod := ir.NewModule()
	mod.Add(gGlobal, &ir.Function{Params: []*ir.Var{y}, Body: y})
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{x},
		Body:   &ir.Call{Op: gGlobal, Args: []ir.Expr{x}, Typ: f32},
	})

	exec := compile(t, mod)
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	checkInstructions(t, fn, []vm.Instruction{
		vm.Invoke(exec.GlobalMap["g"], []vm.RegName{0}, 1),
		vm.Ret(1),
	})
}

// A constructor call allocates a cell carrying the constructor tag.
func TestCompileConstructor(t *testing.T) {
	cons := &ir.Constructor{Name: "Pair", Tag: 3, Arity: 2}
	a, b := newVar("a"), newVar("b")
	mod := ir.NewModule()
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{a, b},
		Body:   &ir.Call{Op: cons, Args: []ir.Expr{a, b}, Typ: nil},
	})

	exec := compile(t, mod)
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	checkInstructions(t, fn, []vm.Instruction{
		vm.AllocDatatype(3, 2, []vm.RegName{0, 1}, 2),
		vm.Ret(2),
	})
}

// Two calls to the same primitive intern one kernel handle.
func TestKernelInterning(t *testing.T) {
	px, py := newVar("px"), newVar("py")
	prim := addPrimitive(px, py)
	addGlobal := &ir.GlobalVar{Name: "add"}
	a, b := newVar("a"), newVar("b")
	mod := ir.NewModule()
	mod.Add(addGlobal, prim)
	inner := &ir.Call{Op: addGlobal, Args: []ir.Expr{a, b}, Typ: f32}
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{a, b},
		Body:   &ir.Call{Op: addGlobal, Args: []ir.Expr{inner, b}, Typ: f32},
	})

	exec := compile(t, mod)
	if len(exec.PackedFuncs) != 1 {
		t.Fatalf("executable has %d packed funcs but want 1: identical kernels must share an index", len(exec.PackedFuncs))
	}
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	for _, instr := range fn.Instructions {
		if instr.Op == vm.OpInvokePacked && instr.OpIndex != 0 {
			t.Errorf("packed call uses op index %d but want 0:\n%s", instr.OpIndex, fn.String())
		}
	}
}

// Structurally equal constants share one pool index.
func TestConstantPoolUniqueness(t *testing.T) {
	x := newVar("x")
	mod := ir.NewModule()
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{x},
		Body:   &ir.Tuple{Fields: []ir.Expr{constOf(1, 2), constOf(1, 2), constOf(3)}},
	})

	exec := compile(t, mod)
	if len(exec.Constants) != 2 {
		t.Fatalf("constant pool has %d entries but want 2", len(exec.Constants))
	}
	fn, err := exec.FindFunction("f")
	if err != nil {
		t.Fatalf("FindFunction: %v", err)
	}
	checkInstructions(t, fn, []vm.Instruction{
		vm.LoadConst(0, 1),
		vm.LoadConst(0, 2),
		vm.LoadConst(1, 3),
		vm.AllocDatatype(0, 3, []vm.RegName{1, 2, 3}, 4),
		vm.Ret(4),
	})
}

func TestRegisterDensity(t *testing.T) {
	px, py := newVar("px"), newVar("py")
	prim := addPrimitive(px, py)
	addGlobal := &ir.GlobalVar{Name: "add"}
	a, b := newVar("a"), newVar("b")
	mod := ir.NewModule()
	mod.Add(addGlobal, prim)
	inner := &ir.Call{Op: addGlobal, Args: []ir.Expr{a, b}, Typ: f32}
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{a, b},
		Body:   &ir.If{Cond: a, True: inner, False: b},
	})

	exec := compile(t, mod)
	for _, fn := range exec.Functions {
		written := make(map[vm.RegName]bool)
		for r := 0; r < fn.Arity; r++ {
			written[r] = true
		}
		for _, instr := range fn.Instructions {
			switch instr.Op {
			case vm.OpLoadConst, vm.OpAllocTensor, vm.OpAllocDatatype,
				vm.OpAllocClosure, vm.OpGetField, vm.OpSelect,
				vm.OpInvoke, vm.OpInvokeClosure, vm.OpMove:
				written[instr.Dst] = true
			}
		}
		for r := 0; r < fn.NumRegisters; r++ {
			if !written[r] {
				t.Errorf("%s: register $%d is allocated but never written:\n%s", fn.Name, r, fn.String())
			}
		}
	}
}

func TestCompileErrors(t *testing.T) {
	x := newVar("x")
	gGlobal := &ir.GlobalVar{Name: "g"}
	tests := []struct {
		name string
		body ir.Expr
		want error
	}{
		{
			name: "match",
			body: &ir.Match{Subject: x, Typ: f32},
			want: compiler.ErrUnsupported,
		},
		{
			name: "global in value position",
			body: &ir.Tuple{Fields: []ir.Expr{gGlobal, x}},
			want: compiler.ErrUnsupported,
		},
		{
			name: "unbound variable",
			body: newVar("y"),
			want: compiler.ErrUnboundVar,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			y := newVar("y")
			mod := ir.NewModule()
			mod.Add(gGlobal, &ir.Function{Params: []*ir.Var{y}, Body: y})
			mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{Params: []*ir.Var{x}, Body: test.body})
			_, err := compiler.CompileModule(mod, compiler.WithRegistry(newRegistry(t)))
			if err == nil {
				t.Fatalf("CompileModule succeeded but want %v", test.want)
			}
			if !errors.Is(err, test.want) {
				t.Errorf("CompileModule failed with %v but want %v", err, test.want)
			}
		})
	}
}

// The backend builder is only required when kernels were lowered.
func TestMissingBuilder(t *testing.T) {
	px, py := newVar("px"), newVar("py")
	prim := addPrimitive(px, py)
	addGlobal := &ir.GlobalVar{Name: "add"}
	a, b := newVar("a"), newVar("b")
	mod := ir.NewModule()
	mod.Add(addGlobal, prim)
	mod.Add(&ir.GlobalVar{Name: "f"}, &ir.Function{
		Params: []*ir.Var{a, b},
		Body:   &ir.Call{Op: addGlobal, Args: []ir.Expr{a, b}, Typ: f32},
	})
	_, err := compiler.CompileModule(mod, compiler.WithRegistry(engine.NewRegistry()))
	if err == nil {
		t.Fatalf("CompileModule succeeded without a registered builder")
	}
	if !errors.Is(err, compiler.ErrLowering) {
		t.Errorf("CompileModule failed with %v but want %v", err, compiler.ErrLowering)
	}

	// A module with no primitive calls does not need a builder.
	x := newVar("x")
	pure := ir.NewModule()
	pure.Add(&ir.GlobalVar{Name: "id"}, &ir.Function{Params: []*ir.Var{x}, Body: x})
	if _, err := compiler.CompileModule(pure, compiler.WithRegistry(engine.NewRegistry())); err != nil {
		t.Errorf("CompileModule: %v", err)
	}
}

func TestIsClosure(t *testing.T) {
	x, c := newVar("x"), newVar("c")
	plain := &ir.Function{Params: []*ir.Var{x}, Body: x}
	shaped := &ir.Function{
		Params: []*ir.Var{c},
		Body:   &ir.Function{Params: []*ir.Var{x}, Body: x},
	}
	if compiler.IsClosure(plain) {
		t.Errorf("IsClosure reports a plain function as a closure")
	}
	if !compiler.IsClosure(shaped) {
		t.Errorf("IsClosure misses a closure-shaped function")
	}
}
