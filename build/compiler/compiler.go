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

// Package compiler lowers a normalized tensor-program module into
// register-machine bytecode.
//
// The module compiler normalizes the source, lays out the constant pool,
// assigns dense global indices, then emits one VM function per global.
// Primitive functions are handed to an external compile engine and called
// through the packed convention: flat tensor inputs first, pre-allocated
// outputs last.
package compiler

import (
	"github.com/pkg/errors"
	"github.com/gx-org/tensorvm/build/engine"
	"github.com/gx-org/tensorvm/build/ir"
	"github.com/gx-org/tensorvm/build/transform"
	"github.com/gx-org/tensorvm/vm"
)

// funcCompiler emits the instruction stream of one VM function.
type funcCompiler struct {
	ctx          *context
	instructions []vm.Instruction
	varReg       map[*ir.Var]vm.RegName
	lastRegister vm.RegName
	numRegisters int
}

func newFuncCompiler(ctx *context) *funcCompiler {
	return &funcCompiler{
		ctx:    ctx,
		varReg: make(map[*ir.Var]vm.RegName),
	}
}

// newRegister allocates the next register. Registers are dense and never
// reused within a function.
func (c *funcCompiler) newRegister() vm.RegName {
	reg := c.numRegisters
	c.numRegisters++
	return reg
}

// emit appends an instruction and tracks the register holding the value
// of the last emitted expression.
func (c *funcCompiler) emit(instr vm.Instruction) error {
	if instr.Op < 0 || int(instr.Op) >= vm.MaxOpcode {
		return errors.Wrapf(ErrBadOpcode, "opcode %d", int(instr.Op))
	}
	switch instr.Op {
	case vm.OpAllocDatatype, vm.OpAllocTensor, vm.OpGetField, vm.OpLoadConst,
		vm.OpSelect, vm.OpInvoke, vm.OpAllocClosure, vm.OpMove, vm.OpInvokeClosure:
		c.lastRegister = instr.Dst
	case vm.OpInvokePacked:
		c.lastRegister = instr.PackedArgs[instr.Arity-1]
	case vm.OpIf, vm.OpRet, vm.OpGoto:
	}
	c.instructions = append(c.instructions, instr)
	return nil
}

// compile lays out the parameter registers and emits the body.
// For a closure-shaped function the inner parameters take the first
// registers and the captured outer parameters follow, matching the VM
// invocation convention of arguments first, then environment.
func (c *funcCompiler) compile(fn *ir.Function) error {
	if IsClosure(fn) {
		inner := fn.Body.(*ir.Function)
		for _, param := range inner.Params {
			c.varReg[param] = c.newRegister()
		}
		for _, param := range fn.Params {
			c.varReg[param] = c.newRegister()
		}
		return c.compileExpr(inner.Body)
	}
	for _, param := range fn.Params {
		c.varReg[param] = c.newRegister()
	}
	return c.compileExpr(fn.Body)
}

func (c *funcCompiler) compileExpr(e ir.Expr) error {
	switch eT := e.(type) {
	case *ir.Constant:
		index, err := c.ctx.constIndex(eT)
		if err != nil {
			return err
		}
		return c.emit(vm.LoadConst(index, c.newRegister()))
	case *ir.Var:
		reg, ok := c.varReg[eT]
		if !ok {
			return errors.Wrapf(ErrUnboundVar, "%s", eT.Name)
		}
		c.lastRegister = reg
		return nil
	case *ir.Tuple:
		fieldRegs := make([]vm.RegName, 0, len(eT.Fields))
		for _, field := range eT.Fields {
			if err := c.compileExpr(field); err != nil {
				return err
			}
			fieldRegs = append(fieldRegs, c.lastRegister)
		}
		return c.emit(vm.AllocDatatype(0, len(eT.Fields), fieldRegs, c.newRegister()))
	case *ir.TupleGetItem:
		if err := c.compileExpr(eT.Tuple); err != nil {
			return err
		}
		return c.emit(vm.GetField(c.lastRegister, eT.Index, c.newRegister()))
	case *ir.Let:
		if err := c.compileExpr(eT.Value); err != nil {
			return err
		}
		c.varReg[eT.Var] = c.lastRegister
		return c.compileExpr(eT.Body)
	case *ir.If:
		return c.compileIf(eT)
	case *ir.Call:
		return c.compileCall(eT)
	case *ir.Function:
		if !eT.Primitive {
			return errors.Wrapf(ErrUnsupported,
				"local function should have been removed by lambda lifting: %s", ir.ExprString(eT))
		}
		return nil
	case *ir.GlobalVar:
		return errors.Wrapf(ErrUnsupported, "loading global %s into a register", ir.ExprString(eT))
	case *ir.Constructor:
		return errors.Wrapf(ErrUnsupported, "constructor %s outside call position", ir.ExprString(eT))
	case *ir.Match:
		return errors.Wrapf(ErrUnsupported, "%s", ir.ExprString(eT))
	default:
		return errors.Wrapf(ErrUnsupported, "%s: unknown node %T", ir.ExprString(e), e)
	}
}

// compileIf emits both branches unconditionally and a value-level select
// between their result registers. The branch offsets are patched once the
// branch lengths are known.
func (c *funcCompiler) compileIf(e *ir.If) error {
	if err := c.compileExpr(e.Cond); err != nil {
		return err
	}
	condReg := c.lastRegister

	afterCond := len(c.instructions)
	if err := c.emit(vm.If(condReg, 0, 0)); err != nil {
		return err
	}
	if err := c.compileExpr(e.True); err != nil {
		return err
	}
	trueReg := c.lastRegister
	if err := c.emit(vm.Goto(0)); err != nil {
		return err
	}
	afterTrue := len(c.instructions)

	if err := c.compileExpr(e.False); err != nil {
		return err
	}
	falseReg := c.lastRegister
	afterFalse := len(c.instructions)

	c.instructions[afterCond].TrueOffset = 1
	c.instructions[afterCond].FalseOffset = afterTrue - afterCond
	c.instructions[afterTrue-1].PCOffset = (afterFalse - afterTrue) + 1

	return c.emit(vm.Select(condReg, trueReg, falseReg, c.newRegister()))
}

func (c *funcCompiler) compileCall(call *ir.Call) error {
	argRegs := make([]vm.RegName, 0, len(call.Args))
	for _, arg := range call.Args {
		if err := c.compileExpr(arg); err != nil {
			return err
		}
		argRegs = append(argRegs, c.lastRegister)
	}
	switch op := call.Op.(type) {
	case *ir.Function:
		if !op.Primitive {
			return errors.Wrapf(ErrUnsupported, "calling non-primitive function %s", ir.ExprString(op))
		}
		return c.invokePrimitive(op, argRegs, call.Typ)
	case *ir.GlobalVar:
		index, ok := c.ctx.globalMap.IndexOf(op)
		if !ok {
			return errors.Wrapf(ErrMissingGlobal, "%s", op.Name)
		}
		fn, err := c.ctx.module.Lookup(op)
		if err != nil {
			return errors.Wrapf(ErrMissingGlobal, "%v", err)
		}
		if IsClosure(fn) {
			return c.emit(vm.AllocClosure(index, len(fn.Params), argRegs, c.newRegister()))
		}
		return c.emit(vm.Invoke(index, argRegs, c.newRegister()))
	case *ir.Constructor:
		tag := c.ctx.registerConstructor(op)
		return c.emit(vm.AllocDatatype(tag, len(call.Args), argRegs, c.newRegister()))
	case *ir.Var:
		if err := c.compileExpr(op); err != nil {
			return err
		}
		return c.emit(vm.InvokeClosure(c.lastRegister, argRegs, c.newRegister()))
	default:
		return errors.Wrapf(ErrUnsupported, "cannot call %s", ir.ExprString(call.Op))
	}
}

// allocTensorFromType loads the precomputed shape of a tensor type and
// returns the allocation writing into a fresh register. The caller emits
// the allocation right after the load, so every output tensor is a
// load_const, alloc_tensor pair.
func (c *funcCompiler) allocTensorFromType(tt *ir.TensorType) (vm.Instruction, error) {
	index, err := c.ctx.shapeIndex(tt)
	if err != nil {
		return vm.Instruction{}, err
	}
	if err := c.emit(vm.LoadConst(index, c.newRegister())); err != nil {
		return vm.Instruction{}, err
	}
	return vm.AllocTensor(c.lastRegister, tt.DType(), c.newRegister()), nil
}

// invokePrimitive emits the packed call of a primitive kernel: inputs are
// flattened tensor registers, outputs are allocated by the caller and
// appended after the inputs, and a tuple return is re-aggregated into a
// datatype cell.
func (c *funcCompiler) invokePrimitive(fn *ir.Function, argRegs []vm.RegName, retType ir.Type) error {
	if len(fn.Params) != len(argRegs) {
		return errors.Errorf("primitive %s takes %d parameters but is called with %d arguments",
			ir.ExprString(fn), len(fn.Params), len(argRegs))
	}

	var packedArgs []vm.RegName
	arity := 0
	for i, param := range fn.Params {
		switch ty := param.Typ.(type) {
		case *ir.TensorType:
			packedArgs = append(packedArgs, argRegs[i])
			arity++
		case *ir.TupleType:
			for f, field := range ty.Fields {
				if _, ok := field.(*ir.TensorType); !ok {
					return errors.Wrapf(ErrUnsupported,
						"only flat tuples of tensors cross the kernel boundary, found %s", field.String())
				}
				dst := c.newRegister()
				if err := c.emit(vm.GetField(argRegs[i], f, dst)); err != nil {
					return err
				}
				packedArgs = append(packedArgs, dst)
			}
			arity += len(ty.Fields)
		default:
			return errors.Wrapf(ErrUnsupported, "parameter type %v at a kernel boundary", param.Typ)
		}
	}

	var outputs []vm.RegName
	outputCount := 0
	switch ty := retType.(type) {
	case *ir.TensorType:
		alloc, err := c.allocTensorFromType(ty)
		if err != nil {
			return err
		}
		if err := c.emit(alloc); err != nil {
			return err
		}
		outputs = append(outputs, alloc.Dst)
		outputCount = 1
	case *ir.TupleType:
		for _, field := range ty.Fields {
			tt, ok := field.(*ir.TensorType)
			if !ok {
				return errors.Wrapf(ErrUnsupported,
					"only flat tuples of tensors cross the kernel boundary, found %s", field.String())
			}
			alloc, err := c.allocTensorFromType(tt)
			if err != nil {
				return err
			}
			if err := c.emit(alloc); err != nil {
				return err
			}
			outputs = append(outputs, alloc.Dst)
		}
		outputCount = len(ty.Fields)
	default:
		return errors.Wrapf(ErrUnsupported, "return type %v at a kernel boundary", retType)
	}

	arity += outputCount
	packedArgs = append(packedArgs, outputs...)

	opIndex, err := c.ctx.lowerPrimitive(fn)
	if err != nil {
		return err
	}
	if err := c.emit(vm.InvokePacked(opIndex, arity, outputCount, packedArgs)); err != nil {
		return err
	}

	if outputCount > 1 {
		// Downstream code consumes the return as one value.
		fieldRegs := append([]vm.RegName{}, packedArgs[arity-outputCount:]...)
		return c.emit(vm.AllocDatatype(0, outputCount, fieldRegs, c.newRegister()))
	}
	return nil
}

// compileFunc compiles one global into a VM function record.
func compileFunc(ctx *context, gv *ir.GlobalVar, fn *ir.Function) (vm.Function, error) {
	c := newFuncCompiler(ctx)
	if err := c.compile(fn); err != nil {
		return vm.Function{}, err
	}
	// The function returns its last evaluated expression.
	if err := c.emit(vm.Ret(c.lastRegister)); err != nil {
		return vm.Function{}, err
	}
	arity := len(fn.Params)
	if IsClosure(fn) {
		arity += len(fn.Body.(*ir.Function).Params)
	}
	return vm.Function{
		Name:         gv.Name,
		Arity:        arity,
		Instructions: c.instructions,
		NumRegisters: c.numRegisters,
	}, nil
}

type options struct {
	target   engine.Target
	engine   engine.Engine
	registry *engine.Registry
}

// Option configures a module compilation.
type Option func(*options)

// WithTarget selects the kernel backend to lower primitives for.
func WithTarget(target engine.Target) Option {
	return func(o *options) { o.target = target }
}

// WithEngine selects the compile engine lowering primitive functions.
// The default is a fresh engine.Simple.
func WithEngine(eng engine.Engine) Option {
	return func(o *options) { o.engine = eng }
}

// WithRegistry selects the registry the backend builder is discovered
// in. The default is the process-wide registry.
func WithRegistry(reg *engine.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// CompileModule lowers a module into an executable VM image.
func CompileModule(mod *ir.Module, opts ...Option) (*vm.Executable, error) {
	o := &options{
		target:   engine.DefaultTarget,
		registry: engine.Global(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		o.engine = engine.NewSimple()
	}

	mod, err := transform.Normalize(mod)
	if err != nil {
		return nil, err
	}
	ctx := newContext(mod, o)

	// Globals take their function index from the module order.
	for gv, fn := range mod.Funcs() {
		ctx.globalMap.Store(gv, fn)
	}

	if ctx.pool, err = layoutConstantPool(mod); err != nil {
		return nil, err
	}

	funcs := make([]vm.Function, mod.Size())
	for gv, fn := range mod.Funcs() {
		vmFn, err := compileFunc(ctx, gv, fn)
		if err != nil {
			ctx.errs.Append(errors.Wrapf(err, "cannot compile %s", gv.Name))
			continue
		}
		index, _ := ctx.globalMap.IndexOf(gv)
		funcs[index] = vmFn
	}
	if err := ctx.errs.ToError(); err != nil {
		return nil, err
	}

	packedFuncs, err := populatePackedFuncs(ctx)
	if err != nil {
		return nil, err
	}

	globalMap := make(map[string]vm.Index, ctx.globalMap.Size())
	for gv := range ctx.globalMap.Iter() {
		index, _ := ctx.globalMap.IndexOf(gv)
		globalMap[gv.Name] = index
	}
	return &vm.Executable{
		Functions:   funcs,
		Constants:   ctx.pool.tensors(),
		PackedFuncs: packedFuncs,
		GlobalMap:   globalMap,
	}, nil
}

// populatePackedFuncs builds the lowered kernels with the registered
// backend builder and resolves each by name.
func populatePackedFuncs(ctx *context) ([]vm.PackedFunc, error) {
	if len(ctx.loweredFuncs) == 0 {
		return nil, nil
	}
	build, err := ctx.registry.Lookup(engine.BuildFuncName)
	if err != nil {
		return nil, errors.Wrapf(ErrLowering, "%v", err)
	}
	runtimeMod, err := build(ctx.loweredFuncs, ctx.target)
	if err != nil {
		return nil, errors.Wrapf(ErrLowering, "cannot build kernels for target %s: %v", ctx.target, err)
	}
	packedFuncs := make([]vm.PackedFunc, len(ctx.loweredFuncs))
	for i, lowered := range ctx.loweredFuncs {
		if packedFuncs[i], err = runtimeMod.GetFunction(lowered.Name()); err != nil {
			return nil, errors.Wrapf(ErrLowering, "cannot resolve kernel %s: %v", lowered.Name(), err)
		}
	}
	return packedFuncs, nil
}
