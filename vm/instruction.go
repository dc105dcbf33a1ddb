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

// Package vm defines the register-machine instruction set and the
// executable image produced by the compiler.
package vm

import (
	"fmt"
	"strings"

	"github.com/gx-org/backend/dtype"
)

type (
	// RegName is a virtual register in a function activation frame.
	RegName = int

	// Index into one of the executable's dense tables.
	Index = int
)

// Opcode of an instruction. The opcode space is capped at 100 values.
type Opcode int

// MaxOpcode bounds the opcode space.
const MaxOpcode = 100

const (
	// OpMove copies a register. Reserved: the compiler does not emit it.
	OpMove Opcode = iota
	// OpRet returns the value held in a register.
	OpRet
	// OpInvoke calls a VM function by index.
	OpInvoke
	// OpInvokeClosure calls the closure held in a register.
	OpInvokeClosure
	// OpInvokePacked calls an external kernel with a flat tensor buffer.
	OpInvokePacked
	// OpAllocTensor allocates a tensor from a shape register.
	OpAllocTensor
	// OpAllocDatatype allocates a tagged datatype cell.
	OpAllocDatatype
	// OpAllocClosure allocates a closure over captured registers.
	OpAllocClosure
	// OpGetField projects a field out of a datatype cell.
	OpGetField
	// OpIf branches on a condition register with relative offsets.
	OpIf
	// OpGoto jumps by a relative offset.
	OpGoto
	// OpSelect picks one of two registers from a condition register.
	OpSelect
	// OpLoadConst loads an entry of the constant pool.
	OpLoadConst
)

// String returns the opcode mnemonic.
func (op Opcode) String() string {
	switch op {
	case OpMove:
		return "move"
	case OpRet:
		return "ret"
	case OpInvoke:
		return "invoke"
	case OpInvokeClosure:
		return "invoke_closure"
	case OpInvokePacked:
		return "invoke_packed"
	case OpAllocTensor:
		return "alloc_tensor"
	case OpAllocDatatype:
		return "alloc_data"
	case OpAllocClosure:
		return "alloc_closure"
	case OpGetField:
		return "get_field"
	case OpIf:
		return "if"
	case OpGoto:
		return "goto"
	case OpSelect:
		return "select"
	case OpLoadConst:
		return "load_const"
	default:
		return fmt.Sprintf("opcode(%d)", int(op))
	}
}

// Instruction of the register machine. Operand fields are populated
// according to the opcode; unused fields are zero.
type Instruction struct {
	Op  Opcode
	Dst RegName

	// Src is the source register of Move and GetField.
	Src RegName
	// ConstIndex is the constant pool entry of LoadConst.
	ConstIndex Index
	// ShapeReg holds the shape tensor of AllocTensor.
	ShapeReg RegName
	// DType is the element type of AllocTensor.
	DType dtype.DataType
	// Tag, NumFields, and FieldRegs describe the cell built by AllocDatatype.
	Tag       int
	NumFields int
	FieldRegs []RegName
	// NumCaptured is the size of the environment of AllocClosure.
	NumCaptured int
	// FieldIndex is the projected field of GetField.
	FieldIndex int
	// FuncIndex is the callee of Invoke and AllocClosure.
	FuncIndex Index
	// Args are the argument registers of Invoke, InvokeClosure, and the
	// captured registers of AllocClosure.
	Args []RegName
	// ClosureReg holds the callee of InvokeClosure.
	ClosureReg RegName
	// Cond, TrueOffset, FalseOffset drive If; Cond, TrueReg, FalseReg
	// drive Select.
	Cond        RegName
	TrueOffset  int
	FalseOffset int
	TrueReg     RegName
	FalseReg    RegName
	// PCOffset is the relative jump of Goto.
	PCOffset int
	// OpIndex, Arity, OutputCount, PackedArgs drive InvokePacked. The
	// last OutputCount entries of PackedArgs are the output tensors.
	OpIndex     Index
	Arity       int
	OutputCount int
	PackedArgs  []RegName
	// Result is the register returned by Ret.
	Result RegName
}

// Move returns an instruction copying src into dst.
func Move(src, dst RegName) Instruction {
	return Instruction{Op: OpMove, Src: src, Dst: dst}
}

// Ret returns an instruction returning the value in reg.
func Ret(reg RegName) Instruction {
	return Instruction{Op: OpRet, Result: reg}
}

// LoadConst returns an instruction loading a constant pool entry into dst.
func LoadConst(constIndex Index, dst RegName) Instruction {
	return Instruction{Op: OpLoadConst, ConstIndex: constIndex, Dst: dst}
}

// AllocTensor returns an instruction allocating a tensor whose shape is
// held in shapeReg.
func AllocTensor(shapeReg RegName, dt dtype.DataType, dst RegName) Instruction {
	return Instruction{Op: OpAllocTensor, ShapeReg: shapeReg, DType: dt, Dst: dst}
}

// AllocDatatype returns an instruction allocating a datatype cell with the
// given tag over numFields field registers.
func AllocDatatype(tag, numFields int, fields []RegName, dst RegName) Instruction {
	return Instruction{Op: OpAllocDatatype, Tag: tag, NumFields: numFields, FieldRegs: fields, Dst: dst}
}

// AllocClosure returns an instruction allocating a closure over
// numCaptured registers for the VM function funcIndex.
func AllocClosure(funcIndex Index, numCaptured int, captured []RegName, dst RegName) Instruction {
	return Instruction{Op: OpAllocClosure, FuncIndex: funcIndex, NumCaptured: numCaptured, Args: captured, Dst: dst}
}

// GetField returns an instruction projecting field index out of src.
func GetField(src RegName, index int, dst RegName) Instruction {
	return Instruction{Op: OpGetField, Src: src, FieldIndex: index, Dst: dst}
}

// If returns a conditional branch with relative offsets.
func If(cond RegName, trueOffset, falseOffset int) Instruction {
	return Instruction{Op: OpIf, Cond: cond, TrueOffset: trueOffset, FalseOffset: falseOffset}
}

// Goto returns a relative jump.
func Goto(pcOffset int) Instruction {
	return Instruction{Op: OpGoto, PCOffset: pcOffset}
}

// Select returns an instruction picking trueReg or falseReg into dst
// according to cond.
func Select(cond, trueReg, falseReg, dst RegName) Instruction {
	return Instruction{Op: OpSelect, Cond: cond, TrueReg: trueReg, FalseReg: falseReg, Dst: dst}
}

// Invoke returns a call to the VM function funcIndex.
func Invoke(funcIndex Index, args []RegName, dst RegName) Instruction {
	return Instruction{Op: OpInvoke, FuncIndex: funcIndex, Args: args, Dst: dst}
}

// InvokeClosure returns a call to the closure held in closureReg.
func InvokeClosure(closureReg RegName, args []RegName, dst RegName) Instruction {
	return Instruction{Op: OpInvokeClosure, ClosureReg: closureReg, Args: args, Dst: dst}
}

// InvokePacked returns a call to the external kernel opIndex. The argument
// registers list inputs first, then the outputCount pre-allocated outputs.
func InvokePacked(opIndex Index, arity, outputCount int, packedArgs []RegName) Instruction {
	return Instruction{
		Op:          OpInvokePacked,
		OpIndex:     opIndex,
		Arity:       arity,
		OutputCount: outputCount,
		PackedArgs:  packedArgs,
	}
}

// String representation of the instruction.
func (instr Instruction) String() string {
	switch instr.Op {
	case OpMove:
		return fmt.Sprintf("move $%d $%d", instr.Dst, instr.Src)
	case OpRet:
		return fmt.Sprintf("ret $%d", instr.Result)
	case OpInvoke:
		return fmt.Sprintf("invoke $%d VMFunc[%d](%s)", instr.Dst, instr.FuncIndex, regList(instr.Args))
	case OpInvokeClosure:
		return fmt.Sprintf("invoke_closure $%d $%d(%s)", instr.Dst, instr.ClosureReg, regList(instr.Args))
	case OpInvokePacked:
		return fmt.Sprintf("invoke_packed PackedFunc[%d](in: %s, out: %s)",
			instr.OpIndex,
			regList(instr.PackedArgs[:instr.Arity-instr.OutputCount]),
			regList(instr.PackedArgs[instr.Arity-instr.OutputCount:]))
	case OpAllocTensor:
		return fmt.Sprintf("alloc_tensor $%d $%d %s", instr.Dst, instr.ShapeReg, instr.DType.String())
	case OpAllocDatatype:
		return fmt.Sprintf("alloc_data $%d tag(%d)(%s)", instr.Dst, instr.Tag, regList(instr.FieldRegs))
	case OpAllocClosure:
		return fmt.Sprintf("alloc_closure $%d VMFunc[%d](%s)", instr.Dst, instr.FuncIndex, regList(instr.Args))
	case OpGetField:
		return fmt.Sprintf("get_field $%d $%d[%d]", instr.Dst, instr.Src, instr.FieldIndex)
	case OpIf:
		return fmt.Sprintf("if $%d %d %d", instr.Cond, instr.TrueOffset, instr.FalseOffset)
	case OpGoto:
		return fmt.Sprintf("goto %d", instr.PCOffset)
	case OpSelect:
		return fmt.Sprintf("select $%d $%d $%d $%d", instr.Dst, instr.Cond, instr.TrueReg, instr.FalseReg)
	case OpLoadConst:
		return fmt.Sprintf("load_const $%d Const[%d]", instr.Dst, instr.ConstIndex)
	default:
		return instr.Op.String()
	}
}

func regList(regs []RegName) string {
	ss := make([]string, len(regs))
	for i, r := range regs {
		ss[i] = fmt.Sprintf("$%d", r)
	}
	return strings.Join(ss, ", ")
}
