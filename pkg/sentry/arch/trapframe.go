// Copyright 2024 The gVisor Authors.
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

// Package arch provides the register state of a user thread and the syscall
// calling convention of the emulated MIPS machine.
package arch

import (
	"fmt"

	"github.com/mohae/deepcopy"

	"github.com/kippesp/os161/pkg/hostarch"
)

// InstructionSize is the size of one instruction. A syscall returns to the
// instruction after the one that trapped.
const InstructionSize = 4

// TrapFrame is the register state saved on entry to the kernel.
//
// Fields are exported so that the whole frame can be copied with deepcopy.
type TrapFrame struct {
	Vaddr  uint32 // coprocessor 0 vaddr register
	Status uint32 // coprocessor 0 status register
	Cause  uint32 // coprocessor 0 cause register
	Lo     uint32
	Hi     uint32
	RA     uint32 // return address
	AT     uint32 // assembler temporary
	V0     uint32 // return value / syscall number
	V1     uint32 // second return value
	A0     uint32
	A1     uint32
	A2     uint32
	A3     uint32 // fourth argument / error flag on return
	T0     uint32
	T1     uint32
	T2     uint32
	T3     uint32
	T4     uint32
	T5     uint32
	T6     uint32
	T7     uint32
	S0     uint32
	S1     uint32
	S2     uint32
	S3     uint32
	S4     uint32
	S5     uint32
	S6     uint32
	S7     uint32
	T8     uint32
	T9     uint32
	GP     uint32
	SP     uint32
	S8     uint32
	EPC    uint32 // address of the trapping instruction
}

// Fork returns an independent copy of tf.
func (tf *TrapFrame) Fork() *TrapFrame {
	return deepcopy.Copy(tf).(*TrapFrame)
}

// SyscallNo returns the syscall number of a trapping syscall instruction.
func (tf *TrapFrame) SyscallNo() uintptr {
	return uintptr(tf.V0)
}

// SyscallArgs returns the four register arguments of a syscall.
func (tf *TrapFrame) SyscallArgs() SyscallArguments {
	return SyscallArguments{
		{Value: uintptr(tf.A0)},
		{Value: uintptr(tf.A1)},
		{Value: uintptr(tf.A2)},
		{Value: uintptr(tf.A3)},
	}
}

// StackArg returns the address of the i'th argument passed on the stack.
// The first 16 bytes of the stack frame shadow A0-A3.
func (tf *TrapFrame) StackArg(i int) hostarch.Addr {
	return hostarch.Addr(tf.SP + 16 + 4*uint32(i))
}

// SetReturn stores a successful syscall result.
func (tf *TrapFrame) SetReturn(v uint32) {
	tf.V0 = v
	tf.A3 = 0
}

// SetReturn64 stores a successful 64-bit syscall result in the V0:V1 pair,
// high word first.
func (tf *TrapFrame) SetReturn64(v uint64) {
	tf.V0 = uint32(v >> 32)
	tf.V1 = uint32(v)
	tf.A3 = 0
}

// SetError stores a failed syscall's error number.
func (tf *TrapFrame) SetError(errno uint32) {
	tf.V0 = errno
	tf.A3 = 1
}

// AdvancePC moves past the trapping instruction.
func (tf *TrapFrame) AdvancePC() {
	tf.EPC += InstructionSize
}

// SetForkChild makes tf the register state of a newly forked child: fork
// returns 0 in the child, which resumes after the syscall instruction.
func (tf *TrapFrame) SetForkChild() {
	tf.SetReturn(0)
	tf.AdvancePC()
}

// NewUserTrapFrame returns the register state of a freshly loaded program
// about to enter main(argc, argv).
func NewUserTrapFrame(entry, stack hostarch.Addr, argc uint32, argv hostarch.Addr) *TrapFrame {
	return &TrapFrame{
		Status: StatusUserMode,
		EPC:    uint32(entry),
		SP:     uint32(stack),
		A0:     argc,
		A1:     uint32(argv),
	}
}

// StatusUserMode is the status register value for user mode with interrupts
// enabled.
const StatusUserMode = 0x0000ff0c

// String implements fmt.Stringer.
func (tf *TrapFrame) String() string {
	return fmt.Sprintf("epc=%#x sp=%#x v0=%#x v1=%#x a0=%#x a1=%#x a2=%#x a3=%#x",
		tf.EPC, tf.SP, tf.V0, tf.V1, tf.A0, tf.A1, tf.A2, tf.A3)
}
