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

package kernel

import (
	"fmt"

	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/sentry/arch"
)

// SyscallFn is a syscall implementation. It returns the value to store in
// the return registers or an error carrying an errno.
type SyscallFn func(t *Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error)

// Syscall includes the syscall implementation and related metadata.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation of the syscall.
	Fn SyscallFn

	// Wide is true if the result is 64 bits wide and returned in the
	// V0:V1 register pair.
	Wide bool
}

// MissingFn is a syscall to be called when an implementation is missing.
type MissingFn func(t *Thread, sysno uintptr, args arch.SyscallArguments) (uint64, error)

// SyscallTable is a lookup table of syscall implementations.
type SyscallTable struct {
	// Table is the collection of functions.
	Table map[uintptr]Syscall

	// Missing is the function to call when a syscall is not in Table. If
	// nil, missing syscalls fail with ENOSYS.
	Missing MissingFn
}

// syscallTable is the registered table. It is set once during init.
var syscallTable *SyscallTable

// RegisterSyscallTable registers the syscall table. It panics if a table was
// already registered.
func RegisterSyscallTable(s *SyscallTable) {
	if syscallTable != nil {
		panic("syscall table registered twice")
	}
	syscallTable = s
}

// Lookup returns the syscall registered under sysno.
func (s *SyscallTable) Lookup(sysno uintptr) (Syscall, bool) {
	sc, ok := s.Table[sysno]
	return sc, ok
}

// Syscall handles a syscall trap described by tf: it dispatches on the
// syscall number, stores the result or errno in tf and advances past the
// trapping instruction. _exit and a successful execv do not return.
func (t *Thread) Syscall(tf *arch.TrapFrame) {
	sysno := tf.SyscallNo()
	args := tf.SyscallArgs()
	var (
		rv   uint64
		err  error
		wide bool
	)
	switch sc, ok := lookupSyscall(sysno); {
	case ok:
		wide = sc.Wide
		rv, err = sc.Fn(t, tf, args)
	case syscallTable != nil && syscallTable.Missing != nil:
		rv, err = syscallTable.Missing(t, sysno, args)
	default:
		t.Debugf("Unknown syscall %d", sysno)
		err = linuxerr.ENOSYS
	}
	switch {
	case err != nil:
		tf.SetError(uint32(linuxerr.ErrnoOf(err)))
	case wide:
		tf.SetReturn64(rv)
	default:
		tf.SetReturn(uint32(rv))
	}
	tf.AdvancePC()
}

func lookupSyscall(sysno uintptr) (Syscall, bool) {
	if syscallTable == nil {
		return Syscall{}, false
	}
	return syscallTable.Lookup(sysno)
}

// SyscallName returns the registered name of sysno, for diagnostics.
func SyscallName(sysno uintptr) string {
	if sc, ok := lookupSyscall(sysno); ok {
		return sc.Name
	}
	return fmt.Sprintf("sys_%d", sysno)
}
