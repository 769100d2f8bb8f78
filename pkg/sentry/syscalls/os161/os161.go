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

// Package os161 provides syscall tables for the kernel's user ABI.
package os161

import (
	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/log"
	"github.com/kippesp/os161/pkg/metric"
	"github.com/kippesp/os161/pkg/sentry/arch"
	"github.com/kippesp/os161/pkg/sentry/kernel"
)

var unimplementedSyscalls = metric.MustCreateNewUint64Metric("/syscalls/unimplemented", "Number of calls to syscalls the kernel does not implement.")

// MIPS is the syscall table of the emulated machine.
var MIPS = &kernel.SyscallTable{
	Table: map[uintptr]kernel.Syscall{
		os161.SYS_fork:     {Name: "fork", Fn: Fork},
		os161.SYS_execv:    {Name: "execv", Fn: Execv},
		os161.SYS__exit:    {Name: "_exit", Fn: Exit},
		os161.SYS_waitpid:  {Name: "waitpid", Fn: Waitpid},
		os161.SYS_getpid:   {Name: "getpid", Fn: Getpid},
		os161.SYS_getppid:  {Name: "getppid", Fn: Getppid},
		os161.SYS_open:     {Name: "open", Fn: Open},
		os161.SYS_dup2:     {Name: "dup2", Fn: Dup2},
		os161.SYS_close:    {Name: "close", Fn: Close},
		os161.SYS_read:     {Name: "read", Fn: Read},
		os161.SYS_write:    {Name: "write", Fn: Write},
		os161.SYS_lseek:    {Name: "lseek", Fn: Lseek, Wide: true},
		os161.SYS_chdir:    {Name: "chdir", Fn: Chdir},
		os161.SYS___getcwd: {Name: "__getcwd", Fn: Getcwd},
	},
	Missing: func(t *kernel.Thread, sysno uintptr, args arch.SyscallArguments) (uint64, error) {
		unimplementedSyscalls.Increment()
		if log.IsLogging(log.Debug) {
			t.Debugf("Unsupported syscall %d, args %+v", sysno, args)
		}
		return 0, linuxerr.ENOSYS
	},
}

func init() {
	kernel.RegisterSyscallTable(MIPS)
}
