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

package os161

import (
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/hostarch"
	"github.com/kippesp/os161/pkg/sentry/arch"
	"github.com/kippesp/os161/pkg/sentry/kernel"
	"github.com/kippesp/os161/pkg/sentry/mm"
)

// Fork implements fork(2).
func Fork(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	pid, err := t.Fork(tf)
	if err != nil {
		return 0, err
	}
	return uint64(pid), nil
}

// Exit implements _exit(2).
func Exit(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	t.Exit(args[0].Int())
	panic("unreachable")
}

// Waitpid implements waitpid(2).
func Waitpid(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	pid := kernel.ThreadID(args[0].Int())
	addr := args[1].Pointer()
	options := args[2].Int()
	got, err := t.Wait(pid, addr, options)
	if err != nil {
		return 0, err
	}
	return uint64(got), nil
}

// Getpid implements getpid(2).
func Getpid(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	return uint64(t.Process().PID()), nil
}

// Getppid implements getppid(2).
func Getppid(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	return uint64(t.Process().PPID()), nil
}

// maxArgs bounds the number of execv arguments.
const maxArgs = 4096

// copyInArgv copies in a NULL-terminated array of string pointers. The
// strings, each counted with its NUL and padded to a word, together with
// the pointer array, may not exceed max bytes.
func copyInArgv(t *kernel.Thread, addr hostarch.Addr, max int) ([]string, error) {
	as := t.AddressSpace()
	var argv []string
	total := 0
	for {
		ptr, err := mm.CopyInUint32(as, addr+hostarch.Addr(4*len(argv)))
		if err != nil {
			return nil, err
		}
		if ptr == 0 {
			break
		}
		if len(argv) == maxArgs {
			return nil, linuxerr.E2BIG
		}
		remaining := max - total - 4*(len(argv)+2)
		if remaining <= 0 {
			return nil, linuxerr.E2BIG
		}
		s, err := as.CopyInString(hostarch.Addr(ptr), remaining)
		if linuxerr.Equals(linuxerr.ENAMETOOLONG, err) {
			return nil, linuxerr.E2BIG
		}
		if err != nil {
			return nil, err
		}
		total += int(hostarch.AlignUp(uint32(len(s)+1), 4))
		argv = append(argv, s)
	}
	if kernel.ArgvSize(argv) > max {
		return nil, linuxerr.E2BIG
	}
	return argv, nil
}

// Execv implements execv(2). It does not return on success.
func Execv(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	path, err := copyInPath(t, args[0].Pointer())
	if err != nil {
		return 0, err
	}
	argvAddr := args[1].Pointer()
	if argvAddr == 0 {
		return 0, linuxerr.EFAULT
	}
	argv, err := copyInArgv(t, argvAddr, t.Kernel().MaxArgBytes())
	if err != nil {
		return 0, err
	}
	return 0, t.Exec(path, argv)
}
