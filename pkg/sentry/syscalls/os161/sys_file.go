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
	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/hostarch"
	"github.com/kippesp/os161/pkg/sentry/arch"
	"github.com/kippesp/os161/pkg/sentry/kernel"
)

// copyInPath copies in a NUL-terminated path from user memory.
func copyInPath(t *kernel.Thread, addr hostarch.Addr) (string, error) {
	if addr == 0 {
		return "", linuxerr.EFAULT
	}
	return t.AddressSpace().CopyInString(addr, t.Kernel().MaxPathLength())
}

// Open implements open(2).
func Open(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	addr := args[0].Pointer()
	flags := args[1].Uint()
	mode := args[2].Uint()

	switch flags & os161.O_ACCMODE {
	case os161.O_RDONLY, os161.O_WRONLY, os161.O_RDWR:
	default:
		return 0, linuxerr.EINVAL
	}
	if flags&^os161.O_VALID != 0 {
		return 0, linuxerr.EINVAL
	}
	if flags&os161.O_ACCMODE == os161.O_RDONLY {
		flags &^= os161.O_APPEND | os161.O_TRUNC
	}

	path, err := copyInPath(t, addr)
	if err != nil {
		return 0, err
	}

	fdt := t.FDTable()
	fd, d, err := fdt.Allocate(t)
	if err != nil {
		return 0, err
	}
	fs := t.Kernel().VFS()
	v, err := fs.Open(t.Process().Cwd(t), path, flags, mode)
	if err != nil {
		fdt.Abandon(t, fd, d)
		return 0, err
	}
	var offset int64
	if flags&os161.O_APPEND != 0 {
		st, err := v.Stat()
		if err != nil {
			fs.Close(v)
			fdt.Abandon(t, fd, d)
			return 0, err
		}
		offset = st.Size
	}
	d.Install(t, v, flags, offset)
	return uint64(fd), nil
}

// Close implements close(2).
func Close(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	fd := args[0].Int()
	return 0, t.FDTable().Close(t, fd)
}

// Dup2 implements dup2(2).
func Dup2(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	oldfd := args[0].Int()
	newfd := args[1].Int()
	if err := t.FDTable().Dup2(t, oldfd, newfd); err != nil {
		return 0, err
	}
	return uint64(newfd), nil
}

// Chdir implements chdir(2).
func Chdir(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	path, err := copyInPath(t, args[0].Pointer())
	if err != nil {
		return 0, err
	}
	return 0, t.Process().Chdir(t, path)
}

// Getcwd implements __getcwd(2). The name is not NUL-terminated and is
// truncated to the buffer size; the number of bytes stored is returned.
func Getcwd(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	addr := args[0].Pointer()
	size := args[1].SizeT()
	if addr == 0 {
		return 0, linuxerr.EFAULT
	}
	name, err := t.Process().Getcwd(t)
	if err != nil {
		return 0, err
	}
	if uint32(len(name)) > size {
		name = name[:size]
	}
	if err := t.AddressSpace().CopyOut(addr, []byte(name)); err != nil {
		return 0, err
	}
	return uint64(len(name)), nil
}
