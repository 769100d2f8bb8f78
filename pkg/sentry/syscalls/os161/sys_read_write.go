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
	"github.com/kippesp/os161/pkg/sentry/arch"
	"github.com/kippesp/os161/pkg/sentry/kernel"
	"github.com/kippesp/os161/pkg/sentry/mm"
)

// maxRWCount is the largest transfer a single read or write performs.
// Larger requests are short.
const maxRWCount = 1 << 20

// Read implements read(2).
func Read(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	d, err := t.FDTable().Get(t, fd)
	if err != nil {
		return 0, err
	}
	if !d.Readable() {
		return 0, linuxerr.EBADF
	}
	if size > maxRWCount {
		size = maxRWCount
	}
	buf := make([]byte, size)
	n, err := d.Read(t, buf)
	if err != nil {
		return 0, err
	}
	if err := t.AddressSpace().CopyOut(addr, buf[:n]); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Write implements write(2).
func Write(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	d, err := t.FDTable().Get(t, fd)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, nil
	}
	if size > maxRWCount {
		size = maxRWCount
	}
	buf := make([]byte, size)
	if err := t.AddressSpace().CopyIn(addr, buf); err != nil {
		return 0, err
	}
	n, err := d.Write(t, buf)
	return uint64(n), err
}

// Lseek implements lseek(2). The 64-bit position is passed in the a2:a3
// register pair and whence on the stack; the result is 64 bits wide.
func Lseek(t *kernel.Thread, tf *arch.TrapFrame, args arch.SyscallArguments) (uint64, error) {
	fd := args[0].Int()
	pos := arch.Int64Pair(args[2], args[3])
	whence, err := mm.CopyInUint32(t.AddressSpace(), tf.StackArg(0))
	if err != nil {
		return 0, err
	}
	switch whence {
	case os161.SEEK_SET, os161.SEEK_CUR, os161.SEEK_END:
	default:
		return 0, linuxerr.EINVAL
	}

	d, err := t.FDTable().Get(t, fd)
	if err != nil {
		return 0, err
	}
	off, err := d.Seek(t, pos, int32(whence))
	if err != nil {
		return 0, err
	}
	return uint64(off), nil
}
