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
	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/hostarch"
	"github.com/kippesp/os161/pkg/sentry/arch"
	"github.com/kippesp/os161/pkg/sentry/mm"
)

// wordSize is the size of a user pointer.
const wordSize = 4

// ArgvSize returns the number of bytes argv occupies on a new user stack:
// the strings, each NUL-terminated and padded to a word boundary, followed
// by argc+1 pointers.
func ArgvSize(argv []string) int {
	n := (len(argv) + 1) * wordSize
	for _, a := range argv {
		n += int(hostarch.AlignUp(uint32(len(a)+1), wordSize))
	}
	return n
}

// setupArgv copies argv onto the user stack below sp and returns the address
// of the argv pointer array, which is also the new stack pointer.
//
// The pointer array argv[0..argc], with argv[argc] NULL, starts at the
// returned address and is immediately followed by the strings in order.
func setupArgv(as mm.AddressSpace, sp hostarch.Addr, argv []string, maxBytes int) (hostarch.Addr, error) {
	size := ArgvSize(argv)
	if size > maxBytes || hostarch.Addr(size) > sp {
		return 0, linuxerr.E2BIG
	}
	base := sp - hostarch.Addr(size)
	buf := make([]byte, size)
	str := (len(argv) + 1) * wordSize
	for i, a := range argv {
		mm.ByteOrder.PutUint32(buf[i*wordSize:], uint32(base)+uint32(str))
		copy(buf[str:], a)
		str += int(hostarch.AlignUp(uint32(len(a)+1), wordSize))
	}
	if err := as.CopyOut(base, buf); err != nil {
		return 0, err
	}
	return base, nil
}

// loadProgram opens path relative to cwd and loads it into a new address
// space with argv on its stack. It returns the address space and the
// register state that enters the program.
func (k *Kernel) loadProgram(cwd, path string, argv []string) (mm.AddressSpace, *arch.TrapFrame, error) {
	v, err := k.vfs.Open(cwd, path, os161.O_RDONLY, 0)
	if err != nil {
		return nil, nil, err
	}
	as, err := k.addrs.NewAddressSpace()
	if err != nil {
		k.vfs.Close(v)
		return nil, nil, err
	}
	entry, err := as.Load(v)
	k.vfs.Close(v)
	if err != nil {
		as.Destroy()
		return nil, nil, err
	}
	sp, err := as.DefineStack()
	if err != nil {
		as.Destroy()
		return nil, nil, err
	}
	argvAddr, err := setupArgv(as, sp, argv, k.maxArgBytes)
	if err != nil {
		as.Destroy()
		return nil, nil, err
	}
	return as, arch.NewUserTrapFrame(entry, argvAddr, uint32(len(argv)), argvAddr), nil
}

// Exec replaces the program t's process runs with the program at path,
// started with argv. The old address space is destroyed only once the new
// one is complete, so on failure the caller's program continues unharmed.
// Exec does not return on success.
func (t *Thread) Exec(path string, argv []string) error {
	p := t.p
	as, tf, err := t.k.loadProgram(p.Cwd(t), path, argv)
	if err != nil {
		return err
	}
	if old := p.swapAddressSpace(as); old != nil {
		old.Destroy()
	}
	as.Activate()
	execCount.Increment()
	t.Debugf("Exec %q %q", path, argv)
	t.EnterUserMode(tf)
	panic("unreachable")
}
