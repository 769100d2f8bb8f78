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

// Package mm provides user address spaces.
//
// An AddressSpace holds the user memory of one process. The kernel copies it
// on fork, replaces it on execv and destroys it when the process is reaped.
// Every transfer between kernel and user memory goes through CopyIn, CopyOut
// or CopyInString, which fail with EFAULT on any address that is not mapped
// with the required access.
package mm

import (
	"github.com/kippesp/os161/pkg/hostarch"
	"github.com/kippesp/os161/pkg/sentry/vfs"
)

// Default layout of a freshly loaded program.
const (
	// TextBase is where program images are loaded.
	TextBase hostarch.Addr = 0x00400000

	// StackPages is the number of pages reserved for the user stack.
	StackPages = 18

	// StackTop is the initial user stack pointer.
	StackTop = hostarch.UserSpaceEnd
)

// AddressSpace is the user memory of a process.
type AddressSpace interface {
	// Copy returns an independent copy of the address space.
	Copy() (AddressSpace, error)

	// Destroy releases the address space. It may not be used afterwards.
	Destroy()

	// Activate makes the address space current on the calling CPU.
	Activate()

	// DefineRegion maps length bytes at addr with the given access.
	DefineRegion(addr hostarch.Addr, length uint32, at hostarch.AccessType) error

	// DefineStack maps the user stack and returns the initial stack
	// pointer.
	DefineStack() (hostarch.Addr, error)

	// Load reads a program image from v into the address space and returns
	// its entry point.
	Load(v vfs.Vnode) (hostarch.Addr, error)

	// CopyIn copies len(dst) bytes from user address addr.
	CopyIn(addr hostarch.Addr, dst []byte) error

	// CopyOut copies src to user address addr.
	CopyOut(addr hostarch.Addr, src []byte) error

	// CopyInString copies in a NUL-terminated string of at most maxlen
	// bytes, terminator included. It fails with ENAMETOOLONG if no
	// terminator is found within maxlen bytes.
	CopyInString(addr hostarch.Addr, maxlen int) (string, error)
}

// Factory creates empty address spaces.
type Factory interface {
	NewAddressSpace() (AddressSpace, error)
}

// FactoryFunc adapts a function to a Factory.
type FactoryFunc func() (AddressSpace, error)

// NewAddressSpace implements Factory.NewAddressSpace.
func (f FactoryFunc) NewAddressSpace() (AddressSpace, error) {
	return f()
}
