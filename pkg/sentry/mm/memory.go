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

package mm

import (
	"encoding/binary"
	"fmt"

	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/hostarch"
	"github.com/kippesp/os161/pkg/sentry/vfs"
	"github.com/kippesp/os161/pkg/sync"
)

// page is one page of user memory.
type page struct {
	data [hostarch.PageSize]byte
	at   hostarch.AccessType
}

// MemoryAddressSpace is an AddressSpace backed by host memory.
type MemoryAddressSpace struct {
	// mu protects the fields below.
	mu        sync.Mutex
	pages     map[hostarch.Addr]*page
	image     []byte
	destroyed bool
	active    bool
}

var _ AddressSpace = (*MemoryAddressSpace)(nil)

// NewMemoryAddressSpace returns an empty address space.
func NewMemoryAddressSpace() (AddressSpace, error) {
	return &MemoryAddressSpace{pages: make(map[hostarch.Addr]*page)}, nil
}

// MemoryFactory creates MemoryAddressSpaces.
var MemoryFactory Factory = FactoryFunc(NewMemoryAddressSpace)

func (as *MemoryAddressSpace) checkLive() {
	if as.destroyed {
		panic(fmt.Sprintf("use of destroyed address space %p", as))
	}
}

// Copy implements AddressSpace.Copy.
func (as *MemoryAddressSpace) Copy() (AddressSpace, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.checkLive()
	n := &MemoryAddressSpace{
		pages: make(map[hostarch.Addr]*page, len(as.pages)),
		image: as.image,
	}
	for addr, p := range as.pages {
		cp := *p
		n.pages[addr] = &cp
	}
	return n, nil
}

// Destroy implements AddressSpace.Destroy.
func (as *MemoryAddressSpace) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.checkLive()
	as.destroyed = true
	as.pages = nil
	as.image = nil
}

// Destroyed returns true if Destroy has been called.
func (as *MemoryAddressSpace) Destroyed() bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.destroyed
}

// Activate implements AddressSpace.Activate.
func (as *MemoryAddressSpace) Activate() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.checkLive()
	as.active = true
}

// DefineRegion implements AddressSpace.DefineRegion.
func (as *MemoryAddressSpace) DefineRegion(addr hostarch.Addr, length uint32, at hostarch.AccessType) error {
	ar, ok := addr.ToRange(length)
	if !ok || !ar.IsUser() {
		return linuxerr.EFAULT
	}
	end, ok := ar.End.RoundUp()
	if !ok {
		return linuxerr.EFAULT
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	as.checkLive()
	for a := ar.Start.RoundDown(); a < end; a += hostarch.PageSize {
		if p, ok := as.pages[a]; ok {
			p.at = at
			continue
		}
		as.pages[a] = &page{at: at}
	}
	return nil
}

// DefineStack implements AddressSpace.DefineStack.
func (as *MemoryAddressSpace) DefineStack() (hostarch.Addr, error) {
	const size = StackPages * hostarch.PageSize
	if err := as.DefineRegion(StackTop-size, size, hostarch.ReadWrite); err != nil {
		return 0, err
	}
	return StackTop, nil
}

// Load implements AddressSpace.Load. The whole file is the text segment,
// mapped read-execute at TextBase; an empty file is not executable.
func (as *MemoryAddressSpace) Load(v vfs.Vnode) (hostarch.Addr, error) {
	st, err := v.Stat()
	if err != nil {
		return 0, err
	}
	if st.Dir || st.Size == 0 {
		return 0, linuxerr.ENOEXEC
	}
	image := make([]byte, st.Size)
	n, err := v.Read(image, 0)
	if err != nil {
		return 0, err
	}
	image = image[:n]
	if err := as.DefineRegion(TextBase, uint32(len(image)), hostarch.ReadWrite); err != nil {
		return 0, err
	}
	if err := as.CopyOut(TextBase, image); err != nil {
		return 0, err
	}
	if err := as.DefineRegion(TextBase, uint32(len(image)), hostarch.ReadExec); err != nil {
		return 0, err
	}
	as.mu.Lock()
	as.image = image
	as.mu.Unlock()
	return TextBase, nil
}

// Image returns the program image most recently loaded.
func (as *MemoryAddressSpace) Image() []byte {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.image
}

// forEachPage calls fn for each page-sized chunk of [addr, addr+length),
// failing with EFAULT if any page is unmapped or lacks the required access.
//
// Preconditions: as.mu is locked.
func (as *MemoryAddressSpace) forEachPage(addr hostarch.Addr, length int, write bool, fn func(p *page, off int, done int, n int)) error {
	as.checkLive()
	if length < 0 {
		return linuxerr.EFAULT
	}
	ar, ok := addr.ToRange(uint32(length))
	if !ok || !ar.IsUser() {
		return linuxerr.EFAULT
	}
	// Validate first so a faulting copy has no partial effect.
	for a := ar.Start.RoundDown(); a < ar.End; a += hostarch.PageSize {
		p, ok := as.pages[a]
		if !ok || (write && !p.at.Write) || (!write && !p.at.Read) {
			return linuxerr.EFAULT
		}
	}
	done := 0
	for done < length {
		cur := addr + hostarch.Addr(done)
		off := int(cur - cur.RoundDown())
		n := hostarch.PageSize - off
		if n > length-done {
			n = length - done
		}
		fn(as.pages[cur.RoundDown()], off, done, n)
		done += n
	}
	return nil
}

// CopyIn implements AddressSpace.CopyIn.
func (as *MemoryAddressSpace) CopyIn(addr hostarch.Addr, dst []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.forEachPage(addr, len(dst), false, func(p *page, off, done, n int) {
		copy(dst[done:done+n], p.data[off:off+n])
	})
}

// CopyOut implements AddressSpace.CopyOut.
func (as *MemoryAddressSpace) CopyOut(addr hostarch.Addr, src []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.forEachPage(addr, len(src), true, func(p *page, off, done, n int) {
		copy(p.data[off:off+n], src[done:done+n])
	})
}

// CopyInString implements AddressSpace.CopyInString.
func (as *MemoryAddressSpace) CopyInString(addr hostarch.Addr, maxlen int) (string, error) {
	var buf []byte
	b := make([]byte, 1)
	for i := 0; i < maxlen; i++ {
		if err := as.CopyIn(addr+hostarch.Addr(i), b); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", linuxerr.ENAMETOOLONG
}

// ByteOrder is the byte order of the emulated machine.
var ByteOrder = binary.BigEndian

// CopyInUint32 copies in one word.
func CopyInUint32(as AddressSpace, addr hostarch.Addr) (uint32, error) {
	var b [4]byte
	if err := as.CopyIn(addr, b[:]); err != nil {
		return 0, err
	}
	return ByteOrder.Uint32(b[:]), nil
}

// CopyOutUint32 copies out one word.
func CopyOutUint32(as AddressSpace, addr hostarch.Addr, v uint32) error {
	var b [4]byte
	ByteOrder.PutUint32(b[:], v)
	return as.CopyOut(addr, b[:])
}
