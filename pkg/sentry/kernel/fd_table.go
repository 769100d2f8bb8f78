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

	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/sentry/vfs"
	"github.com/kippesp/os161/pkg/sync"
)

// stdHandles is the number of handles reserved for stdin, stdout and stderr.
// Allocation never hands them out.
const stdHandles = os161.STDERR_FILENO + 1

// FDTable is a process's table of open file handles. Each occupied slot
// holds one reference on a FileDescription, which other slots and other
// tables may share.
//
// A table is private to its process. Descriptions returned by Get stay valid
// until the calling thread itself closes or replaces the handle.
type FDTable struct {
	fs vfs.VFS

	// mu serializes handle allocation and duplication. It is the owning
	// process's syscall lock.
	mu *sync.Lock

	// files is indexed by handle. It is protected by mu; its length is
	// immutable.
	files []*FileDescription
}

func newFDTable(fs vfs.VFS, mu *sync.Lock, size int) *FDTable {
	return &FDTable{
		fs:    fs,
		mu:    mu,
		files: make([]*FileDescription, size),
	}
}

// Size returns the capacity of the table.
func (f *FDTable) Size() int {
	return len(f.files)
}

func (f *FDTable) validFD(fd int32) bool {
	return fd >= 0 && int(fd) < len(f.files)
}

// Get returns the description at handle fd, or EBADF if fd is out of range
// or not open.
func (f *FDTable) Get(t *Thread, fd int32) (*FileDescription, error) {
	if !f.validFD(fd) {
		return nil, linuxerr.EBADF
	}
	f.mu.Acquire(t)
	defer f.mu.Release(t)
	d := f.files[fd]
	if d == nil {
		return nil, linuxerr.EBADF
	}
	return d, nil
}

// Count returns the number of open handles.
func (f *FDTable) Count(t *Thread) int {
	f.mu.Acquire(t)
	defer f.mu.Release(t)
	n := 0
	for _, d := range f.files {
		if d != nil {
			n++
		}
	}
	return n
}

// Allocate installs a new, unopened description at the lowest free handle
// above the standard handles. The description is returned locked by t with
// one reference; the caller either completes it with Install or gives the
// handle back with Abandon.
//
// Only the scan and installation run under the table lock.
func (f *FDTable) Allocate(t *Thread) (int32, *FileDescription, error) {
	f.mu.Acquire(t)
	defer f.mu.Release(t)
	for i := stdHandles; i < len(f.files); i++ {
		if f.files[i] != nil {
			continue
		}
		d := newFileDescription(f.fs)
		d.mu.Acquire(t)
		d.refs = 1
		f.files[i] = d
		return int32(i), d, nil
	}
	exhaustionLog.Warningf("%v: descriptor table full (%d handles)", t, len(f.files))
	return -1, nil, linuxerr.EMFILE
}

// Abandon releases a handle returned by Allocate whose open failed.
//
// Preconditions: d is the unopened description at fd and d.mu is held by t.
func (f *FDTable) Abandon(t *Thread, fd int32, d *FileDescription) {
	if d.vnode != nil {
		panic(fmt.Sprintf("abandon of open description at handle %d", fd))
	}
	d.decRefLocked(t)
	f.mu.Acquire(t)
	defer f.mu.Release(t)
	if f.files[fd] != d {
		panic(fmt.Sprintf("abandon of handle %d, which holds another description", fd))
	}
	f.files[fd] = nil
}

// newFDAt installs an open vnode at handle fd, which must be free. It is used
// to set up the standard handles.
func (f *FDTable) newFDAt(t *Thread, fd int32, v vfs.Vnode, flags uint32) {
	f.mu.Acquire(t)
	defer f.mu.Release(t)
	if f.files[fd] != nil {
		panic(fmt.Sprintf("handle %d already open", fd))
	}
	d := newFileDescription(f.fs)
	d.refs = 1
	d.vnode = v
	d.flags = flags
	f.files[fd] = d
}

// Close removes handle fd and drops its reference. The file itself is
// closed only once no other slot refers to it.
func (f *FDTable) Close(t *Thread, fd int32) error {
	if !f.validFD(fd) {
		return linuxerr.EBADF
	}
	f.mu.Acquire(t)
	defer f.mu.Release(t)
	d := f.files[fd]
	if d == nil {
		return linuxerr.EBADF
	}
	f.files[fd] = nil
	d.mu.Acquire(t)
	d.decRefLocked(t)
	return nil
}

// Dup2 makes handle dst refer to the description at src, first closing
// whatever dst referred to. It does nothing if src == dst.
//
// The whole operation runs under the table lock; at most one description
// lock is held at any time.
func (f *FDTable) Dup2(t *Thread, src, dst int32) error {
	if !f.validFD(src) || !f.validFD(dst) {
		return linuxerr.EBADF
	}
	f.mu.Acquire(t)
	defer f.mu.Release(t)
	d := f.files[src]
	if d == nil {
		return linuxerr.EBADF
	}
	if src == dst {
		return nil
	}
	if old := f.files[dst]; old != nil {
		f.files[dst] = nil
		old.mu.Acquire(t)
		old.decRefLocked(t)
	}
	d.mu.Acquire(t)
	d.incRefLocked()
	d.mu.Release(t)
	f.files[dst] = d
	return nil
}

// Fork returns a copy of f that shares every open description, with one new
// reference each. The copy is serialized by mu.
func (f *FDTable) Fork(t *Thread, mu *sync.Lock) *FDTable {
	f.mu.Acquire(t)
	defer f.mu.Release(t)
	clone := newFDTable(f.fs, mu, len(f.files))
	for i, d := range f.files {
		if d == nil {
			continue
		}
		d.mu.Acquire(t)
		d.incRefLocked()
		d.mu.Release(t)
		clone.files[i] = d
	}
	return clone
}

// RemoveAll closes every handle. Applied to a table returned by Fork, it
// restores every shared description's reference count. It is also how a
// reaped process's table is torn down.
func (f *FDTable) RemoveAll(t *Thread) {
	f.mu.Acquire(t)
	defer f.mu.Release(t)
	for i, d := range f.files {
		if d == nil {
			continue
		}
		f.files[i] = nil
		d.mu.Acquire(t)
		d.decRefLocked(t)
	}
}
