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
	"github.com/kippesp/os161/pkg/refs"
	"github.com/kippesp/os161/pkg/sentry/vfs"
	"github.com/kippesp/os161/pkg/sync"
)

// FileDescription is an open file shared by every descriptor table slot
// that refers to it. Slots gain references through dup2 and fork.
//
// A FileDescription is destroyed when its last reference is dropped, which
// closes the underlying vnode.
type FileDescription struct {
	fs vfs.VFS

	// mu protects the fields below. mu is a sleeping lock: it is held across
	// vnode I/O.
	mu *sync.Lock

	// refs is the number of descriptor table slots referring to this
	// description. It is 0 only between creation and installation.
	refs int64

	// vnode is the open file. It is nil until the description is
	// installed with an open file.
	vnode vfs.Vnode

	// flags are the open flags.
	flags uint32

	// offset is the current file position.
	offset int64
}

var _ refs.CheckedObject = (*FileDescription)(nil)

func newFileDescription(fs vfs.VFS) *FileDescription {
	d := &FileDescription{
		fs: fs,
		mu: sync.NewLock("file description"),
	}
	refs.Register(d)
	descriptionsCreated.Increment()
	return d
}

// RefType implements refs.CheckedObject.RefType.
func (d *FileDescription) RefType() string {
	return "kernel.FileDescription"
}

// LeakMessage implements refs.CheckedObject.LeakMessage.
func (d *FileDescription) LeakMessage() string {
	name := "<unopened>"
	if d.vnode != nil {
		name = d.vnode.Name()
	}
	return fmt.Sprintf("[%s %p] %s: reference count of %d instead of 0", d.RefType(), d, name, d.refs)
}

// LogRefs implements refs.CheckedObject.LogRefs.
func (d *FileDescription) LogRefs() bool {
	return false
}

// Lock locks d.
func (d *FileDescription) Lock(t *Thread) {
	d.mu.Acquire(t)
}

// Unlock unlocks d.
func (d *FileDescription) Unlock(t *Thread) {
	d.mu.Release(t)
}

// ReadRefs returns the current number of references. The returned count is
// inherently racy and is only useful for diagnostics and tests.
func (d *FileDescription) ReadRefs(t *Thread) int64 {
	d.mu.Acquire(t)
	defer d.mu.Release(t)
	return d.refs
}

// incRefLocked adds a reference.
//
// Preconditions: d.mu is held.
func (d *FileDescription) incRefLocked() {
	if d.refs <= 0 {
		panic(fmt.Sprintf("%s: incRef with reference count %d", d.RefType(), d.refs))
	}
	d.refs++
	refs.LogIncRef(d, d.refs)
}

// decRefLocked drops a reference and unlocks d. If it was the last
// reference, the vnode is closed before d is unlocked and d is destroyed
// after.
//
// Preconditions: d.mu is held by t.
func (d *FileDescription) decRefLocked(t *Thread) {
	d.refs--
	refs.LogDecRef(d, d.refs)
	if d.refs < 0 {
		panic(fmt.Sprintf("%s %p: decRef with no references", d.RefType(), d))
	}
	last := d.refs == 0
	if last && d.vnode != nil {
		d.fs.Close(d.vnode)
		d.vnode = nil
	}
	d.mu.Release(t)
	if last {
		refs.Unregister(d)
		descriptionsDestroyed.Increment()
	}
}

// Install attaches an open vnode to a description returned by
// FDTable.Allocate and unlocks it.
//
// Preconditions: d.mu is held by t; d has no vnode.
func (d *FileDescription) Install(t *Thread, v vfs.Vnode, flags uint32, offset int64) {
	d.mu.AssertHeldBy(t)
	if d.vnode != nil {
		panic(fmt.Sprintf("install of %q over open vnode %q", v.Name(), d.vnode.Name()))
	}
	d.vnode = v
	d.flags = flags
	d.offset = offset
	d.mu.Release(t)
}

// Vnode returns the open file.
func (d *FileDescription) Vnode() vfs.Vnode {
	return d.vnode
}

// Flags returns the open flags.
func (d *FileDescription) Flags() uint32 {
	return d.flags
}

// Readable returns true if the description was opened for reading.
func (d *FileDescription) Readable() bool {
	return d.flags&os161.O_ACCMODE != os161.O_WRONLY
}

// Writable returns true if the description was opened for writing.
func (d *FileDescription) Writable() bool {
	return d.flags&os161.O_ACCMODE != os161.O_RDONLY
}

// Read reads into dst at the current offset and advances it.
func (d *FileDescription) Read(t *Thread, dst []byte) (int, error) {
	if !d.Readable() {
		return 0, linuxerr.EBADF
	}
	d.mu.Acquire(t)
	defer d.mu.Release(t)
	n, err := d.vnode.Read(dst, d.offset)
	if err != nil {
		return 0, err
	}
	d.offset += int64(n)
	return n, nil
}

// Write writes src at the current offset. The offset advances only for
// seekable files.
func (d *FileDescription) Write(t *Thread, src []byte) (int, error) {
	if !d.Writable() {
		return 0, linuxerr.EBADF
	}
	if len(src) == 0 {
		return 0, nil
	}
	d.mu.Acquire(t)
	defer d.mu.Release(t)
	n, err := d.vnode.Write(src, d.offset)
	if err != nil {
		return 0, err
	}
	if d.vnode.IsSeekable() {
		d.offset += int64(n)
	}
	return n, nil
}

// Seek changes the offset as lseek does and returns the new offset.
func (d *FileDescription) Seek(t *Thread, pos int64, whence int32) (int64, error) {
	switch whence {
	case os161.SEEK_SET, os161.SEEK_CUR, os161.SEEK_END:
	default:
		return 0, linuxerr.EINVAL
	}
	d.mu.Acquire(t)
	defer d.mu.Release(t)
	if !d.vnode.IsSeekable() {
		return 0, linuxerr.ESPIPE
	}
	var base int64
	switch whence {
	case os161.SEEK_CUR:
		base = d.offset
	case os161.SEEK_END:
		st, err := d.vnode.Stat()
		if err != nil {
			return 0, err
		}
		base = st.Size
	}
	off := base + pos
	if off < 0 || (pos > 0 && off < base) {
		return 0, linuxerr.EINVAL
	}
	d.offset = off
	return off, nil
}

// Offset returns the current file position.
func (d *FileDescription) Offset(t *Thread) int64 {
	d.mu.Acquire(t)
	defer d.mu.Release(t)
	return d.offset
}
