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

// Package memfs provides an in-memory file system and the console device.
//
// A Filesystem serves one named volume ("emu0" by default) plus the "con:"
// device. Files are plain byte slices; directories are maps.
package memfs

import (
	"fmt"
	"strings"

	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/sentry/vfs"
	"github.com/kippesp/os161/pkg/sync"
)

// DefaultVolume is the name of the root volume.
const DefaultVolume = "emu0"

// ConsoleName is the device path of the console.
const ConsoleName = "con:"

type inode struct {
	name     string
	dir      bool
	children map[string]*inode
	data     []byte
	opens    int
}

// Filesystem implements vfs.VFS.
type Filesystem struct {
	volume  string
	console *Console

	// mu protects the tree and all file contents.
	mu   sync.Mutex
	root *inode
}

var _ vfs.VFS = (*Filesystem)(nil)

// New returns an empty file system whose console is console. console may be
// nil, in which case opening "con:" fails with ENOENT.
func New(volume string, console *Console) *Filesystem {
	if volume == "" {
		volume = DefaultVolume
	}
	return &Filesystem{
		volume:  volume,
		console: console,
		root:    &inode{name: "/", dir: true, children: make(map[string]*inode)},
	}
}

// Console returns the console device.
func (fs *Filesystem) Console() *Console {
	return fs.console
}

// resolvePath converts a path into a clean absolute path within the volume.
// device is non-empty if the path names a device instead.
func (fs *Filesystem) resolvePath(cwd, path string) (abs string, device string, err error) {
	if path == "" {
		return "", "", linuxerr.EINVAL
	}
	if vfs.IsDevice(path) {
		i := strings.IndexByte(path, ':')
		name, rest := path[:i], path[i+1:]
		if name != fs.volume {
			if rest != "" {
				return "", "", linuxerr.ENOENT
			}
			return "", name + ":", nil
		}
		return vfs.Join("/", rest), "", nil
	}
	return vfs.Join(cwd, path), "", nil
}

// lookupLocked walks abs. It returns the parent directory and the final
// component, and the inode itself if it exists.
//
// Preconditions: fs.mu is locked.
func (fs *Filesystem) lookupLocked(abs string) (parent *inode, name string, ino *inode, err error) {
	comps := vfs.Components(abs)
	if len(comps) == 0 {
		return nil, "", fs.root, nil
	}
	dir := fs.root
	for _, c := range comps[:len(comps)-1] {
		next, ok := dir.children[c]
		if !ok {
			return nil, "", nil, linuxerr.ENOENT
		}
		if !next.dir {
			return nil, "", nil, linuxerr.ENOTDIR
		}
		dir = next
	}
	name = comps[len(comps)-1]
	return dir, name, dir.children[name], nil
}

// Open implements vfs.VFS.Open.
func (fs *Filesystem) Open(cwd, path string, flags uint32, mode uint32) (vfs.Vnode, error) {
	abs, device, err := fs.resolvePath(cwd, path)
	if err != nil {
		return nil, err
	}
	if device != "" {
		if device != ConsoleName || fs.console == nil {
			return nil, linuxerr.ENOENT
		}
		return fs.console.open(), nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, name, ino, err := fs.lookupLocked(abs)
	if err != nil {
		return nil, err
	}
	accmode := flags & os161.O_ACCMODE
	switch {
	case ino == nil && flags&os161.O_CREAT == 0:
		return nil, linuxerr.ENOENT
	case ino == nil:
		ino = &inode{name: name}
		parent.children[name] = ino
	case flags&(os161.O_CREAT|os161.O_EXCL) == os161.O_CREAT|os161.O_EXCL:
		return nil, linuxerr.EEXIST
	case ino.dir && accmode != os161.O_RDONLY:
		return nil, linuxerr.EISDIR
	}
	if flags&os161.O_TRUNC != 0 && accmode != os161.O_RDONLY && !ino.dir {
		ino.data = nil
	}
	ino.opens++
	return &fileVnode{fs: fs, ino: ino, path: abs}, nil
}

// Close implements vfs.VFS.Close.
func (fs *Filesystem) Close(v vfs.Vnode) {
	switch v := v.(type) {
	case *fileVnode:
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if v.closed {
			panic(fmt.Sprintf("double close of %s", v.path))
		}
		v.closed = true
		v.ino.opens--
	case *consoleVnode:
		v.c.close(v)
	default:
		panic(fmt.Sprintf("vnode %T does not belong to this file system", v))
	}
}

// Chdir implements vfs.VFS.Chdir.
func (fs *Filesystem) Chdir(cwd, path string) (string, error) {
	abs, device, err := fs.resolvePath(cwd, path)
	if err != nil {
		return "", err
	}
	if device != "" {
		return "", linuxerr.ENOTDIR
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, _, ino, err := fs.lookupLocked(abs)
	if err != nil {
		return "", err
	}
	if ino == nil {
		return "", linuxerr.ENOENT
	}
	if !ino.dir {
		return "", linuxerr.ENOTDIR
	}
	return abs, nil
}

// Getcwd implements vfs.VFS.Getcwd.
func (fs *Filesystem) Getcwd(cwd string) (string, error) {
	return fs.volume + ":" + vfs.Join("/", cwd), nil
}

// Mkdir creates a directory and any missing parents.
func (fs *Filesystem) Mkdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir := fs.root
	for _, c := range vfs.Components(vfs.Join("/", path)) {
		next, ok := dir.children[c]
		if !ok {
			next = &inode{name: c, dir: true, children: make(map[string]*inode)}
			dir.children[c] = next
		} else if !next.dir {
			return linuxerr.ENOTDIR
		}
		dir = next
	}
	return nil
}

// WriteFile creates or replaces the file at path, creating parent
// directories as needed.
func (fs *Filesystem) WriteFile(path string, data []byte) error {
	abs := vfs.Join("/", path)
	comps := vfs.Components(abs)
	if len(comps) == 0 {
		return linuxerr.EISDIR
	}
	if err := fs.Mkdir(strings.Join(comps[:len(comps)-1], "/")); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, name, ino, err := fs.lookupLocked(abs)
	if err != nil {
		return err
	}
	if ino == nil {
		ino = &inode{name: name}
		parent.children[name] = ino
	} else if ino.dir {
		return linuxerr.EISDIR
	}
	ino.data = append([]byte(nil), data...)
	return nil
}

// ReadFile returns a copy of the contents of the file at path.
func (fs *Filesystem) ReadFile(path string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, _, ino, err := fs.lookupLocked(vfs.Join("/", path))
	if err != nil {
		return nil, err
	}
	if ino == nil {
		return nil, linuxerr.ENOENT
	}
	if ino.dir {
		return nil, linuxerr.EISDIR
	}
	return append([]byte(nil), ino.data...), nil
}

// OpenCount returns the number of open vnodes for the file at path.
func (fs *Filesystem) OpenCount(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, _, ino, err := fs.lookupLocked(vfs.Join("/", path))
	if err != nil || ino == nil {
		return 0
	}
	return ino.opens
}

// fileVnode is an open regular file or directory.
type fileVnode struct {
	fs     *Filesystem
	ino    *inode
	path   string
	closed bool
}

// Read implements vfs.Vnode.Read.
func (v *fileVnode) Read(dst []byte, off int64) (int, error) {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()
	if v.ino.dir {
		return 0, linuxerr.EISDIR
	}
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	if off >= int64(len(v.ino.data)) {
		return 0, nil
	}
	return copy(dst, v.ino.data[off:]), nil
}

// Write implements vfs.Vnode.Write.
func (v *fileVnode) Write(src []byte, off int64) (int, error) {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()
	if v.ino.dir {
		return 0, linuxerr.EISDIR
	}
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	if end := off + int64(len(src)); end > int64(len(v.ino.data)) {
		grown := make([]byte, end)
		copy(grown, v.ino.data)
		v.ino.data = grown
	}
	return copy(v.ino.data[off:], src), nil
}

// Stat implements vfs.Vnode.Stat.
func (v *fileVnode) Stat() (vfs.Stat, error) {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()
	return vfs.Stat{Size: int64(len(v.ino.data)), Dir: v.ino.dir}, nil
}

// IsSeekable implements vfs.Vnode.IsSeekable.
func (v *fileVnode) IsSeekable() bool {
	return true
}

// Name implements vfs.Vnode.Name.
func (v *fileVnode) Name() string {
	return v.path
}
