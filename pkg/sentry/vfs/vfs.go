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

// Package vfs defines the interface between the kernel's file syscalls and
// file system implementations.
//
// Paths are resolved relative to a per-process working directory, which the
// caller passes in. A path beginning with "/" is absolute. A path of the form
// "dev:" or "dev:rest" names a device or a path on a named volume.
package vfs

import (
	"strings"
)

// Stat is the subset of file metadata used by the kernel.
type Stat struct {
	// Size is the file size in bytes.
	Size int64

	// Dir is true for directories.
	Dir bool
}

// Vnode is an open file.
//
// Offsets are tracked by the caller; Read and Write take the position
// explicitly.
type Vnode interface {
	// Read reads into dst from offset off. It returns the number of bytes
	// read, which is 0 at end of file.
	Read(dst []byte, off int64) (int, error)

	// Write writes src at offset off and returns the number of bytes
	// written.
	Write(src []byte, off int64) (int, error)

	// Stat returns the file's metadata.
	Stat() (Stat, error)

	// IsSeekable returns false for devices whose position is meaningless,
	// such as the console.
	IsSeekable() bool

	// Name returns the name the vnode was opened with.
	Name() string
}

// VFS opens and closes files and manages working directories.
type VFS interface {
	// Open opens path relative to cwd. flags are os161.O_* flags; mode is
	// the permission for files created by O_CREAT.
	Open(cwd, path string, flags uint32, mode uint32) (Vnode, error)

	// Close releases a vnode returned by Open.
	Close(v Vnode)

	// Chdir resolves path relative to cwd and returns the new working
	// directory. It fails with ENOTDIR if path is not a directory.
	Chdir(cwd, path string) (string, error)

	// Getcwd returns the printable name of the working directory cwd.
	Getcwd(cwd string) (string, error)
}

// Join resolves path against cwd, returning a clean absolute path. Device
// paths ("con:") are returned unchanged.
func Join(cwd, path string) string {
	if IsDevice(path) {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = cwd + "/" + path
	}
	var parts []string
	for _, c := range strings.Split(path, "/") {
		switch c {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, c)
		}
	}
	return "/" + strings.Join(parts, "/")
}

// IsDevice returns true if path names a device or volume.
func IsDevice(path string) bool {
	i := strings.IndexByte(path, ':')
	return i > 0 && !strings.Contains(path[:i], "/")
}

// Components splits a clean absolute path into its components.
func Components(abs string) []string {
	abs = strings.Trim(abs, "/")
	if abs == "" {
		return nil
	}
	return strings.Split(abs, "/")
}
