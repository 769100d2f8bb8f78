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

// Package errno holds errno codes for the kernel's syscall boundary.
//
// The numbering follows the host (Linux) numbering so that values round-trip
// through golang.org/x/sys/unix unchanged.
package errno

import "golang.org/x/sys/unix"

// Errno represents an errno number.
type Errno uint32

// Errno values used by the process and file syscalls.
const (
	NOERRNO = Errno(0)
	EPERM   = Errno(unix.EPERM)
	ENOENT  = Errno(unix.ENOENT)
	ESRCH   = Errno(unix.ESRCH)
	EINTR   = Errno(unix.EINTR)
	EIO     = Errno(unix.EIO)
	E2BIG   = Errno(unix.E2BIG)
	ENOEXEC = Errno(unix.ENOEXEC)
	EBADF   = Errno(unix.EBADF)
	ECHILD  = Errno(unix.ECHILD)
	EAGAIN  = Errno(unix.EAGAIN)
	ENOMEM  = Errno(unix.ENOMEM)
	EFAULT  = Errno(unix.EFAULT)
	EEXIST  = Errno(unix.EEXIST)
	ENOTDIR = Errno(unix.ENOTDIR)
	EISDIR  = Errno(unix.EISDIR)
	EINVAL  = Errno(unix.EINVAL)
	ENFILE  = Errno(unix.ENFILE)
	EMFILE  = Errno(unix.EMFILE)
	ENOSPC  = Errno(unix.ENOSPC)
	ESPIPE  = Errno(unix.ESPIPE)
	ERANGE  = Errno(unix.ERANGE)
	ENOSYS  = Errno(unix.ENOSYS)

	ENAMETOOLONG = Errno(unix.ENAMETOOLONG)

	// ENPROC reports that the process table is full. The host has no
	// dedicated errno for this; fork(2) reports EAGAIN in the same case.
	ENPROC = EAGAIN
)
