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

// Package linuxerr contains syscall error codes exported as an error interface
// pointers. This allows for fast comparison and return operations comperable
// to unix.Errno constants.
package linuxerr

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/kippesp/os161/pkg/abi/os161/errno"
	"github.com/kippesp/os161/pkg/errors"
)

// The following errors are semantically identical to Errno of type unix.Errno
// or sycall.Errno. However, since the type are distinct ( these are
// *errors.Error), they are not directly comperable. The Errno method returns
// an Errno number such that the error can be compared to unix.Errno.
var noError *errors.Error = nil

var (
	EPERM        = errors.New(errno.EPERM, "operation not permitted")
	ENOENT       = errors.New(errno.ENOENT, "no such file or directory")
	ESRCH        = errors.New(errno.ESRCH, "no such process")
	EINTR        = errors.New(errno.EINTR, "interrupted system call")
	EIO          = errors.New(errno.EIO, "I/O error")
	E2BIG        = errors.New(errno.E2BIG, "argument list too long")
	ENOEXEC      = errors.New(errno.ENOEXEC, "exec format error")
	EBADF        = errors.New(errno.EBADF, "bad file number")
	ECHILD       = errors.New(errno.ECHILD, "no child processes")
	EAGAIN       = errors.New(errno.EAGAIN, "try again")
	ENOMEM       = errors.New(errno.ENOMEM, "out of memory")
	EFAULT       = errors.New(errno.EFAULT, "bad address")
	EEXIST       = errors.New(errno.EEXIST, "file exists")
	ENOTDIR      = errors.New(errno.ENOTDIR, "not a directory")
	EISDIR       = errors.New(errno.EISDIR, "is a directory")
	EINVAL       = errors.New(errno.EINVAL, "invalid argument")
	ENFILE       = errors.New(errno.ENFILE, "file table overflow")
	EMFILE       = errors.New(errno.EMFILE, "too many open files")
	ENOSPC       = errors.New(errno.ENOSPC, "no space left on device")
	ESPIPE       = errors.New(errno.ESPIPE, "illegal seek")
	ERANGE       = errors.New(errno.ERANGE, "math result not representable")
	ENOSYS       = errors.New(errno.ENOSYS, "invalid system call number")
	ENAMETOOLONG = errors.New(errno.ENAMETOOLONG, "file name too long")

	// ENPROC shares its number with EAGAIN but is a distinct value so that
	// process table exhaustion can be told apart inside the kernel.
	ENPROC = errors.New(errno.ENPROC, "too many processes in system")
)

// errorMap holds errors by errno for translation from unix.Errno. Where two
// errors share a number, the generic one wins.
var errorMap = map[errno.Errno]*errors.Error{
	errno.NOERRNO:      noError,
	errno.EPERM:        EPERM,
	errno.ENOENT:       ENOENT,
	errno.ESRCH:        ESRCH,
	errno.EINTR:        EINTR,
	errno.EIO:          EIO,
	errno.E2BIG:        E2BIG,
	errno.ENOEXEC:      ENOEXEC,
	errno.EBADF:        EBADF,
	errno.ECHILD:       ECHILD,
	errno.EAGAIN:       EAGAIN,
	errno.ENOMEM:       ENOMEM,
	errno.EFAULT:       EFAULT,
	errno.EEXIST:       EEXIST,
	errno.ENOTDIR:      ENOTDIR,
	errno.EISDIR:       EISDIR,
	errno.EINVAL:       EINVAL,
	errno.ENFILE:       ENFILE,
	errno.EMFILE:       EMFILE,
	errno.ENOSPC:       ENOSPC,
	errno.ESPIPE:       ESPIPE,
	errno.ERANGE:       ERANGE,
	errno.ENOSYS:       ENOSYS,
	errno.ENAMETOOLONG: ENAMETOOLONG,
}

// ErrorFromUnix returns a linuxerr from a unix.Errno.
func ErrorFromUnix(err unix.Errno) error {
	if err == unix.Errno(0) {
		return nil
	}
	e, ok := errorMap[errno.Errno(err)]
	if !ok {
		panic(fmt.Sprintf("invalid error requested with errno: %v", err))
	}
	return e
}

// ToError converts a linuxerr to an error type.
func ToError(err *errors.Error) error {
	if err == noError {
		return nil
	}
	return err
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != noError {
		unixErr = unix.Errno(e.Errno())
	}
	return unixErr
}

// Equals compars a linuxerr to a given error.
func Equals(e *errors.Error, err error) bool {
	var unixErr unix.Errno
	if e != noError {
		unixErr = unix.Errno(e.Errno())
	}
	if err == nil {
		err = noError
	}
	return e == err || unixErr == err
}

// ErrnoOf extracts the errno carried by err. Errors that do not carry one
// are reported as EINVAL.
func ErrnoOf(err error) errno.Errno {
	switch e := err.(type) {
	case nil:
		return errno.NOERRNO
	case *errors.Error:
		if e == noError {
			return errno.NOERRNO
		}
		return e.Errno()
	case unix.Errno:
		return errno.Errno(e)
	default:
		return errno.EINVAL
	}
}
