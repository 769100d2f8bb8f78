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

// Package os161 contains the constants and types of the kernel's user ABI:
// open flags, seek modes, wait status encoding, syscall numbers and the
// compile-time table sizes.
package os161

// Open flags.
const (
	O_RDONLY  = 0x00
	O_WRONLY  = 0x01
	O_RDWR    = 0x02
	O_ACCMODE = 0x03
	O_CREAT   = 0x04
	O_EXCL    = 0x08
	O_TRUNC   = 0x10
	O_APPEND  = 0x20
	O_NOCTTY  = 0x40

	// O_VALID is the set of flags accepted by open.
	O_VALID = O_ACCMODE | O_CREAT | O_EXCL | O_TRUNC | O_APPEND | O_NOCTTY
)

// Seek modes for lseek.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// Standard file handles.
const (
	STDIN_FILENO  = 0
	STDOUT_FILENO = 1
	STDERR_FILENO = 2
)

// Default table sizes and limits.
const (
	// OPEN_MAX is the default capacity of a descriptor table.
	OPEN_MAX = 128

	// PROCESSES_MAX is the default capacity of the process table, including
	// the reserved zero slot.
	PROCESSES_MAX = 128

	// RWLOCK_READERS is the default number of concurrent readers admitted
	// by a reader/writer lock.
	RWLOCK_READERS = 16

	// ARG_MAX bounds the total size of execv's argument strings.
	ARG_MAX = 64 * 1024

	// PATH_MAX bounds path names copied in from user memory.
	PATH_MAX = 1024
)

// Process identifiers.
const (
	// PID_INVALID is never assigned to a process. Allocation reports
	// exhaustion with it.
	PID_INVALID = 0

	// PID_INIT is the identifier of the first process.
	PID_INIT = 1

	// PID_MIN is the first identifier handed out by allocation.
	PID_MIN = 2
)
