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

package os161

// Syscall numbers.
const (
	SYS_fork     = 0
	SYS_execv    = 2
	SYS__exit    = 3
	SYS_waitpid  = 4
	SYS_getpid   = 5
	SYS_getppid  = 6
	SYS_open     = 45
	SYS_dup2     = 48
	SYS_close    = 49
	SYS_read     = 50
	SYS_write    = 55
	SYS_lseek    = 59
	SYS_chdir    = 74
	SYS___getcwd = 76
)
