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

import "fmt"

// Options for waitpid.
const (
	// WNOHANG makes waitpid return 0 instead of blocking when the target
	// has not exited.
	WNOHANG = 0x1

	// WAIT_OPTIONS is the set of supported waitpid options.
	WAIT_OPTIONS = WNOHANG
)

// Wait status "what" field values.
const (
	waitExited   = 0
	waitSignaled = 1
	waitCore     = 2
	waitStopped  = 3
)

// WaitStatus is a packaged exit status as reported by waitpid.
type WaitStatus int32

// MakeExitStatus packages an exit code (_MKWAIT_EXIT).
func MakeExitStatus(code int32) WaitStatus {
	return WaitStatus((code & 0xff) << 2)
}

// Exited returns true if the status describes a normal exit.
func (ws WaitStatus) Exited() bool {
	return ws&3 == waitExited
}

// Signaled returns true if the status describes death by signal.
func (ws WaitStatus) Signaled() bool {
	w := ws & 3
	return w == waitSignaled || w == waitCore
}

// Stopped returns true if the status describes a stopped process.
func (ws WaitStatus) Stopped() bool {
	return ws&3 == waitStopped
}

// ExitStatus returns the exit code passed to _exit. It is only meaningful if
// Exited returns true.
func (ws WaitStatus) ExitStatus() int32 {
	return int32(ws) >> 2
}

// String implements fmt.Stringer.
func (ws WaitStatus) String() string {
	switch {
	case ws.Exited():
		return fmt.Sprintf("exited(%d)", ws.ExitStatus())
	case ws.Stopped():
		return fmt.Sprintf("stopped(%#x)", int32(ws))
	default:
		return fmt.Sprintf("signaled(%#x)", int32(ws))
	}
}
