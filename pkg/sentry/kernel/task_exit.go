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
	"github.com/kippesp/os161/pkg/abi/os161"
)

// Exit records code as the process's exit status, wakes anyone waiting for
// the process, orphans its children and terminates the calling thread. It
// does not return.
//
// The process stays in the process table until its parent reaps it.
func (t *Thread) Exit(code int32) {
	p := t.p

	p.mu.Lock()
	p.exitStatus = os161.MakeExitStatus(code)
	p.mu.Unlock()

	p.lkExited.Acquire(t)
	p.exited = true
	p.cvExited.Broadcast(t, p.lkExited)
	p.lkExited.Release(t)

	p.orphanChildren(t)

	exitCount.Increment()
	t.Debugf("Exited with code %d", code)
	exitThread()
}
