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
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/hostarch"
	"github.com/kippesp/os161/pkg/sentry/mm"
)

// Wait waits for the child pid of t's process to exit, stores its packaged
// exit status at statusAddr unless statusAddr is 0, reaps it and returns
// pid.
//
// With WNOHANG, Wait returns 0 without reaping if the child has not exited.
func (t *Thread) Wait(pid ThreadID, statusAddr hostarch.Addr, options int32) (ThreadID, error) {
	k := t.k
	if statusAddr != 0 {
		if !statusAddr.IsAligned(4) {
			return PIDInvalid, linuxerr.EFAULT
		}
		if _, err := mm.CopyInUint32(t.AddressSpace(), statusAddr); err != nil {
			return PIDInvalid, linuxerr.EFAULT
		}
	}
	if options&^os161.WAIT_OPTIONS != 0 {
		return PIDInvalid, linuxerr.EINVAL
	}

	target := k.processes.Lookup(pid)
	if target == nil {
		return PIDInvalid, linuxerr.ESRCH
	}
	if !k.processes.IsChildOf(t, pid) {
		return PIDInvalid, linuxerr.ECHILD
	}

	if options&os161.WNOHANG != 0 && !target.Exited(t) {
		return 0, nil
	}
	target.waitExited(t)
	target.waitThreads(t)

	status := target.ExitStatus()
	if statusAddr != 0 {
		if err := mm.CopyOutUint32(t.AddressSpace(), statusAddr, uint32(status)); err != nil {
			return PIDInvalid, linuxerr.EFAULT
		}
	}

	t.p.removeChild(t, pid)
	target.orphanChildren(t)
	target.orphan()
	k.processes.Deallocate(pid)
	target.release(t)

	reapCount.Increment()
	t.Debugf("Reaped child %d, %v", pid, status)
	return pid, nil
}
