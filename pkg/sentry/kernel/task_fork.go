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
	"github.com/kippesp/os161/pkg/cleanup"
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/sentry/arch"
	"github.com/kippesp/os161/pkg/sync"
)

// Fork creates a child of t's process that resumes from the register state
// tf with fork returning 0, and returns the child's identifier.
//
// Fork is all or nothing: on failure every step already taken is undone in
// reverse order.
func (t *Thread) Fork(tf *arch.TrapFrame) (ThreadID, error) {
	k := t.k
	parent := t.p

	cu := cleanup.Make(func() { forkCount.Increment("failed") })
	defer cu.Clean()

	// The snapshot belongs to the parent; the child copies it before the
	// parent is allowed to return.
	snapshot := tf.Fork()

	child := k.newProcess(parent.Name())

	as, err := parent.AddressSpace().Copy()
	if err != nil {
		return PIDInvalid, err
	}
	child.as = as
	cu.Add(func() {
		child.swapAddressSpace(nil)
		as.Destroy()
	})

	child.fdTable = parent.fdTable.Fork(t, child.lkSyscall)
	cu.Add(func() { child.fdTable.RemoveAll(t) })
	child.cwd = parent.Cwd(t)

	pid := k.processes.Allocate(child)
	if pid == PIDInvalid {
		exhaustionLog.Warningf("%v: fork: process table full (%d slots)", t, k.processes.Size())
		return PIDInvalid, linuxerr.ENPROC
	}
	cu.Add(func() { k.processes.Deallocate(pid) })

	child.mu.Lock()
	child.ppid = parent.PID()
	child.parent = parent
	child.mu.Unlock()
	parent.addChild(t, pid)
	cu.Add(func() { parent.removeChild(t, pid) })

	child.addThread(t)
	handshake := sync.NewSemaphore("fork", 0)
	if err := k.startThread(child, func(ct *Thread) {
		ctf := *snapshot
		handshake.Release()
		ctf.SetForkChild()
		ct.AddressSpace().Activate()
		ct.EnterUserMode(&ctf)
	}); err != nil {
		t.Warningf("fork: starting thread: %v", err)
		return PIDInvalid, err
	}
	handshake.Acquire(t)
	handshake.Destroy()
	*snapshot = arch.TrapFrame{}

	cu.Release()
	forkCount.Increment("ok")
	t.Debugf("Forked child %d", pid)
	return pid, nil
}
