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
	"fmt"

	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/sync"
)

// Reserved process identifiers.
const (
	// PIDInvalid is never assigned. Allocate returns it when the table is
	// full.
	PIDInvalid ThreadID = os161.PID_INVALID

	// PIDInit is the identifier of the first process.
	PIDInit ThreadID = os161.PID_INIT

	// PIDMin is the lowest identifier Allocate hands out.
	PIDMin ThreadID = os161.PID_MIN
)

// ProcessTable maps process identifiers to processes. A process's
// identifier is the index of its slot, so an identifier becomes reusable as
// soon as its process is reaped.
type ProcessTable struct {
	// mu protects the fields below.
	mu sync.Spinlock

	// procs is indexed by identifier. Slot PIDInvalid is never used. Its
	// length is immutable.
	procs []*Process

	// initialized is set by Init.
	initialized bool

	// live is the number of occupied slots.
	live int
}

func newProcessTable(size int) *ProcessTable {
	return &ProcessTable{procs: make([]*Process, size)}
}

// Size returns the number of slots, the reserved slot included.
func (pt *ProcessTable) Size() int {
	return len(pt.procs)
}

// Len returns the number of processes in the table.
func (pt *ProcessTable) Len() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.live
}

// Initialized returns true once Init has been called.
func (pt *ProcessTable) Initialized() bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.initialized
}

// Init installs the first process at PIDInit. It panics if the table has
// been initialized or holds any process.
func (pt *ProcessTable) Init(p *Process) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.initialized || pt.live != 0 {
		panic(fmt.Sprintf("process table initialized twice (%d live processes)", pt.live))
	}
	pt.initialized = true
	pt.install(PIDInit, p)
}

// install puts p in slot pid.
//
// Preconditions: pt.mu is locked; slot pid is free.
func (pt *ProcessTable) install(pid ThreadID, p *Process) {
	pt.procs[pid] = p
	pt.live++
	p.mu.Lock()
	p.pid = pid
	p.ppid = pid
	p.mu.Unlock()
}

// Allocate installs p in the lowest free slot from PIDMin and returns its
// identifier, which is also stored in p. If the table is full it returns
// PIDInvalid and leaves the table unchanged.
//
// A pid is its slot index. There is no separate next-identifier counter, so
// the pid of a reaped process is handed out again by the next Allocate.
func (pt *ProcessTable) Allocate(p *Process) ThreadID {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.allocateLocked(p)
}

// Preconditions: pt.mu is locked.
func (pt *ProcessTable) allocateLocked(p *Process) ThreadID {
	for pid := PIDMin; int(pid) < len(pt.procs); pid++ {
		if pt.procs[pid] == nil {
			pt.install(pid, p)
			return pid
		}
	}
	return PIDInvalid
}

// add installs p at PIDInit if the table has never been initialized and
// behaves like Allocate otherwise.
func (pt *ProcessTable) add(p *Process) ThreadID {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if !pt.initialized && pt.live == 0 {
		pt.initialized = true
		pt.install(PIDInit, p)
		return PIDInit
	}
	return pt.allocateLocked(p)
}

// Deallocate removes the process with identifier pid. It panics if no such
// process is in the table.
func (pt *ProcessTable) Deallocate(pid ThreadID) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pid <= PIDInvalid || int(pid) >= len(pt.procs) || pt.procs[pid] == nil {
		panic(fmt.Sprintf("deallocation of unknown pid %d", pid))
	}
	p := pt.procs[pid]
	p.mu.Lock()
	recorded := p.pid
	p.mu.Unlock()
	if recorded != pid {
		panic(fmt.Sprintf("pid %d holds process with pid %d", pid, recorded))
	}
	pt.procs[pid] = nil
	pt.live--
}

// Lookup returns the process with identifier pid, or nil.
func (pt *ProcessTable) Lookup(pid ThreadID) *Process {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pid <= PIDInvalid || int(pid) >= len(pt.procs) {
		return nil
	}
	return pt.procs[pid]
}

// IsChildOf returns true if pid is a child tracked by t's process.
func (pt *ProcessTable) IsChildOf(t *Thread, pid ThreadID) bool {
	p := t.p
	p.lkChildren.Acquire(t)
	defer p.lkChildren.Release(t)
	for _, c := range p.children {
		if c == pid {
			return true
		}
	}
	return false
}
