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
	"github.com/kippesp/os161/pkg/sentry/mm"
	"github.com/kippesp/os161/pkg/sync"
)

// Process is a process control block.
//
// A Process is created by RunProgram or fork and stays resident after it
// exits until its parent reaps it with waitpid.
type Process struct {
	k    *Kernel
	name string

	// mu protects the fields below.
	mu sync.Spinlock

	// pid is the process identifier. It is PIDInvalid until the process is
	// installed in the process table.
	pid ThreadID

	// ppid is the parent's identifier. An orphaned process is its own
	// parent.
	ppid ThreadID

	// parent is the parent process, or nil if the process has no parent or
	// has been orphaned.
	parent *Process

	// exitStatus is the packaged status passed to _exit. It is only
	// meaningful once exited is set.
	exitStatus os161.WaitStatus

	// as is the process's address space.
	as mm.AddressSpace

	// lkExited protects exited. cvExited is broadcast when it is set.
	lkExited *sync.Lock
	cvExited *sync.CV
	exited   bool

	// lkThreads protects numThreads. cvThreads is broadcast when it
	// drops to zero.
	lkThreads  *sync.Lock
	cvThreads  *sync.CV
	numThreads int

	// lkChildren protects children, the identifiers of the children this
	// process still tracks.
	lkChildren *sync.Lock
	children   []ThreadID

	// lkSyscall serializes per-process syscall state: the descriptor
	// table's handle bookkeeping and cwd.
	lkSyscall *sync.Lock
	fdTable   *FDTable
	cwd       string
}

// newProcess returns a process with an empty descriptor table and no
// address space.
func (k *Kernel) newProcess(name string) *Process {
	p := &Process{
		k:          k,
		name:       name,
		lkExited:   sync.NewLock(name + " exited"),
		cvExited:   sync.NewCV(name + " exited"),
		lkThreads:  sync.NewLock(name + " threads"),
		cvThreads:  sync.NewCV(name + " threads"),
		lkChildren: sync.NewLock(name + " children"),
		lkSyscall:  sync.NewLock(name + " syscall"),
		cwd:        "/",
	}
	p.fdTable = newFDTable(k.vfs, p.lkSyscall, k.openMax)
	return p
}

// Name returns the name of the program the process runs.
func (p *Process) Name() string {
	return p.name
}

// String implements fmt.Stringer.
func (p *Process) String() string {
	return fmt.Sprintf("%s[%d]", p.name, p.PID())
}

// PID returns the process identifier.
func (p *Process) PID() ThreadID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// PPID returns the parent's identifier.
func (p *Process) PPID() ThreadID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ppid
}

// Parent returns the parent process, or nil if p is orphaned.
func (p *Process) Parent() *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

// IsOrphan returns true if p is its own parent.
func (p *Process) IsOrphan() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent == nil && p.ppid == p.pid
}

// AddressSpace returns the process's address space.
func (p *Process) AddressSpace() mm.AddressSpace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.as
}

// swapAddressSpace installs as and returns the previous address space.
func (p *Process) swapAddressSpace(as mm.AddressSpace) mm.AddressSpace {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.as
	p.as = as
	return old
}

// FDTable returns the process's descriptor table.
func (p *Process) FDTable() *FDTable {
	return p.fdTable
}

// ExitStatus returns the packaged exit status. It is only meaningful once
// the process has exited.
func (p *Process) ExitStatus() os161.WaitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitStatus
}

// Exited returns true if the process has called _exit.
func (p *Process) Exited(t *Thread) bool {
	p.lkExited.Acquire(t)
	defer p.lkExited.Release(t)
	return p.exited
}

// Children returns the identifiers of the children p tracks.
func (p *Process) Children(t *Thread) []ThreadID {
	p.lkChildren.Acquire(t)
	defer p.lkChildren.Release(t)
	return append([]ThreadID(nil), p.children...)
}

// Cwd returns the process's working directory.
func (p *Process) Cwd(t *Thread) string {
	p.lkSyscall.Acquire(t)
	defer p.lkSyscall.Release(t)
	return p.cwd
}

// Chdir changes the working directory to path.
func (p *Process) Chdir(t *Thread, path string) error {
	p.lkSyscall.Acquire(t)
	defer p.lkSyscall.Release(t)
	cwd, err := p.k.vfs.Chdir(p.cwd, path)
	if err != nil {
		return err
	}
	p.cwd = cwd
	return nil
}

// Getcwd returns the name of the working directory as the file system
// reports it.
func (p *Process) Getcwd(t *Thread) (string, error) {
	p.lkSyscall.Acquire(t)
	defer p.lkSyscall.Release(t)
	return p.k.vfs.Getcwd(p.cwd)
}

// addChild records pid as a child of p.
func (p *Process) addChild(t *Thread, pid ThreadID) {
	p.lkChildren.Acquire(t)
	defer p.lkChildren.Release(t)
	p.children = append(p.children, pid)
}

// removeChildLocked stops tracking pid. It returns false if pid was not
// tracked.
//
// Preconditions: p.lkChildren is held.
func (p *Process) removeChildLocked(pid ThreadID) bool {
	for i, c := range p.children {
		if c == pid {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return true
		}
	}
	return false
}

// removeChild stops tracking pid.
func (p *Process) removeChild(t *Thread, pid ThreadID) {
	p.lkChildren.Acquire(t)
	defer p.lkChildren.Release(t)
	p.removeChildLocked(pid)
}

// orphanChildren makes every child p tracks its own parent and stops
// tracking them.
func (p *Process) orphanChildren(t *Thread) {
	p.lkChildren.Acquire(t)
	defer p.lkChildren.Release(t)
	for _, pid := range p.children {
		c := p.k.processes.Lookup(pid)
		if c == nil {
			panic(fmt.Sprintf("%v: tracked child %d is not in the process table", p, pid))
		}
		c.mu.Lock()
		if c.parent != p {
			c.mu.Unlock()
			panic(fmt.Sprintf("%v: tracked child %d has parent %d", p, pid, c.ppid))
		}
		c.ppid = c.pid
		c.parent = nil
		c.mu.Unlock()
		orphanCount.Increment()
		t.Debugf("Orphaned %d, child of %d", pid, p.PID())
	}
	p.children = nil
}

// orphan makes p its own parent.
func (p *Process) orphan() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ppid = p.pid
	p.parent = nil
}

// waitExited blocks until p has called _exit.
func (p *Process) waitExited(t *Thread) {
	p.lkExited.Acquire(t)
	for !p.exited {
		p.cvExited.Wait(t, p.lkExited)
	}
	p.lkExited.Release(t)
}

// waitThreads blocks until every thread of p has terminated.
func (p *Process) waitThreads(t *Thread) {
	p.lkThreads.Acquire(t)
	for p.numThreads > 0 {
		p.cvThreads.Wait(t, p.lkThreads)
	}
	p.lkThreads.Release(t)
}

// addThread counts a thread about to be started.
func (p *Process) addThread(t *Thread) {
	p.lkThreads.Acquire(t)
	defer p.lkThreads.Release(t)
	p.numThreads++
}

// threadExited is called by each of p's threads as it terminates.
func (p *Process) threadExited(t *Thread) {
	p.lkThreads.Acquire(t)
	defer p.lkThreads.Release(t)
	p.numThreads--
	if p.numThreads < 0 {
		panic(fmt.Sprintf("%v: thread count below zero", p))
	}
	if p.numThreads == 0 {
		p.cvThreads.Broadcast(t, p.lkThreads)
	}
}

// release frees everything p holds. p must have no running threads and must
// no longer be in the process table.
func (p *Process) release(t *Thread) {
	p.fdTable.RemoveAll(t)
	if as := p.swapAddressSpace(nil); as != nil {
		as.Destroy()
	}
	p.lkExited.Destroy()
	p.cvExited.Destroy()
	p.lkThreads.Destroy()
	p.cvThreads.Destroy()
	p.lkChildren.Destroy()
	p.lkSyscall.Destroy()
}
