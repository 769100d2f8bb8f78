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
	"runtime"

	"github.com/kippesp/os161/pkg/log"
	"github.com/kippesp/os161/pkg/sentry/arch"
	"github.com/kippesp/os161/pkg/sentry/mm"
	"github.com/kippesp/os161/pkg/sync"
)

// ThreadID is a process identifier. Every process has a single thread, so
// thread and process identifiers coincide.
type ThreadID int32

// Thread is a kernel execution context. A Thread belonging to a Process runs
// that process's user code; a Thread with no Process is a kernel thread, such
// as the one that boots the first program.
type Thread struct {
	k    *Kernel
	name string

	// p is the process this thread runs, or nil for a kernel thread. p is
	// immutable.
	p *Process
}

var _ sync.Thread = (*Thread)(nil)

// NewKernelThread returns a thread that belongs to no process. It is used by
// callers outside the kernel, such as the boot path, that need an identity
// for blocking on kernel primitives.
func (k *Kernel) NewKernelThread(name string) *Thread {
	return &Thread{k: k, name: name}
}

// Name implements sync.Thread.Name.
func (t *Thread) Name() string {
	return t.name
}

// InInterrupt implements sync.Thread.InInterrupt. Threads never run in
// interrupt context.
func (t *Thread) InInterrupt() bool {
	return false
}

// String implements fmt.Stringer.
func (t *Thread) String() string {
	if t.p == nil {
		return t.name
	}
	return fmt.Sprintf("%s[%d]", t.name, t.p.PID())
}

// Kernel returns the kernel t runs in.
func (t *Thread) Kernel() *Kernel {
	return t.k
}

// Process returns the process t runs, or nil for a kernel thread.
func (t *Thread) Process() *Process {
	return t.p
}

// AddressSpace returns the address space of t's process.
func (t *Thread) AddressSpace() mm.AddressSpace {
	return t.p.AddressSpace()
}

// FDTable returns the descriptor table of t's process.
func (t *Thread) FDTable() *FDTable {
	return t.p.fdTable
}

// Debugf logs a debug message prefixed with the thread's identity.
func (t *Thread) Debugf(format string, v ...any) {
	if log.IsLogging(log.Debug) {
		log.Debugf("[%s] "+format, append([]any{t}, v...)...)
	}
}

// Warningf logs a warning prefixed with the thread's identity.
func (t *Thread) Warningf(format string, v ...any) {
	log.Warningf("[%s] "+format, append([]any{t}, v...)...)
}

// startThread starts a thread that runs fn in p. p.numThreads must already
// count the new thread.
func (k *Kernel) startThread(p *Process, fn func(t *Thread)) error {
	t := &Thread{k: k, name: p.Name(), p: p}
	return k.scheduler.Spawn(t.name, func() {
		defer p.threadExited(t)
		fn(t)
	})
}

// EnterUserMode runs user code from the register state tf. It does not
// return: a program that returns without calling _exit exits with status 0.
func (t *Thread) EnterUserMode(tf *arch.TrapFrame) {
	t.k.userMode.Enter(t, tf)
	t.Exit(0)
}

// exitThread terminates the calling thread. Deferred calls registered by
// startThread run first.
func exitThread() {
	runtime.Goexit()
}
