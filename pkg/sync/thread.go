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

// Package sync provides the kernel's synchronization primitives: a busy-wait
// Spinlock, a WaitChannel on which execution contexts sleep, and the sleeping
// primitives built from them (Semaphore, Lock, CV and RWLock).
//
// None of the sleeping primitives guarantee FIFO wakeup: when several
// waiters are queued, any of them may win.
package sync

// Thread is an execution context that may use the sleeping primitives.
//
// Implementations must be comparable; a Lock records its holder and compares
// it against the releasing Thread with ==.
type Thread interface {
	// Name returns a name for diagnostics.
	Name() string

	// InInterrupt returns true if the context may not block.
	InInterrupt() bool
}

// assertCanSleep halts if t may not block.
func assertCanSleep(t Thread, what string) {
	if t == nil {
		panic(what + " called without a thread")
	}
	if t.InInterrupt() {
		panic(what + " called by " + t.Name() + " in interrupt context")
	}
}
