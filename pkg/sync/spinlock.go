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

package sync

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Spinlock is a busy-wait mutual exclusion guard.
//
// Spinlocks protect short, fixed-bound operations only and must never be
// held across a blocking wait; WaitChannel.Sleep releases the guard before
// parking the caller.
//
// The zero value is an unlocked Spinlock.
type Spinlock struct {
	held atomic.Uint32
}

// Lock acquires the spinlock, spinning until it is available.
func (s *Spinlock) Lock() {
	for !s.held.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

// TryLock attempts to acquire the spinlock without spinning.
func (s *Spinlock) TryLock() bool {
	return s.held.CompareAndSwap(0, 1)
}

// Unlock releases the spinlock.
func (s *Spinlock) Unlock() {
	if !s.held.CompareAndSwap(1, 0) {
		panic(fmt.Sprintf("unlock of unlocked spinlock %p", s))
	}
}

// Held returns true if the spinlock is held by anyone.
func (s *Spinlock) Held() bool {
	return s.held.Load() != 0
}

func (s *Spinlock) assertHeld() {
	if !s.Held() {
		panic(fmt.Sprintf("spinlock %p not held", s))
	}
}
