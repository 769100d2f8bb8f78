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

import "fmt"

// Lock is a sleeping mutual exclusion lock that records its holder.
//
// Unlike Mutex, a Lock is owned by the Thread that acquired it: only that
// Thread may release it, and acquiring it twice from the same Thread halts.
type Lock struct {
	name string

	// mu protects the fields below.
	mu     Spinlock
	held   bool
	holder Thread
	wchan  *WaitChannel
}

// NewLock returns an unheld Lock.
func NewLock(name string) *Lock {
	return &Lock{
		name:  name,
		wchan: NewWaitChannel(name),
	}
}

// Name returns the lock's name.
func (l *Lock) Name() string {
	return l.name
}

// Acquire takes the lock on behalf of t, sleeping while another thread holds
// it.
func (l *Lock) Acquire(t Thread) {
	assertCanSleep(t, "lock "+l.name+" acquire")
	l.mu.Lock()
	if l.held && l.holder == t {
		l.mu.Unlock()
		panic(fmt.Sprintf("lock %q: recursive acquire by %s", l.name, t.Name()))
	}
	for l.held {
		l.wchan.Sleep(&l.mu)
	}
	l.held = true
	l.holder = t
	l.mu.Unlock()
}

// Release drops the lock and wakes one sleeper.
//
// Preconditions: t holds the lock.
func (l *Lock) Release(t Thread) {
	l.mu.Lock()
	if !l.held || l.holder != t {
		l.mu.Unlock()
		panic(fmt.Sprintf("lock %q: release by %s, which does not hold it", l.name, threadName(t)))
	}
	l.held = false
	l.holder = nil
	l.wchan.WakeOne(&l.mu)
	l.mu.Unlock()
}

// HeldBy returns true if t holds the lock. It never blocks.
func (l *Lock) HeldBy(t Thread) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held && l.holder == t
}

// AssertHeldBy halts unless t holds the lock.
func (l *Lock) AssertHeldBy(t Thread) {
	if !l.HeldBy(t) {
		panic(fmt.Sprintf("lock %q not held by %s", l.name, threadName(t)))
	}
}

// Destroy checks that the lock is neither held nor waited on.
func (l *Lock) Destroy() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		panic(fmt.Sprintf("lock %q destroyed while held by %s", l.name, l.holder.Name()))
	}
	if !l.wchan.IsEmpty(&l.mu) {
		panic(fmt.Sprintf("lock %q destroyed with waiters", l.name))
	}
}

func threadName(t Thread) string {
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}
