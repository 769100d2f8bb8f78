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

// CV is a Mesa-style condition variable used together with a Lock.
//
// A woken waiter re-acquires the Lock before returning but the condition it
// waited for may no longer hold; callers must re-check it in a loop.
type CV struct {
	name string

	// mu protects wchan.
	mu    Spinlock
	wchan *WaitChannel
}

// NewCV returns a condition variable with no waiters.
func NewCV(name string) *CV {
	return &CV{
		name:  name,
		wchan: NewWaitChannel(name),
	}
}

// Name returns the condition variable's name.
func (cv *CV) Name() string {
	return cv.name
}

// Wait releases l, sleeps until signalled and re-acquires l.
//
// cv.mu is taken before l is released, so a Signal issued by a thread that
// acquires l after this thread drops it cannot be lost.
//
// Preconditions: t holds l.
func (cv *CV) Wait(t Thread, l *Lock) {
	assertCanSleep(t, "cv "+cv.name+" wait")
	cv.assertHeld(t, l)
	cv.mu.Lock()
	l.Release(t)
	cv.wchan.Sleep(&cv.mu)
	cv.mu.Unlock()
	l.Acquire(t)
}

// Signal wakes one waiter, if any.
//
// Preconditions: t holds l.
func (cv *CV) Signal(t Thread, l *Lock) {
	cv.assertHeld(t, l)
	cv.mu.Lock()
	cv.wchan.WakeOne(&cv.mu)
	cv.mu.Unlock()
}

// Broadcast wakes every waiter.
//
// Preconditions: t holds l.
func (cv *CV) Broadcast(t Thread, l *Lock) {
	cv.assertHeld(t, l)
	cv.mu.Lock()
	cv.wchan.WakeAll(&cv.mu)
	cv.mu.Unlock()
}

// Destroy checks that nobody is waiting on the condition variable.
func (cv *CV) Destroy() {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if !cv.wchan.IsEmpty(&cv.mu) {
		panic(fmt.Sprintf("cv %q destroyed with waiters", cv.name))
	}
}

func (cv *CV) assertHeld(t Thread, l *Lock) {
	if !l.HeldBy(t) {
		panic(fmt.Sprintf("cv %q used by %s without holding lock %q", cv.name, threadName(t), l.Name()))
	}
}
