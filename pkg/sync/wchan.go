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

// waiter is one sleeping execution context.
type waiter struct {
	ch chan struct{}
}

// WaitChannel is a queue of sleeping execution contexts. It is always
// protected by a caller-supplied Spinlock, which must be held across every
// call.
//
// Wakeup order is unspecified.
type WaitChannel struct {
	name string

	// waiters is protected by the caller's Spinlock.
	waiters []*waiter
}

// NewWaitChannel returns an empty WaitChannel.
func NewWaitChannel(name string) *WaitChannel {
	return &WaitChannel{name: name}
}

// Name returns the channel's name.
func (wc *WaitChannel) Name() string {
	return wc.name
}

// Sleep enqueues the caller, releases guard, blocks until woken and then
// reacquires guard before returning.
//
// Preconditions: guard is held.
func (wc *WaitChannel) Sleep(guard *Spinlock) {
	guard.assertHeld()
	w := &waiter{ch: make(chan struct{}, 1)}
	wc.waiters = append(wc.waiters, w)
	guard.Unlock()
	<-w.ch
	guard.Lock()
}

// WakeOne wakes one sleeper, if any.
//
// Preconditions: guard is held.
func (wc *WaitChannel) WakeOne(guard *Spinlock) {
	guard.assertHeld()
	n := len(wc.waiters)
	if n == 0 {
		return
	}
	w := wc.waiters[n-1]
	wc.waiters[n-1] = nil
	wc.waiters = wc.waiters[:n-1]
	w.ch <- struct{}{}
}

// WakeAll wakes every sleeper.
//
// Preconditions: guard is held.
func (wc *WaitChannel) WakeAll(guard *Spinlock) {
	guard.assertHeld()
	for _, w := range wc.waiters {
		w.ch <- struct{}{}
	}
	wc.waiters = nil
}

// IsEmpty returns true if nobody is sleeping on the channel.
//
// Preconditions: guard is held.
func (wc *WaitChannel) IsEmpty(guard *Spinlock) bool {
	guard.assertHeld()
	return len(wc.waiters) == 0
}

// Len returns the number of sleepers.
//
// Preconditions: guard is held.
func (wc *WaitChannel) Len(guard *Spinlock) int {
	guard.assertHeld()
	return len(wc.waiters)
}
