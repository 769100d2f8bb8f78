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

// Semaphore is a counting semaphore.
type Semaphore struct {
	name string

	// mu protects count and wchan.
	mu    Spinlock
	count uint
	wchan *WaitChannel
}

// NewSemaphore returns a semaphore holding count permits.
func NewSemaphore(name string, count uint) *Semaphore {
	return &Semaphore{
		name:  name,
		count: count,
		wchan: NewWaitChannel(name),
	}
}

// Name returns the semaphore's name.
func (s *Semaphore) Name() string {
	return s.name
}

// Acquire takes one permit, sleeping while none are available.
//
// Acquire may not be called in interrupt context; it may sleep even when a
// permit is available.
func (s *Semaphore) Acquire(t Thread) {
	assertCanSleep(t, "semaphore "+s.name+" acquire")
	s.mu.Lock()
	for s.count == 0 {
		s.wchan.Sleep(&s.mu)
	}
	s.count--
	s.mu.Unlock()
}

// TryAcquire takes one permit if one is available without sleeping.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Release returns one permit and wakes one sleeper.
func (s *Semaphore) Release() {
	s.mu.Lock()
	s.count++
	if s.count == 0 {
		panic(fmt.Sprintf("semaphore %q count overflow", s.name))
	}
	s.wchan.WakeOne(&s.mu)
	s.mu.Unlock()
}

// Count returns the number of available permits.
func (s *Semaphore) Count() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Destroy checks that nobody is waiting on the semaphore.
func (s *Semaphore) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wchan.IsEmpty(&s.mu) {
		panic(fmt.Sprintf("semaphore %q destroyed with %d waiters", s.name, s.wchan.Len(&s.mu)))
	}
}
