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

// RWLock is a reader/writer lock built from a Lock and a Semaphore of N
// permits, N being the maximum number of concurrent readers.
//
// A reader holds one permit. A writer holds all N. The Lock serializes the
// acquisition step only, so a writer that has started collecting permits
// prevents new readers from entering; it is held for the whole collection
// loop, so two writers never interleave their collection and never hold
// permits at the same time.
//
// RWLock is not recursive: a thread that acquires it twice deadlocks.
type RWLock struct {
	name    string
	readers uint
	lock    *Lock
	permits *Semaphore
}

// NewRWLock returns an RWLock admitting up to readers concurrent readers.
func NewRWLock(name string, readers uint) *RWLock {
	if readers == 0 {
		panic(fmt.Sprintf("rwlock %q: zero readers", name))
	}
	return &RWLock{
		name:    name,
		readers: readers,
		lock:    NewLock(name + ".lock"),
		permits: NewSemaphore(name+".permits", readers),
	}
}

// Name returns the lock's name.
func (rw *RWLock) Name() string {
	return rw.name
}

// MaxReaders returns the number of concurrent readers admitted.
func (rw *RWLock) MaxReaders() uint {
	return rw.readers
}

// AcquireRead takes one read permit.
func (rw *RWLock) AcquireRead(t Thread) {
	rw.lock.Acquire(t)
	rw.permits.Acquire(t)
	rw.lock.Release(t)
}

// ReleaseRead returns one read permit.
func (rw *RWLock) ReleaseRead(t Thread) {
	rw.permits.Release()
}

// AcquireWrite takes every permit, waiting for readers to drain.
func (rw *RWLock) AcquireWrite(t Thread) {
	rw.lock.Acquire(t)
	for i := uint(0); i < rw.readers; i++ {
		rw.permits.Acquire(t)
	}
	rw.lock.Release(t)
}

// ReleaseWrite returns every permit.
func (rw *RWLock) ReleaseWrite(t Thread) {
	for i := uint(0); i < rw.readers; i++ {
		rw.permits.Release()
	}
}

// Destroy checks that the lock is idle.
func (rw *RWLock) Destroy() {
	if n := rw.permits.Count(); n != rw.readers {
		panic(fmt.Sprintf("rwlock %q destroyed with %d of %d permits taken", rw.name, rw.readers-n, rw.readers))
	}
	rw.permits.Destroy()
	rw.lock.Destroy()
}
