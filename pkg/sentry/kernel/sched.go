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
	"github.com/kippesp/os161/pkg/sentry/arch"
	"github.com/kippesp/os161/pkg/sync"
)

// Scheduler starts threads.
type Scheduler interface {
	// Spawn starts fn as a new thread named name. fn may terminate the
	// thread early with runtime.Goexit.
	Spawn(name string, fn func()) error
}

// GoroutineScheduler runs each thread on its own goroutine.
type GoroutineScheduler struct {
	wg sync.WaitGroup
}

// Spawn implements Scheduler.Spawn.
func (s *GoroutineScheduler) Spawn(name string, fn func()) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return nil
}

// Wait blocks until every spawned thread has terminated.
func (s *GoroutineScheduler) Wait() {
	s.wg.Wait()
}

// UserMode executes user code on behalf of a thread.
type UserMode interface {
	// Enter runs user code starting from the register state tf. User code
	// reenters the kernel through t.Syscall. Enter returns only if the
	// program ran off its end without calling _exit.
	Enter(t *Thread, tf *arch.TrapFrame)
}

// UserModeFunc adapts a function to UserMode.
type UserModeFunc func(t *Thread, tf *arch.TrapFrame)

// Enter implements UserMode.Enter.
func (f UserModeFunc) Enter(t *Thread, tf *arch.TrapFrame) {
	f(t, tf)
}
