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
	"testing"

	"github.com/kippesp/os161/pkg/sentry/limits"
	"github.com/kippesp/os161/pkg/test/testutil"
)

func TestProcessTableAllocate(t *testing.T) {
	tk := newTestKernel(t, programs{}, withLimit(limits.ProcessCount, 5))
	pt := tk.Processes()
	if got := pt.Size(); got != 5 {
		t.Fatalf("Size = %d, want 5", got)
	}

	first := tk.newProcess("first")
	pt.Init(first)
	if got := first.PID(); got != PIDInit {
		t.Errorf("first pid = %d, want %d", got, PIDInit)
	}
	if err := testutil.ExpectPanic("initialized twice", func() { pt.Init(tk.newProcess("again")) }); err != nil {
		t.Errorf("second Init: %v", err)
	}

	var procs []*Process
	for want := PIDMin; want < 5; want++ {
		p := tk.newProcess("p")
		if got := pt.Allocate(p); got != want {
			t.Errorf("Allocate = %d, want %d", got, want)
		}
		if got := p.PID(); got != want {
			t.Errorf("recorded pid = %d, want %d", got, want)
		}
		procs = append(procs, p)
	}
	for i := 0; i < 2; i++ {
		if got := pt.Allocate(tk.newProcess("extra")); got != PIDInvalid {
			t.Errorf("Allocate on full table = %d, want PIDInvalid", got)
		}
	}
	if got := pt.Len(); got != 4 {
		t.Errorf("Len = %d, want 4", got)
	}
	for _, p := range procs {
		if got := pt.Lookup(p.PID()); got != p {
			t.Errorf("Lookup(%d) = %v, want %v", p.PID(), got, p)
		}
	}

	pt.Deallocate(3)
	if got := pt.Lookup(3); got != nil {
		t.Errorf("Lookup of deallocated pid = %v", got)
	}
	reused := tk.newProcess("reused")
	if got := pt.Allocate(reused); got != 3 {
		t.Errorf("Allocate after Deallocate = %d, want 3", got)
	}
}

func TestProcessTableLookupOutOfRange(t *testing.T) {
	tk := newTestKernel(t, programs{}, withLimit(limits.ProcessCount, 4))
	pt := tk.Processes()
	for _, pid := range []ThreadID{-1, PIDInvalid, 4, 1000} {
		if got := pt.Lookup(pid); got != nil {
			t.Errorf("Lookup(%d) = %v, want nil", pid, got)
		}
	}
}

func TestProcessTableDeallocateUnknown(t *testing.T) {
	tk := newTestKernel(t, programs{}, withLimit(limits.ProcessCount, 4))
	pt := tk.Processes()
	pt.Init(tk.newProcess("init"))
	for _, pid := range []ThreadID{PIDInvalid, PIDMin, 4, -3} {
		if err := testutil.ExpectPanic("unknown pid", func() { pt.Deallocate(pid) }); err != nil {
			t.Errorf("Deallocate(%d): %v", pid, err)
		}
	}
	if got := pt.Len(); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}
}

func TestProcessTableAddInitializes(t *testing.T) {
	tk := newTestKernel(t, programs{}, withLimit(limits.ProcessCount, 4))
	pt := tk.Processes()
	if got := pt.add(tk.newProcess("a")); got != PIDInit {
		t.Errorf("first add = %d, want %d", got, PIDInit)
	}
	if !pt.Initialized() {
		t.Errorf("table not initialized after add")
	}
	pt.Deallocate(PIDInit)
	if got := pt.add(tk.newProcess("b")); got != PIDMin {
		t.Errorf("add after init = %d, want %d", got, PIDMin)
	}
}

func TestKernelInitRejectsTinyTables(t *testing.T) {
	for _, tc := range []struct {
		lt limits.LimitType
		v  uint64
	}{
		{limits.ProcessCount, 2},
		{limits.NumberOfFiles, 3},
	} {
		ls := limits.NewOS161LimitSet()
		ls.SetUnchecked(tc.lt, limits.Limit{Cur: tc.v, Max: tc.v})
		k := &Kernel{}
		err := k.Init(InitKernelArgs{
			Limits:   ls,
			VFS:      newTestKernel(t, programs{}).VFS(),
			UserMode: programs{},
		})
		if err == nil {
			t.Errorf("Init with %v = %d succeeded", tc.lt, tc.v)
		}
	}
}

func TestKernelInitSmallestTables(t *testing.T) {
	tk := newTestKernel(t, programs{},
		withLimit(limits.ProcessCount, uint64(PIDMin)+1),
		withLimit(limits.NumberOfFiles, stdHandles+1))
	if got, want := tk.Processes().Size(), int(PIDMin)+1; got != want {
		t.Errorf("process table size = %d, want %d", got, want)
	}
	if got, want := tk.openMax, stdHandles+1; got != want {
		t.Errorf("openMax = %d, want %d", got, want)
	}
}
