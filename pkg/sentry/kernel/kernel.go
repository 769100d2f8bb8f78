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

// Package kernel implements process management: the per-process descriptor
// table and its shared file descriptions, the process table, and the
// fork/exit/wait lifecycle.
//
// Every process has exactly one Thread. Threads run as goroutines started by
// the Kernel's Scheduler and synchronize only through pkg/sync primitives.
//
// Lock order (outermost locks must be taken first):
//
//	Process.lkSyscall (FDTable.mu)
//		FileDescription.mu
//
//	Process.lkChildren
//		ProcessTable.mu
//			Process.mu
//
// Process.lkExited and Process.lkThreads are leaf locks; neither is held while
// acquiring any other lock.
package kernel

import (
	"fmt"
	"time"

	"github.com/kippesp/os161/pkg/log"
	"github.com/kippesp/os161/pkg/metric"
	"github.com/kippesp/os161/pkg/sentry/limits"
	"github.com/kippesp/os161/pkg/sentry/mm"
	"github.com/kippesp/os161/pkg/sentry/vfs"
)

var (
	forkCount = metric.MustCreateNewUint64Metric("/kernel/forks", "Number of fork calls by result.",
		metric.NewField("result", []string{"ok", "failed"}))
	exitCount   = metric.MustCreateNewUint64Metric("/kernel/exits", "Number of processes that called _exit.")
	reapCount   = metric.MustCreateNewUint64Metric("/kernel/reaps", "Number of processes reaped by waitpid.")
	orphanCount = metric.MustCreateNewUint64Metric("/kernel/orphans", "Number of processes whose parent stopped tracking them.")
	execCount   = metric.MustCreateNewUint64Metric("/kernel/execs", "Number of successful execv calls.")

	descriptionsCreated   = metric.MustCreateNewUint64Metric("/kernel/file_descriptions_created", "Number of file descriptions created.")
	descriptionsDestroyed = metric.MustCreateNewUint64Metric("/kernel/file_descriptions_destroyed", "Number of file descriptions destroyed.")
)

// exhaustionLog reports table exhaustion without flooding the log when a
// program forks or opens in a loop.
var exhaustionLog = log.BasicRateLimitedLogger(time.Second)

// Kernel represents an emulated kernel.
type Kernel struct {
	// All of the following fields are immutable after Init.

	limits    *limits.LimitSet
	vfs       vfs.VFS
	addrs     mm.Factory
	scheduler Scheduler
	userMode  UserMode

	// processes is the process table.
	processes *ProcessTable

	openMax       int
	maxArgBytes   int
	maxPathLength int
}

// InitKernelArgs holds arguments to Init.
type InitKernelArgs struct {
	// Limits holds the table sizes. If nil, the compiled-in defaults are
	// used.
	Limits *limits.LimitSet

	// VFS opens files on behalf of processes. It is required.
	VFS vfs.VFS

	// AddressSpaces creates user address spaces. If nil, in-memory address
	// spaces are used.
	AddressSpaces mm.Factory

	// Scheduler runs threads. If nil, each thread runs on its own
	// goroutine.
	Scheduler Scheduler

	// UserMode executes user code. It is required.
	UserMode UserMode
}

// Init initialises a Kernel. It must be called exactly once, before any
// process is started.
func (k *Kernel) Init(args InitKernelArgs) error {
	if args.VFS == nil {
		return fmt.Errorf("VFS is nil")
	}
	if args.UserMode == nil {
		return fmt.Errorf("UserMode is nil")
	}
	if args.Limits == nil {
		args.Limits = limits.NewOS161LimitSet()
	}
	if args.AddressSpaces == nil {
		args.AddressSpaces = mm.MemoryFactory
	}
	if args.Scheduler == nil {
		args.Scheduler = &GoroutineScheduler{}
	}
	k.limits = args.Limits
	k.vfs = args.VFS
	k.addrs = args.AddressSpaces
	k.scheduler = args.Scheduler
	k.userMode = args.UserMode

	const hardMax = 1 << 16
	procs := int(k.limits.GetCapped(limits.ProcessCount, hardMax))
	if procs <= int(PIDMin) {
		return fmt.Errorf("process table of %d slots cannot hold a forked process", procs)
	}
	k.processes = newProcessTable(procs)
	k.openMax = int(k.limits.GetCapped(limits.NumberOfFiles, hardMax))
	if k.openMax <= stdHandles {
		return fmt.Errorf("descriptor table of %d slots cannot hold an opened file", k.openMax)
	}
	k.maxArgBytes = int(k.limits.GetCapped(limits.ArgumentBytes, 1<<24))
	k.maxPathLength = int(k.limits.GetCapped(limits.PathLength, hardMax))
	log.Infof("Kernel initialized: %d process slots, %d descriptors per process", procs, k.openMax)
	return nil
}

// VFS returns the kernel's file system.
func (k *Kernel) VFS() vfs.VFS {
	return k.vfs
}

// Processes returns the process table.
func (k *Kernel) Processes() *ProcessTable {
	return k.processes
}

// Limits returns the kernel's limits.
func (k *Kernel) Limits() *limits.LimitSet {
	return k.limits
}

// MaxArgBytes is the bound on the size of an execv argument vector.
func (k *Kernel) MaxArgBytes() int {
	return k.maxArgBytes
}

// MaxPathLength is the bound on a path copied in from user memory,
// terminator included.
func (k *Kernel) MaxPathLength() int {
	return k.maxPathLength
}

// Scheduler returns the kernel's scheduler.
func (k *Kernel) Scheduler() Scheduler {
	return k.scheduler
}
