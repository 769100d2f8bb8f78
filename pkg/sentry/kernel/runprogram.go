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
	"path"

	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/cleanup"
	"github.com/kippesp/os161/pkg/errors/linuxerr"
)

// ConsoleDevice is the device the standard handles of a new program refer
// to.
const ConsoleDevice = "con:"

// RunProgram starts progname, with arguments args, as a new process without
// a parent. The first process started takes PIDInit.
//
// The new process has the console open at the standard handles and "/" as
// its working directory. t is the calling kernel thread.
func (k *Kernel) RunProgram(t *Thread, progname string, args []string) (*Process, error) {
	p := k.newProcess(path.Base(progname))
	cu := cleanup.Make(func() { p.release(t) })
	defer cu.Clean()

	for _, std := range []struct {
		fd    int32
		flags uint32
	}{
		{os161.STDOUT_FILENO, os161.O_WRONLY},
		{os161.STDERR_FILENO, os161.O_WRONLY},
		{os161.STDIN_FILENO, os161.O_RDONLY},
	} {
		v, err := k.vfs.Open(p.cwd, ConsoleDevice, std.flags, 0)
		if err != nil {
			return nil, err
		}
		p.fdTable.newFDAt(t, std.fd, v, std.flags)
	}

	as, tf, err := k.loadProgram(p.cwd, progname, args)
	if err != nil {
		return nil, err
	}
	p.as = as

	pid := k.processes.add(p)
	if pid == PIDInvalid {
		exhaustionLog.Warningf("run %q: process table full (%d slots)", progname, k.processes.Size())
		return nil, linuxerr.ENPROC
	}
	cu.Add(func() { k.processes.Deallocate(pid) })

	p.addThread(t)
	if err := k.startThread(p, func(ct *Thread) {
		ct.AddressSpace().Activate()
		ct.EnterUserMode(tf)
	}); err != nil {
		return nil, err
	}
	cu.Release()
	t.Debugf("Started %q as %d", progname, pid)
	return p, nil
}

// WaitForExit waits for p, a process started by RunProgram, to exit and
// releases it. It returns p's exit status.
//
// Children p still tracked when it exited have been orphaned and are not
// released.
func (k *Kernel) WaitForExit(t *Thread, p *Process) os161.WaitStatus {
	p.waitExited(t)
	p.waitThreads(t)
	status := p.ExitStatus()
	k.processes.Deallocate(p.PID())
	p.release(t)
	reapCount.Increment()
	return status
}
