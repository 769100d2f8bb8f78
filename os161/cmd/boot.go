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

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/kippesp/os161/os161/config"
	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/sentry/fsimpl/memfs"
	"github.com/kippesp/os161/pkg/sentry/kernel"
	"github.com/kippesp/os161/pkg/sentry/platform"

	// Register the interpreter platform and the syscall table.
	_ "github.com/kippesp/os161/pkg/sentry/platform/interp"
	_ "github.com/kippesp/os161/pkg/sentry/syscalls/os161"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	// root is a host directory whose contents are copied into the
	// emulated volume before the program starts.
	root string
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "boot the kernel and run a program as its first process"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] <program> [args...] - runs program as process 1 and exits with its status.

Built-in programs are installed under /testbin.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.root, "root", "", "host directory to copy into the emulated volume.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	waitStatus := args[1].(*os161.WaitStatus)

	res, err := bootProgram(conf, bootOptions{
		root:    b.root,
		program: f.Arg(0),
		args:    f.Args()[1:],
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	})
	if err != nil {
		Fatalf("%v", bootError(f.Arg(0), err))
	}
	logrus.WithFields(logrus.Fields{
		"program": f.Arg(0),
		"pid":     res.pid,
		"status":  res.status.String(),
	}).Info("Program exited")
	*waitStatus = res.status
	return subcommands.ExitSuccess
}

// bootError describes a failed boot of program. A missing program lists the
// built-in ones.
func bootError(program string, err error) error {
	if errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("booting %q: %w (built-in programs: %s/{%s})", program, err, TestbinDir, strings.Join(Testbin(), ","))
	}
	return fmt.Errorf("booting %q: %w", program, err)
}

// bootOptions describes one kernel run.
type bootOptions struct {
	root    string
	program string
	args    []string
	stdin   io.Reader
	stdout  io.Writer
}

// bootResult is the outcome of a kernel run.
type bootResult struct {
	pid    kernel.ThreadID
	status os161.WaitStatus
	fs     *memfs.Filesystem
}

// bootProgram boots a kernel configured by conf, runs o.program as its first
// process and waits until every thread has terminated.
func bootProgram(conf *config.Config, o bootOptions) (*bootResult, error) {
	mfs := memfs.New(memfs.DefaultVolume, memfs.NewConsole(o.stdin, o.stdout))
	if err := installTestbin(mfs); err != nil {
		return nil, fmt.Errorf("installing built-in programs: %w", err)
	}
	if o.root != "" {
		if err := importHost(mfs, o.root); err != nil {
			return nil, fmt.Errorf("importing %q: %w", o.root, err)
		}
	}

	c, err := platform.Lookup(conf.Platform)
	if err != nil {
		return nil, err
	}
	p, err := c.New()
	if err != nil {
		return nil, fmt.Errorf("creating platform %q: %w", conf.Platform, err)
	}

	sched := &kernel.GoroutineScheduler{}
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{
		Limits:    conf.Limits(),
		VFS:       mfs,
		Scheduler: sched,
		UserMode:  p,
	}); err != nil {
		return nil, fmt.Errorf("initializing kernel: %w", err)
	}

	boot := k.NewKernelThread("boot")
	proc, err := k.RunProgram(boot, o.program, append([]string{o.program}, o.args...))
	if err != nil {
		return nil, err
	}
	pid := proc.PID()
	status := k.WaitForExit(boot, proc)

	// Orphans may still be running.
	sched.Wait()
	return &bootResult{pid: pid, status: status, fs: mfs}, nil
}

// importHost copies the regular files and directories under root into mfs.
func importHost(mfs *memfs.Filesystem, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		dst := "/" + filepath.ToSlash(rel)
		switch {
		case d.IsDir():
			if rel == "." {
				return nil
			}
			return mfs.Mkdir(dst)
		case d.Type().IsRegular():
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return mfs.WriteFile(dst, data)
		default:
			logrus.WithField("path", path).Debug("Skipping special file")
			return nil
		}
	})
}
